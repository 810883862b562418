// Package app assembles the engine: configuration, backends, session,
// store, coordinator, transition scheduler and background jobs.
package app

import (
	"context"
	"fmt"
	"time"

	"priorityforge/backend"
	"priorityforge/backend/remote"
	"priorityforge/backend/sqlite"
	"priorityforge/internal/clock"
	"priorityforge/internal/config"
	"priorityforge/internal/credentials"
	"priorityforge/internal/state"
	psync "priorityforge/internal/sync"
	"priorityforge/internal/transition"
	"priorityforge/internal/utils"
	"priorityforge/internal/views"
)

// Options configures New. Zero values select the defaults.
type Options struct {
	Clock clock.Clock
}

// Engine holds every long-lived component. The CLI and TUI receive it
// explicitly.
type Engine struct {
	config *config.Config
	clock  clock.Clock

	store         *state.Store
	local         *sqlite.SQLiteBackend
	remote        *remote.RemoteBackend
	session       *credentials.Resolver
	selector      *backend.Selector
	coordinator   *psync.Coordinator
	scheduler     *transition.Scheduler
	projector     *views.Projector
	reprioritizer *psync.Reprioritizer

	closed bool
}

// New builds an engine from cfg. Nothing is loaded until Open.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	local, err := sqlite.NewSQLiteBackend(dbPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config: cfg,
		clock:  opts.Clock,
		store:  state.NewStore(),
		local:  local,
	}
	e.applyUIDefaults()

	var (
		remoteBackend backend.TaskBackend
		sessions      backend.SessionProvider
		subscriber    backend.PushSubscriber
	)
	if cfg.IsRemoteConfigured() {
		rcfg := remote.Config{URL: cfg.Remote.URL, AnonKey: cfg.Remote.AnonKey, Table: cfg.Remote.Table}
		e.session = credentials.NewResolver(rcfg, opts.Clock)
		e.remote = remote.NewRemoteBackend(rcfg, e.session.TokenSource())
		remoteBackend, sessions = e.remote, e.session
		if cfg.Remote.Realtime {
			subscriber = remote.NewRealtime(rcfg, e.session.TokenSource())
		}
	} else {
		utils.Debugf("Remote not configured, running on the local database only")
	}

	e.selector = backend.NewSelector(remoteBackend, local, sessions)
	e.coordinator = psync.NewCoordinator(e.store, e.selector, psync.Options{
		SuppressWindow: cfg.Engine.SuppressWindow,
		RequestTimeout: cfg.Remote.RequestTimeout,
		Clock:          opts.Clock,
		Subscriber:     subscriber,
	})
	e.scheduler = transition.NewScheduler(e.store, e.coordinator, transition.Options{
		Delay:         cfg.Engine.TransitionDelay,
		CommitTimeout: cfg.Remote.RequestTimeout,
		Clock:         opts.Clock,
	})
	e.projector = views.NewProjector(e.store, opts.Clock)

	e.reprioritizer, err = psync.NewReprioritizer(e.coordinator, cfg.Engine.ReprioritizeSchedule)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) applyUIDefaults() {
	if v, err := backend.ParseViewMode(e.config.UI.DefaultView); err == nil {
		e.store.SetView(v)
	}
	if k, err := backend.ParseSortKey(e.config.UI.DefaultSort); err == nil {
		e.store.SetSortKey(k)
	}
}

// Open performs the initial load. A remote failure is returned after the
// store has been filled from the local database, so callers may continue.
func (e *Engine) Open(ctx context.Context) error {
	return e.coordinator.InitialLoad(ctx)
}

// StartBackground starts the push subscription and the reprioritization
// job. Both stop on Shutdown.
func (e *Engine) StartBackground(ctx context.Context) error {
	if err := e.coordinator.Start(ctx); err != nil {
		utils.Warnf("Live updates unavailable: %v", err)
	}
	// Catch up on remote changes made between the initial load and the
	// subscription.
	if e.selector.UseRemote(ctx) {
		e.coordinator.TriggerRefresh(ctx)
	}
	return e.reprioritizer.Start(ctx)
}

func (e *Engine) Config() *config.Config { return e.config }
func (e *Engine) Clock() clock.Clock { return e.clock }
func (e *Engine) Store() *state.Store { return e.store }
func (e *Engine) Coordinator() *psync.Coordinator { return e.coordinator }
func (e *Engine) Scheduler() *transition.Scheduler { return e.scheduler }
func (e *Engine) Projector() *views.Projector { return e.projector }
func (e *Engine) Reprioritizer() *psync.Reprioritizer { return e.reprioritizer }
func (e *Engine) Local() *sqlite.SQLiteBackend { return e.local }
func (e *Engine) Session() *credentials.Resolver { return e.session }
func (e *Engine) RemoteConfigured() bool { return e.remote != nil }
func (e *Engine) Selector() *backend.Selector { return e.selector }

// Toggle starts or cancels a delayed completion toggle.
func (e *Engine) Toggle(id int64) (transition.Result, error) {
	if !e.store.Has(id) {
		return transition.Result{}, utils.ErrTaskNotFound(id)
	}
	return e.scheduler.Toggle(id)
}

// WaitSettled blocks until id has no pending transition or ctx is done.
func (e *Engine) WaitSettled(ctx context.Context, id int64) error {
	changed := make(chan struct{}, 1)
	unsubscribe := e.store.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if _, pending := e.store.Pending(id); !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Status summarizes the engine for the status command.
type Status struct {
	Source           backend.Source `json:"source" yaml:"source"`
	RemoteConfigured bool           `json:"remote_configured" yaml:"remote_configured"`
	SignedIn         bool           `json:"signed_in" yaml:"signed_in"`
	UserID           string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	SessionSource    string         `json:"session_source,omitempty" yaml:"session_source,omitempty"`
	Database         string         `json:"database" yaml:"database"`
	LocalTasks       int            `json:"local_tasks" yaml:"local_tasks"`
	DatabaseSize     int64          `json:"database_size" yaml:"database_size"`
	SchemaVersion    int            `json:"schema_version" yaml:"schema_version"`
	Tasks            int            `json:"tasks" yaml:"tasks"`
	Completed        int            `json:"completed" yaml:"completed"`
	Pending          int            `json:"pending" yaml:"pending"`
	LastError        string         `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	NextReprioritize *time.Time     `json:"next_reprioritize,omitempty" yaml:"next_reprioritize,omitempty"`
}

// Status returns the current engine status.
func (e *Engine) Status(ctx context.Context) Status {
	snap := e.store.Snapshot()
	st := Status{
		Source:           snap.Source,
		RemoteConfigured: e.remote != nil,
		Database:         e.local.Path(),
		Tasks:            len(snap.Tasks),
		Pending:          len(snap.Pending),
		LastError:        snap.Error,
	}
	for _, t := range snap.Tasks {
		if t.Completed {
			st.Completed++
		}
	}
	if stats, err := e.local.Stats(); err != nil {
		utils.Debugf("Local database stats: %v", err)
	} else {
		st.LocalTasks = stats.TaskCount
		st.DatabaseSize = stats.DatabaseSize
		st.SchemaVersion = stats.SchemaVersion
	}
	if e.session != nil {
		st.SignedIn = e.session.HasActiveSession(ctx)
		st.UserID, _ = e.session.CurrentUserID(ctx)
		if _, src := e.session.Resolve(); src != credentials.SourceNone {
			st.SessionSource = string(src)
		}
	}
	if next := e.reprioritizer.Next(); !next.IsZero() {
		st.NextReprioritize = &next
	}
	return st
}

// Shutdown stops timers, background work and closes the database. It is
// safe to call more than once.
func (e *Engine) Shutdown() error {
	if e.closed {
		return nil
	}
	e.closed = true

	timeout := e.config.Engine.ShutdownTimeout
	e.scheduler.Shutdown(timeout)
	e.reprioritizer.Stop(timeout)
	e.coordinator.Shutdown(timeout)
	return e.local.Close()
}
