package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"priorityforge/internal/utils"
)

// DefaultReprioritizeSchedule runs just after local midnight, when due-date
// bonuses shift by a day.
const DefaultReprioritizeSchedule = "0 0 * * *"

// Reprioritizer runs Coordinator.Reprioritize on a cron schedule.
type Reprioritizer struct {
	coord    *Coordinator
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *rcron.Cron
	entryID rcron.EntryID
	cancel  context.CancelFunc
}

// NewReprioritizer validates schedule (standard five-field cron syntax, or
// a descriptor such as "@daily") and returns a stopped Reprioritizer.
func NewReprioritizer(coord *Coordinator, schedule string) (*Reprioritizer, error) {
	if schedule == "" {
		schedule = DefaultReprioritizeSchedule
	}
	if _, err := rcron.ParseStandard(schedule); err != nil {
		return nil, utils.ErrInvalidConfig("engine.reprioritize_schedule", err.Error())
	}
	return &Reprioritizer{
		coord:    coord,
		schedule: schedule,
		timeout:  time.Minute,
	}, nil
}

// Schedule returns the cron expression in use.
func (r *Reprioritizer) Schedule() string {
	return r.schedule
}

// Start registers the job and starts the cron scheduler.
func (r *Reprioritizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := rcron.New()
	id, err := c.AddFunc(r.schedule, func() { r.run(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("failed to register reprioritize job (%s): %w", r.schedule, err)
	}
	r.cron = c
	r.entryID = id
	r.cancel = cancel
	c.Start()
	utils.Debugf("Reprioritizer scheduled with %q", r.schedule)
	return nil
}

// Next returns the next planned run, or the zero time when stopped.
func (r *Reprioritizer) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

func (r *Reprioritizer) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.coord.Reprioritize(ctx); err != nil {
		utils.Warnf("Scheduled reprioritization incomplete: %v", err)
	}
}

// Stop halts the scheduler and waits (bounded) for a running job.
func (r *Reprioritizer) Stop(timeout time.Duration) {
	r.mu.Lock()
	c := r.cron
	cancel := r.cancel
	r.cron = nil
	r.cancel = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(timeout):
		utils.Warnf("Reprioritize job still running after %v", timeout)
	}
	cancel()
}
