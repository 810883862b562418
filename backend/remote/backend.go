// Package remote implements backend.TaskBackend against a PostgREST task
// table, plus the realtime push subscription and password sign-in for the
// same project.
package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"priorityforge/backend"
)

// Config describes the remote project.
type Config struct {
	URL     string
	AnonKey string
	Table   string
}

// RemoteBackend is the authoritative store while a session exists.
type RemoteBackend struct {
	config    Config
	apiClient *APIClient
}

// NewRemoteBackend creates a backend. ts supplies the session's access
// token; see NewAPIClient.
func NewRemoteBackend(cfg Config, ts oauth2.TokenSource) *RemoteBackend {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return &RemoteBackend{
		config:    cfg,
		apiClient: NewAPIClient(cfg.URL, cfg.AnonKey, cfg.Table, ts),
	}
}

func (rb *RemoteBackend) Source() backend.Source {
	return backend.SourceRemote
}

// FetchTasks lists tasks ordered by priority then due date. A UserID in
// opts filters server side.
func (rb *RemoteBackend) FetchTasks(ctx context.Context, opts backend.FetchOptions) ([]backend.Task, error) {
	query := url.Values{}
	query.Set("select", "*")
	if opts.UserID != "" {
		query.Set("user_id", "eq."+opts.UserID)
	}
	query.Set("order", "priority.desc,due_date.asc")

	data, err := rb.apiClient.doRequest(ctx, "FetchTasks", http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows("FetchTasks", data)
	if err != nil {
		return nil, err
	}

	tasks := make([]backend.Task, len(rows))
	for i, row := range rows {
		tasks[i] = toTask(row)
	}
	// PostgREST sorts null due dates first on ascending order.
	backend.SortByPriority(tasks)
	return tasks, nil
}

// CreateTask inserts t and returns the stored row.
func (rb *RemoteBackend) CreateTask(ctx context.Context, t backend.Task) (backend.Task, error) {
	data, err := rb.apiClient.doRequest(ctx, "CreateTask", http.MethodPost, nil, fromTask(t), "return=representation")
	if err != nil {
		return backend.Task{}, err
	}
	return singleRow("CreateTask", t.ID, data)
}

// UpdateTask patches the row with id and returns the stored row.
func (rb *RemoteBackend) UpdateTask(ctx context.Context, id int64, changes backend.TaskChanges) (backend.Task, error) {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))

	data, err := rb.apiClient.doRequest(ctx, "UpdateTask", http.MethodPatch, query, toPatch(changes), "return=representation")
	if err != nil {
		if be, ok := err.(*backend.BackendError); ok {
			be.WithTaskID(id)
		}
		return backend.Task{}, err
	}
	return singleRow("UpdateTask", id, data)
}

// DeleteTask removes the row with id. Deleting a missing row succeeds.
func (rb *RemoteBackend) DeleteTask(ctx context.Context, id int64) error {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))

	_, err := rb.apiClient.doRequest(ctx, "DeleteTask", http.MethodDelete, query, nil, "")
	if be, ok := err.(*backend.BackendError); ok {
		be.WithTaskID(id)
	}
	return err
}

// singleRow decodes a return=representation body. An empty array means the
// filter matched nothing, which row-level security also produces.
func singleRow(op string, id int64, data []byte) (backend.Task, error) {
	rows, err := decodeRows(op, data)
	if err != nil {
		return backend.Task{}, err
	}
	if len(rows) == 0 {
		return backend.Task{}, backend.NewBackendError(op, http.StatusNotFound, "task not found").WithTaskID(id)
	}
	return toTask(rows[0]), nil
}
