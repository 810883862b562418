package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

// ErrTaskNotFound is wrapped by SQLiteError when an id does not exist.
var ErrTaskNotFound = backend.ErrNotFound

// SQLiteError represents errors specific to SQLite backend operations
type SQLiteError struct {
	Op     string // Operation that failed
	Err    error  // Underlying error
	TaskID int64  // Optional: task id if relevant
}

func (e *SQLiteError) Error() string {
	if e.TaskID != 0 {
		return fmt.Sprintf("sqlite %s failed for task %d: %v", e.Op, e.TaskID, e.Err)
	}
	return fmt.Sprintf("sqlite %s failed: %v", e.Op, e.Err)
}

func (e *SQLiteError) Unwrap() error {
	return e.Err
}

// SQLiteBackend is the durable local fallback store. It implements
// backend.LocalStore.
type SQLiteBackend struct {
	db *Database
}

// NewSQLiteBackend opens the database at dbPath (empty for the default
// location).
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := InitDatabase(dbPath)
	if err != nil {
		return nil, &SQLiteError{Op: "init", Err: err}
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the database connection
func (sb *SQLiteBackend) Close() error {
	if sb.db != nil {
		return sb.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (sb *SQLiteBackend) Path() string {
	return sb.db.Path()
}

// Stats returns database statistics for status output.
func (sb *SQLiteBackend) Stats() (DatabaseStats, error) {
	return sb.db.GetStats()
}

func (sb *SQLiteBackend) Source() backend.Source {
	return backend.SourceLocal
}

const selectColumns = `
	SELECT id, title, description, urgency, difficulty, due_date,
	       completed, created_at, updated_at, priority
	FROM tasks`

// Load returns every stored task in storage order. Read failures are
// logged and yield an empty set.
func (sb *SQLiteBackend) Load(ctx context.Context) []Task {
	tasks, err := sb.queryTasks(ctx, selectColumns+" ORDER BY position ASC")
	if err != nil {
		utils.Warnf("Local store load failed, using empty set: %v", &SQLiteError{Op: "Load", Err: err})
		return []Task{}
	}
	return tasks
}

// Save replaces the stored set with tasks in one transaction. Failures are
// logged and swallowed.
func (sb *SQLiteBackend) Save(ctx context.Context, tasks []Task) {
	if err := sb.replaceAll(ctx, tasks); err != nil {
		utils.Errorf("Local store save failed: %v", &SQLiteError{Op: "Save", Err: err})
	}
}

func (sb *SQLiteBackend) replaceAll(ctx context.Context, tasks []Task) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}
	for i, task := range tasks {
		if err := insertTask(ctx, tx, task, i); err != nil {
			return fmt.Errorf("task %d: %w", task.ID, err)
		}
	}
	return tx.Commit()
}

// FetchTasks returns all tasks ordered by priority descending, then due
// date ascending. The user filter is ignored: the local store holds a
// single user's tasks.
func (sb *SQLiteBackend) FetchTasks(ctx context.Context, opts backend.FetchOptions) ([]Task, error) {
	tasks, err := sb.queryTasks(ctx, selectColumns+" ORDER BY position ASC")
	if err != nil {
		return nil, &SQLiteError{Op: "FetchTasks", Err: err}
	}
	backend.SortByPriority(tasks)
	return tasks, nil
}

// CreateTask appends t to the stored set. A zero id is replaced with
// max(id)+1.
func (sb *SQLiteBackend) CreateTask(ctx context.Context, t Task) (Task, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, &SQLiteError{Op: "CreateTask", TaskID: t.ID, Err: err}
	}
	defer tx.Rollback()

	var maxID, maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(id), MAX(position) FROM tasks").Scan(&maxID, &maxPos); err != nil {
		return Task{}, &SQLiteError{Op: "CreateTask", TaskID: t.ID, Err: err}
	}
	if t.ID == 0 {
		t.ID = maxID.Int64 + 1
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	position := 0
	if maxPos.Valid {
		position = int(maxPos.Int64) + 1
	}

	if err := insertTask(ctx, tx, t, position); err != nil {
		return Task{}, &SQLiteError{Op: "CreateTask", TaskID: t.ID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Task{}, &SQLiteError{Op: "CreateTask", TaskID: t.ID, Err: err}
	}
	return t, nil
}

// UpdateTask applies changes to the stored task and returns the result.
func (sb *SQLiteBackend) UpdateTask(ctx context.Context, id int64, changes backend.TaskChanges) (Task, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, selectColumns+" WHERE id = ?", id)
	if err != nil {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: err}
	}
	found, err := scanTasks(rows)
	if err != nil {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: err}
	}
	if len(found) == 0 {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: ErrTaskNotFound}
	}

	if changes.UpdatedAt.IsZero() {
		changes.UpdatedAt = time.Now()
	}
	updated := changes.Apply(found[0])

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, urgency = ?, difficulty = ?, due_date = ?,
		    completed = ?, updated_at = ?, priority = ?
		WHERE id = ?
	`,
		updated.Title,
		nullString(updated.Description),
		updated.Urgency,
		updated.Difficulty,
		dateToNullString(updated.DueDate),
		updated.Completed,
		updated.UpdatedAt.UnixMilli(),
		updated.Priority,
		id,
	)
	if err != nil {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Task{}, &SQLiteError{Op: "UpdateTask", TaskID: id, Err: err}
	}
	return updated, nil
}

// DeleteTask removes the task with the given id.
func (sb *SQLiteBackend) DeleteTask(ctx context.Context, id int64) error {
	result, err := sb.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return &SQLiteError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &SQLiteError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	if n == 0 {
		return &SQLiteError{Op: "DeleteTask", TaskID: id, Err: ErrTaskNotFound}
	}
	return nil
}

// Task is backend.Task.
type Task = backend.Task

func (sb *SQLiteBackend) queryTasks(ctx context.Context, query string, args ...interface{}) ([]Task, error) {
	rows, err := sb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertTask(ctx context.Context, ex execer, t Task, position int) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO tasks (
			id, position, title, description, urgency, difficulty,
			due_date, completed, created_at, updated_at, priority
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		position,
		t.Title,
		nullString(t.Description),
		t.Urgency,
		t.Difficulty,
		dateToNullString(t.DueDate),
		t.Completed,
		timeToNullInt64(t.CreatedAt),
		timeToNullInt64(t.UpdatedAt),
		t.Priority,
	)
	return err
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	tasks := []Task{}

	for rows.Next() {
		var task Task
		var description, dueDate sql.NullString
		var createdAt, updatedAt sql.NullInt64

		err := rows.Scan(
			&task.ID,
			&task.Title,
			&description,
			&task.Urgency,
			&task.Difficulty,
			&dueDate,
			&task.Completed,
			&createdAt,
			&updatedAt,
			&task.Priority,
		)
		if err != nil {
			return nil, err
		}

		if description.Valid {
			task.Description = description.String
		}
		if dueDate.Valid && dueDate.String != "" {
			d, err := time.ParseInLocation(utils.ISODate, dueDate.String, time.Local)
			if err != nil {
				return nil, fmt.Errorf("task %d: bad due_date %q: %w", task.ID, dueDate.String, err)
			}
			task.DueDate = &d
		}
		if createdAt.Valid {
			task.CreatedAt = time.UnixMilli(createdAt.Int64)
		}
		if updatedAt.Valid {
			task.UpdatedAt = time.UnixMilli(updatedAt.Int64)
		}

		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dateToNullString(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.In(time.Local).Format(utils.ISODate), Valid: true}
}

func timeToNullInt64(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
