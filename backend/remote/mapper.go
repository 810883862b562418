package remote

import (
	"strings"
	"time"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

// remoteTask is one row of the task table as PostgREST returns it.
type remoteTask struct {
	ID          int64   `json:"id,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Urgency     int     `json:"urgency"`
	Difficulty  int     `json:"difficulty"`
	DueDate     *string `json:"due_date"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
	Priority    float64 `json:"priority"`
}

// toTask converts a row to a backend.Task
func toTask(row remoteTask) backend.Task {
	task := backend.Task{
		ID:         row.ID,
		Title:      row.Title,
		Urgency:    row.Urgency,
		Difficulty: row.Difficulty,
		Completed:  row.Completed,
		Priority:   row.Priority,
		OwnerID:    row.UserID,
	}
	if row.Description != nil {
		task.Description = *row.Description
	}
	if row.DueDate != nil {
		task.DueDate = parseDueDate(*row.DueDate)
	}
	task.CreatedAt = parseTimestamp(row.CreatedAt)
	task.UpdatedAt = parseTimestamp(row.UpdatedAt)
	return task
}

// fromTask builds the insert payload. A zero id is omitted so the server
// assigns one.
func fromTask(task backend.Task) remoteTask {
	row := remoteTask{
		ID:         task.ID,
		UserID:     task.OwnerID,
		Title:      task.Title,
		Urgency:    task.Urgency,
		Difficulty: task.Difficulty,
		Completed:  task.Completed,
		Priority:   task.Priority,
		DueDate:    formatDueDate(task.DueDate),
	}
	if task.Description != "" {
		d := task.Description
		row.Description = &d
	}
	if !task.CreatedAt.IsZero() {
		row.CreatedAt = task.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !task.UpdatedAt.IsZero() {
		row.UpdatedAt = task.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

// toPatch converts resolved changes to a PATCH body. Only set fields are
// included; a cleared due date is sent as null.
func toPatch(changes backend.TaskChanges) map[string]interface{} {
	patch := make(map[string]interface{})
	if changes.Title != nil {
		patch["title"] = *changes.Title
	}
	if changes.Description != nil {
		patch["description"] = *changes.Description
	}
	if changes.Urgency != nil {
		patch["urgency"] = *changes.Urgency
	}
	if changes.Difficulty != nil {
		patch["difficulty"] = *changes.Difficulty
	}
	if changes.ClearDueDate {
		patch["due_date"] = nil
	} else if changes.DueDate != nil {
		patch["due_date"] = *formatDueDate(changes.DueDate)
	}
	if changes.Completed != nil {
		patch["completed"] = *changes.Completed
	}
	if changes.Priority != nil {
		patch["priority"] = *changes.Priority
	}
	if !changes.UpdatedAt.IsZero() {
		patch["updated_at"] = changes.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return patch
}

// parseDueDate reads a date-only value. The calendar date is kept as-is
// (local midnight) whatever time or zone suffix the server appends.
func parseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) < len(utils.ISODate) {
		return nil
	}
	d, err := time.ParseInLocation(utils.ISODate, s[:len(utils.ISODate)], time.Local)
	if err != nil {
		utils.Debugf("Ignoring unparsable due date %q", s)
		return nil
	}
	return &d
}

func formatDueDate(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := d.In(time.Local).Format(utils.ISODate)
	return &s
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	utils.Debugf("Ignoring unparsable timestamp %q", s)
	return time.Time{}
}
