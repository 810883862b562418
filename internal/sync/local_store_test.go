package sync

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"priorityforge/backend"
	"priorityforge/backend/sqlite"
	"priorityforge/internal/clock"
	"priorityforge/internal/state"
)

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestCreateLocalKeepsRowsTheLastLoadCouldNotRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	sb, err := sqlite.NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	defer sb.Close()
	sb.Save(ctx, threeTasks())

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw handle: %v", err)
	}
	defer raw.Close()
	if _, err := raw.Exec("UPDATE tasks SET due_date = 'bogus' WHERE id = 2"); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	store := state.NewStore()
	coord := NewCoordinator(store, backend.NewSelector(nil, sb, backend.StaticSession{}), Options{Clock: clock.NewFake(testNow)})
	if err := coord.InitialLoad(ctx); err != nil {
		t.Fatalf("InitialLoad() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d tasks after an unreadable load, want 0", store.Len())
	}

	created, err := coord.Create(ctx, backend.TaskDraft{Title: "new", Urgency: 2, Difficulty: 2})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := countRows(t, raw); got != 4 {
		t.Fatalf("stored rows after create = %d, want 4", got)
	}
	if !store.Has(created.ID) {
		t.Error("created task missing from the store")
	}

	if _, err := raw.Exec("UPDATE tasks SET due_date = NULL WHERE id = 2"); err != nil {
		t.Fatalf("repair row: %v", err)
	}
	if got := len(sb.Load(ctx)); got != 4 {
		t.Errorf("Load() after repair = %d tasks, want 4", got)
	}
}
