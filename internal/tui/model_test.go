package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"priorityforge/backend"
	"priorityforge/internal/app"
	"priorityforge/internal/clock"
	"priorityforge/internal/config"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

func newTestModel(t *testing.T, titles ...string) (model, *app.Engine, *clock.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.Local.DBPath = filepath.Join(t.TempDir(), "tasks.db")
	cfg.Engine.ShutdownTimeout = time.Second

	fake := clock.NewFake(testNow)
	e, err := app.New(cfg, app.Options{Clock: fake})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	ctx := context.Background()
	if err := e.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	// Difficulty decreases with position so the default sort keeps the
	// given order.
	for i, title := range titles {
		if _, err := e.Coordinator().Create(ctx, backend.TaskDraft{Title: title, Urgency: 3, Difficulty: 5 - i}); err != nil {
			t.Fatalf("Create(%q) error = %v", title, err)
		}
	}
	return newModel(ctx, e, make(chan struct{}, 1)), e, fake
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(model), cmd
}

func titles(m model) []string {
	out := make([]string, len(m.items))
	for i, item := range m.items {
		out[i] = item.Task.Title
	}
	return out
}

func TestNewModelLoadsItems(t *testing.T) {
	m, _, _ := newTestModel(t, "first", "second")

	if got := titles(m); strings.Join(got, ",") != "first,second" {
		t.Errorf("items = %v", got)
	}
	if m.cursor != 0 || m.width != 80 {
		t.Errorf("cursor = %d, width = %d", m.cursor, m.width)
	}
	if m.Init() == nil {
		t.Error("Init() returned no command")
	}
}

func TestCursorMovementIsClamped(t *testing.T) {
	m, _, _ := newTestModel(t, "a", "b")

	m, _ = send(t, m, runes("k"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d after up at top", m.cursor)
	}
	m, _ = send(t, m, runes("j"))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestSpaceTogglesAndUndoes(t *testing.T) {
	m, e, fake := newTestModel(t, "a", "b")
	id := m.items[0].Task.ID

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if !m.items[0].Pending || !m.items[0].DisplayCompleted {
		t.Fatalf("item after toggle = %+v", m.items[0])
	}
	if !strings.Contains(m.status, "undo") {
		t.Errorf("status = %q", m.status)
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.items[0].Pending || m.status != "Undone" {
		t.Errorf("item after undo = %+v, status %q", m.items[0], m.status)
	}

	fake.Advance(e.Scheduler().Delay())
	if task, _ := e.Store().Task(id); task.Completed {
		t.Error("undone toggle was committed")
	}
}

func TestToggleCommitRemovesFromActiveView(t *testing.T) {
	m, e, fake := newTestModel(t, "a", "b")

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	fake.Advance(e.Scheduler().Delay())
	m, _ = send(t, m, storeChangedMsg{})

	if got := titles(m); len(got) != 1 || got[0] != "b" {
		t.Errorf("active items = %v, want [b]", got)
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if got := titles(m); len(got) != 1 || got[0] != "a" {
		t.Errorf("history items = %v, want [a]", got)
	}
	if !strings.Contains(m.View(), "history") {
		t.Error("header does not show the history view")
	}
}

func TestSortKeyCycles(t *testing.T) {
	m, e, _ := newTestModel(t, "a")

	want := []backend.SortKey{backend.SortUrgency, backend.SortDueDate, backend.SortNone, backend.SortDifficulty}
	for _, k := range want {
		m, _ = send(t, m, runes("s"))
		if got := e.Store().SortKey(); got != k {
			t.Fatalf("sort = %s, want %s", got, k)
		}
	}
}

func TestQuickAdd(t *testing.T) {
	m, e, _ := newTestModel(t)

	m, _ = send(t, m, runes("a"))
	if !m.snap.ShowCreateForm {
		t.Fatal("a did not open the input")
	}
	for _, r := range "buy milk" {
		m, _ = send(t, m, runes(string(r)))
	}
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.formOpen() || cmd == nil {
		t.Fatalf("enter: form open = %v, cmd = %v", m.formOpen(), cmd)
	}

	m, _ = send(t, m, cmd())
	if got := titles(m); len(got) != 1 || got[0] != "buy milk" {
		t.Errorf("items = %v", got)
	}
	if !strings.HasPrefix(m.status, "Added #") {
		t.Errorf("status = %q", m.status)
	}
	task := e.Store().Tasks()[0]
	if task.Urgency != quickAddUrgency || task.Difficulty != quickAddDifficulty {
		t.Errorf("task = %+v", task)
	}
}

func TestQuickAddEmptyAndCancel(t *testing.T) {
	m, e, _ := newTestModel(t)

	m, _ = send(t, m, runes("a"))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.status != "Title cannot be empty" {
		t.Errorf("empty title: cmd = %v, status = %q", cmd, m.status)
	}

	m, _ = send(t, m, runes("a"))
	m, _ = send(t, m, runes("x"))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.formOpen() || m.input.Value() != "" {
		t.Errorf("esc left form open = %v, value %q", m.formOpen(), m.input.Value())
	}
	if e.Store().Len() != 0 {
		t.Error("cancelled add created a task")
	}
}

func TestRenameSelected(t *testing.T) {
	m, e, _ := newTestModel(t, "first", "second")

	m, _ = send(t, m, runes("j"))
	m, _ = send(t, m, runes("e"))
	id := m.items[1].Task.ID
	if got, ok := e.Store().EditingID(); !ok || got != id {
		t.Fatalf("EditingID() = %d, %v, want %d", got, ok, id)
	}
	if m.input.Value() != "second" {
		t.Errorf("input = %q, want the current title", m.input.Value())
	}
	if !strings.Contains(m.View(), fmt.Sprintf("Rename #%d", id)) {
		t.Error("view does not show the rename prompt")
	}

	for _, r := range " draft" {
		m, _ = send(t, m, runes(string(r)))
	}
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	if _, ok := e.Store().EditingID(); ok {
		t.Error("editing still set after enter")
	}
	m, _ = send(t, m, cmd())
	if got, _ := e.Store().Task(id); got.Title != "second draft" {
		t.Errorf("title = %q, want %q", got.Title, "second draft")
	}
	if m.status != fmt.Sprintf("Renamed #%d", id) {
		t.Errorf("status = %q", m.status)
	}
}

func TestRenameCancel(t *testing.T) {
	m, e, _ := newTestModel(t, "only")

	m, _ = send(t, m, runes("e"))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.formOpen() {
		t.Fatal("esc did not close the rename input")
	}
	if got := e.Store().Tasks()[0].Title; got != "only" {
		t.Errorf("cancelled rename changed title to %q", got)
	}

	m, _ = send(t, m, runes("a"))
	if !m.snap.ShowCreateForm || m.snap.EditingID != 0 {
		t.Errorf("snapshot = create %v editing %d", m.snap.ShowCreateForm, m.snap.EditingID)
	}
}

func TestDeleteSelected(t *testing.T) {
	m, e, _ := newTestModel(t, "a", "b")

	m, _ = send(t, m, runes("j"))
	m, cmd := send(t, m, runes("d"))
	if cmd == nil {
		t.Fatal("d returned no command")
	}
	m, _ = send(t, m, cmd())

	if got := titles(m); len(got) != 1 || got[0] != "a" {
		t.Errorf("items = %v, want [a]", got)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want clamped to 0", m.cursor)
	}
	if e.Store().Len() != 1 {
		t.Errorf("store has %d tasks", e.Store().Len())
	}
}

func TestMoveSwitchesToManualOrder(t *testing.T) {
	m, e, _ := newTestModel(t, "a", "b", "c")

	m, _ = send(t, m, runes("j"))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyShiftUp})

	if e.Store().SortKey() != backend.SortNone {
		t.Errorf("sort = %s, want none", e.Store().SortKey())
	}
	if got := strings.Join(titles(m), ","); got != "b,a,c" {
		t.Errorf("order = %s, want b,a,c", got)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want to follow the moved row", m.cursor)
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyShiftUp})
	if got := strings.Join(titles(m), ","); got != "b,a,c" {
		t.Errorf("moving past the top changed the order: %s", got)
	}
}

func TestRefreshReportsOutcome(t *testing.T) {
	m, _, fake := newTestModel(t, "a")

	m, cmd := send(t, m, runes("r"))
	if cmd == nil {
		t.Fatal("r returned no command")
	}
	m, _ = send(t, m, cmd())
	if m.status != "Refresh skipped after a local change" {
		t.Errorf("status within the suppress window = %q", m.status)
	}

	fake.Advance(time.Second)
	_, cmd = send(t, m, runes("r"))
	m, _ = send(t, m, cmd())
	if m.status != "Refreshed" {
		t.Errorf("status = %q, want Refreshed", m.status)
	}
}

func TestErrorBannerAndClear(t *testing.T) {
	m, e, _ := newTestModel(t, "a")

	e.Store().SetError("remote unreachable")
	m, _ = send(t, m, storeChangedMsg{})
	if !strings.Contains(m.View(), "remote unreachable") {
		t.Error("error banner not shown")
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if strings.Contains(m.View(), "remote unreachable") {
		t.Error("esc did not clear the error")
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, cmd := send(t, m, runes("q"))
	if !m.quitting || cmd == nil {
		t.Errorf("quitting = %v, cmd = %v", m.quitting, cmd)
	}
	if m.View() != "" {
		t.Error("View() not empty after quit")
	}
}

func TestWindowSize(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.height != 40 || m.renderer.Width != 120 {
		t.Errorf("size = %dx%d, renderer width %d", m.width, m.height, m.renderer.Width)
	}
}
