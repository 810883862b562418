// Package tui is the interactive task list: a bubbletea program over the
// engine that re-renders whenever the store changes.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"priorityforge/backend"
	"priorityforge/internal/app"
	"priorityforge/internal/state"
	"priorityforge/internal/utils"
	"priorityforge/internal/views"
)

// Quick-added tasks start in the middle of both scales.
const (
	quickAddUrgency    = 3
	quickAddDifficulty = 3
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
)

type storeChangedMsg struct{}

type tickMsg time.Time

// opDoneMsg reports the end of a backend operation started by a key.
type opDoneMsg struct {
	op   string
	info string
	err  error
}

type model struct {
	ctx      context.Context
	engine   *app.Engine
	changes  <-chan struct{}
	keys     keyMap
	help     help.Model
	input    textinput.Model
	renderer views.Renderer

	snap     state.Snapshot
	items    []views.Item
	cursor   int
	status   string
	width    int
	height   int
	quitting bool
}

func newModel(ctx context.Context, e *app.Engine, changes <-chan struct{}) model {
	ti := textinput.New()
	ti.Placeholder = "New task title..."
	ti.CharLimit = 200
	ti.Width = 50

	m := model{
		ctx:      ctx,
		engine:   e,
		changes:  changes,
		keys:     defaultKeyMap(),
		help:     help.New(),
		input:    ti,
		renderer: views.Renderer{Colorize: true},
		width:    80,
		height:   24,
	}
	m.reload()
	return m
}

// Run starts the interactive list and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, e *app.Engine) error {
	changes := make(chan struct{}, 1)
	unsubscribe := e.Store().OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	p := tea.NewProgram(newModel(ctx, e, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running task list: %w", err)
	}
	return nil
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// tick re-renders once a minute so relative date labels roll over.
func tick() tea.Cmd {
	return tea.Tick(time.Minute, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.changes), tick())
}

func (m *model) reload() {
	m.snap = m.engine.Store().Snapshot()
	m.items = views.ProjectSnapshot(m.snap, m.engine.Clock())
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// formOpen reports whether the title input is shown, either for a new
// task or for renaming the edited one.
func (m model) formOpen() bool {
	return m.snap.ShowCreateForm || m.snap.EditingID != 0
}

func (m *model) openForm(value string) tea.Cmd {
	m.status = ""
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.reload()
	return m.input.Focus()
}

func (m *model) closeForm() {
	store := m.engine.Store()
	store.SetShowCreateForm(false)
	store.StopEditing()
	m.input.Reset()
	m.input.Blur()
	m.reload()
}

func (m model) selected() (views.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return views.Item{}, false
	}
	return m.items[m.cursor], true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer.Width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case storeChangedMsg:
		m.reload()
		return m, waitForChange(m.changes)

	case tickMsg:
		m.reload()
		return m, tick()

	case opDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %s", msg.op, utils.UserMessage(msg.err))
		} else {
			m.status = msg.info
		}
		m.reload()
		return m, nil

	case tea.KeyMsg:
		if m.formOpen() {
			return m.updateForm(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		title := strings.TrimSpace(m.input.Value())
		editing := m.snap.EditingID
		m.closeForm()
		if title == "" {
			m.status = "Title cannot be empty"
			return m, nil
		}
		if editing != 0 {
			return m, m.renameCmd(editing, title)
		}
		return m, m.createCmd(title)

	case key.Matches(msg, m.keys.Cancel):
		m.closeForm()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	store := m.engine.Store()

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		res, err := m.engine.Toggle(item.Task.ID)
		switch {
		case err != nil:
			m.status = utils.UserMessage(err)
		case !res.Pending:
			m.status = "Undone"
		case res.Intended:
			m.status = "Marked done, space to undo"
		default:
			m.status = "Marked not done, space to undo"
		}

	case key.Matches(msg, m.keys.View):
		next := backend.ViewHistory
		if store.View() == backend.ViewHistory {
			next = backend.ViewActive
		}
		store.SetView(next)
		m.cursor = 0

	case key.Matches(msg, m.keys.Sort):
		store.SetSortKey(store.SortKey().Next())

	case key.Matches(msg, m.keys.Delete):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.deleteCmd(item.Task.ID)

	case key.Matches(msg, m.keys.Add):
		store.StopEditing()
		store.SetShowCreateForm(true)
		cmd := m.openForm("")
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		item, ok := m.selected()
		if !ok || !store.StartEditing(item.Task.ID) {
			return m, nil
		}
		store.SetShowCreateForm(false)
		cmd := m.openForm(item.Task.Title)
		return m, cmd

	case key.Matches(msg, m.keys.MoveUp):
		m.move(-1)

	case key.Matches(msg, m.keys.MoveDown):
		m.move(1)

	case key.Matches(msg, m.keys.Refresh):
		m.status = "Refreshing..."
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Cancel):
		store.ClearError()
		m.status = ""
	}

	m.reload()
	return m, nil
}

// move swaps the selected row with its neighbour. The list switches to the
// manual order so the swap stays visible.
func (m *model) move(delta int) {
	j := m.cursor + delta
	if len(m.items) == 0 || j < 0 || j >= len(m.items) {
		return
	}
	ids := make([]int64, len(m.items))
	for i, item := range m.items {
		ids[i] = item.Task.ID
	}
	ids[m.cursor], ids[j] = ids[j], ids[m.cursor]

	store := m.engine.Store()
	if store.SortKey() != backend.SortNone {
		store.SetSortKey(backend.SortNone)
	}
	m.engine.Coordinator().Reorder(ids)
	m.cursor = j
}

func (m model) createCmd(title string) tea.Cmd {
	ctx, coord := m.ctx, m.engine.Coordinator()
	return func() tea.Msg {
		t, err := coord.Create(ctx, backend.TaskDraft{
			Title:      title,
			Urgency:    quickAddUrgency,
			Difficulty: quickAddDifficulty,
		})
		return opDoneMsg{op: "Add", info: fmt.Sprintf("Added #%d", t.ID), err: err}
	}
}

func (m model) renameCmd(id int64, title string) tea.Cmd {
	ctx, coord := m.ctx, m.engine.Coordinator()
	return func() tea.Msg {
		_, err := coord.Update(ctx, id, backend.TaskPatch{Title: &title})
		return opDoneMsg{op: "Rename", info: fmt.Sprintf("Renamed #%d", id), err: err}
	}
}

func (m model) deleteCmd(id int64) tea.Cmd {
	ctx, coord := m.ctx, m.engine.Coordinator()
	return func() tea.Msg {
		err := coord.Delete(ctx, id)
		return opDoneMsg{op: "Delete", info: fmt.Sprintf("Deleted #%d", id), err: err}
	}
}

func (m model) refreshCmd() tea.Cmd {
	ctx, coord := m.ctx, m.engine.Coordinator()
	return func() tea.Msg {
		applied, err := coord.Refresh(ctx)
		info := "Refreshed"
		if !applied {
			info = "Refresh skipped after a local change"
		}
		return opDoneMsg{op: "Refresh", info: info, err: err}
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("PriorityForge"))
	s.WriteString("  ")
	header := fmt.Sprintf("%s · %s · sort: %s", m.snap.Source, m.snap.View, m.snap.Sort)
	if m.snap.Loading {
		header += " · loading..."
	}
	s.WriteString(headerStyle.Render(header))
	s.WriteString("\n")
	if m.snap.Error != "" {
		s.WriteString(errorStyle.Render("! " + m.snap.Error))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(m.items) == 0 {
		s.WriteString(headerStyle.Render("No tasks."))
		s.WriteString("\n")
	}
	for i, item := range m.items {
		selected := i == m.cursor
		if selected {
			s.WriteString(cursorStyle.Render("> "))
		} else {
			s.WriteString("  ")
		}
		s.WriteString(m.renderer.RenderItem(item, selected))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.formOpen() {
		if m.snap.EditingID != 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf("Rename #%d ", m.snap.EditingID)))
		}
		s.WriteString(m.input.View())
		s.WriteString("\n")
	}
	if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n")
	}
	s.WriteString(m.help.View(m.keys))
	return s.String()
}
