package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/foreman/internal/scheduler"
)

// TaskPaneModel renders the task table in a scrollable viewport.
type TaskPaneModel struct {
	tasks    []*scheduler.Task
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{viewport: viewport.New(0, 0)}
}

// SetTasks replaces the table with a fresh snapshot.
func (m *TaskPaneModel) SetTasks(tasks []*scheduler.Task) {
	m.tasks = tasks
	m.viewport.SetContent(m.renderTable())
}

// Update delegates scrolling keys to the viewport.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); !ok || !m.focused {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 7))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m TaskPaneModel) renderTable() string {
	if len(m.tasks) == 0 {
		return StyleStatusPending.Render("No tasks loaded")
	}

	var b strings.Builder
	for _, task := range m.tasks {
		agent := "-"
		if task.AssignedAgent != scheduler.NoAgent {
			agent = fmt.Sprintf("agent-%d", task.AssignedAgent)
		}
		duration := ""
		if !task.StartedAt.IsZero() && !task.CompletedAt.IsZero() {
			duration = task.CompletedAt.Sub(task.StartedAt).Round(100 * time.Millisecond).String()
		}

		b.WriteString(fmt.Sprintf("%s %-8s %-24s %-9s %s\n",
			taskStatusIcon(task.Status), task.ID, truncate(task.Name, 24), agent, duration))
	}
	return b.String()
}

// taskStatusIcon returns a styled indicator for a task status.
func taskStatusIcon(status scheduler.Status) string {
	switch status {
	case scheduler.StatusRunning, scheduler.StatusAssigned:
		return StyleStatusRunning.Render("●")
	case scheduler.StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case scheduler.StatusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h

	vpWidth := w - 4
	vpHeight := h - 5
	if vpWidth < 10 {
		vpWidth = 10
	}
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
