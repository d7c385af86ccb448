// Package tui renders the live run dashboard. It is strictly read-only:
// every frame is drawn from an orchestrator snapshot, and key presses
// never reach the scheduler.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/orchestrator"
	"github.com/aristath/foreman/internal/scheduler"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneAgents PaneID = iota
	PaneTasks
)

// refreshInterval is how often the dashboard re-snapshots the run.
const refreshInterval = 500 * time.Millisecond

// maxActivity bounds the recent-activity ring; older entries fall off.
const maxActivity = 50

// activityHeight is how many activity lines the footer shows.
const activityHeight = 6

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	agentPane   AgentPaneModel
	taskPane    TaskPaneModel
	focusedPane PaneID
	snapshotFn  func() orchestrator.Snapshot
	eventSub    <-chan events.Event
	snapshot    orchestrator.Snapshot
	activity    []string
	lastAlert   string
	width       int
	height      int
	quitting    bool
}

// New creates a dashboard over the given snapshot source. The bus
// subscription feeds the activity log and the alert line; all tables
// come from snapshots.
func New(snapshotFn func() orchestrator.Snapshot, bus *events.Bus) Model {
	m := Model{
		agentPane:   NewAgentPaneModel(),
		taskPane:    NewTaskPaneModel(),
		focusedPane: PaneAgents,
		snapshotFn:  snapshotFn,
	}
	if bus != nil {
		m.eventSub = bus.SubscribeAll(256)
	}
	return m
}

type refreshMsg time.Time

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Init starts the refresh ticker and the event wait.
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshTick(), waitForEvent(m.eventSub))
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneAgents
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		default:
			switch m.focusedPane {
			case PaneAgents:
				var cmd tea.Cmd
				m.agentPane, cmd = m.agentPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneTasks:
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case refreshMsg:
		m.snapshot = m.snapshotFn()
		m.agentPane.SetAgents(m.snapshot.Agents)
		m.taskPane.SetTasks(m.snapshot.Tasks)
		cmds = append(cmds, refreshTick())

	case events.TaskStartedEvent:
		m.pushActivity(msg.Timestamp, fmt.Sprintf("%s started on agent-%d", msg.ID, msg.AgentID))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TaskCompletedEvent:
		m.pushActivity(msg.Timestamp, fmt.Sprintf("%s completed in %s", msg.ID, msg.Duration.Round(100*time.Millisecond)))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TaskFailedEvent:
		m.pushActivity(msg.Timestamp, fmt.Sprintf("%s failed: %s", msg.ID, msg.Reason))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.AgentAssignedEvent:
		m.pushActivity(msg.Timestamp, fmt.Sprintf("%s assigned to %s", msg.Task, msg.AgentName))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.AgentRestartedEvent:
		m.lastAlert = fmt.Sprintf("%s restarted (attempt %d), task %s lost",
			msg.AgentName, msg.RestartCount, msg.LostTask)
		m.pushActivity(msg.Timestamp, m.lastAlert)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.AgentLostEvent:
		m.pushActivity(msg.Timestamp, fmt.Sprintf("%s permanently lost", msg.AgentName))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.HealthAlertEvent:
		m.lastAlert = fmt.Sprintf("ALERT %s: %s", msg.AgentName, msg.Reason)
		m.pushActivity(msg.Timestamp, m.lastAlert)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.ProgressEvent:
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// pushActivity appends one line to the activity ring, evicting the
// oldest entries past maxActivity.
func (m *Model) pushActivity(ts time.Time, line string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	m.activity = append(m.activity, fmt.Sprintf("%s  %s", ts.Format("15:04:05"), line))
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := m.headerView()
	left := m.agentPane.View()
	right := m.taskPane.View()
	main := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, header, main, m.activityView(), HelpView())
}

// headerView renders the one-line run summary with the latest alert.
func (m Model) headerView() string {
	var completed, failed, running int
	for _, t := range m.snapshot.Tasks {
		switch t.Status {
		case scheduler.StatusCompleted:
			completed++
		case scheduler.StatusFailed:
			failed++
		case scheduler.StatusRunning, scheduler.StatusAssigned:
			running++
		}
	}

	line := fmt.Sprintf(" foreman | %s | %d/%d done, %d failed, %d running",
		m.snapshot.State, completed, len(m.snapshot.Tasks), failed, running)
	if m.lastAlert != "" {
		line += " | " + StyleStatusFailed.Render(m.lastAlert)
	}
	return StyleTitle.Render(line)
}

// activityView renders the newest activity lines as a footer.
func (m Model) activityView() string {
	lines := m.activity
	if len(lines) > activityHeight {
		lines = lines[len(lines)-activityHeight:]
	}
	content := strings.Join(lines, "\n")
	if content == "" {
		content = StyleStatusPending.Render("No activity yet")
	}
	return StyleUnfocusedBorder.
		Width(m.width - 2).
		Height(activityHeight).
		Render(content)
}

// computeLayout calculates pane dimensions and updates both children.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 40) / 100
	rightWidth := m.width - leftWidth
	// Header, help bar, and the activity footer with its border.
	availableHeight := m.height - 2 - (activityHeight + 2)

	m.agentPane.SetSize(leftWidth, availableHeight)
	m.taskPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of both panes.
func (m *Model) updateFocusStates() {
	m.agentPane.SetFocused(m.focusedPane == PaneAgents)
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
}
