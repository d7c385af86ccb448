package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/pool"
)

// AgentPaneModel renders the agent roster with live state.
type AgentPaneModel struct {
	agents      []*pool.Agent
	selectedIdx int
	width       int
	height      int
	focused     bool
}

// NewAgentPaneModel creates an empty agent pane.
func NewAgentPaneModel() AgentPaneModel {
	return AgentPaneModel{}
}

// SetAgents replaces the roster with a fresh snapshot.
func (m *AgentPaneModel) SetAgents(agents []*pool.Agent) {
	m.agents = agents
	if m.selectedIdx >= len(agents) {
		m.selectedIdx = 0
	}
}

// Update handles key messages for the agent pane.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || !m.focused {
		return m, nil
	}

	switch key.String() {
	case KeyJ, KeyDown:
		if m.selectedIdx < len(m.agents)-1 {
			m.selectedIdx++
		}
	case KeyK, KeyUp:
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
	}
	return m, nil
}

// View renders the agent pane.
func (m AgentPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Agents")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if len(m.agents) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, agent := range m.agents {
		b.WriteString(m.renderAgent(agent, i == m.selectedIdx))
		b.WriteString("\n")
	}

	// The selected agent's detail line sits below the roster.
	if detail := m.renderDetail(); detail != "" {
		b.WriteString("\n")
		b.WriteString(detail)
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m AgentPaneModel) renderAgent(agent *pool.Agent, selected bool) string {
	icon := agentStateIcon(agent.State)
	task := agent.CurrentTask
	if task == "" {
		task = "-"
	}

	line := fmt.Sprintf("%s %-10s %s", icon, agent.Name, task)
	if agent.RestartCount > 0 {
		line += fmt.Sprintf(" (restarts: %d)", agent.RestartCount)
	}
	if selected {
		line = StyleSelected.Render(line)
	}
	return line
}

func (m AgentPaneModel) renderDetail() string {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.agents) {
		return ""
	}
	agent := m.agents[m.selectedIdx]
	return StyleHelp.Render(fmt.Sprintf("%s: %d completed, %d failed, heartbeat %s",
		agent.Name, agent.TasksCompleted, agent.TasksFailed,
		agent.LastHeartbeat.Format("15:04:05")))
}

// agentStateIcon returns a styled indicator for an agent state.
func agentStateIcon(state pool.State) string {
	switch state {
	case pool.StateWorking:
		return StyleStatusRunning.Render("●")
	case pool.StateFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SetSize updates the pane dimensions.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *AgentPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
