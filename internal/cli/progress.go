package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"paperlens/internal/checkpoint"
	"paperlens/internal/workflow"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the task state.
type tickMsg time.Time

// doneMsg carries the final report once the run goroutine returns.
type doneMsg struct {
	report *workflow.Report
	err    error
}

// taskProgressModel is the bubbletea model for batch progress. It polls
// the in-process orchestrator; the run itself happens in a separate
// goroutine whose result arrives as a doneMsg.
type taskProgressModel struct {
	orch     *workflow.Orchestrator
	taskID   string
	wait     func() (*workflow.Report, error)
	state    workflow.Progress
	progress progress.Model
	theme    Theme
	report   *workflow.Report
	runErr   error
	stopping bool
	done     bool
}

func newTaskProgressModel(orch *workflow.Orchestrator, taskID string, wait func() (*workflow.Report, error)) taskProgressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return taskProgressModel{
		orch:     orch,
		taskID:   taskID,
		wait:     wait,
		progress: prog,
		theme:    defaultTheme,
	}
}

func (m taskProgressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForResult(),
		m.progress.Init(),
	)
}

func (m taskProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.stopping {
				// In-flight documents finish their current stage,
				// then the task pauses.
				m.stopping = true
				m.orch.Stop(m.taskID, checkpoint.StatusPaused)
			}
			return m, nil
		}

	case tickMsg:
		if p, err := m.orch.Progress(m.taskID); err == nil {
			m.state = p
		}
		return m, tickCmd()

	case doneMsg:
		m.done = true
		m.report = msg.report
		m.runErr = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m taskProgressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m taskProgressModel) renderContent() string {
	if m.done {
		return ""
	}
	if m.state.Total == 0 {
		return "Starting task...\n"
	}

	pct := float64(m.state.Done()) / float64(m.state.Total)

	status := string(m.state.Status)
	if m.stopping {
		status = "pausing"
	}
	statusLine := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", status))

	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d documents", m.state.Done(), m.state.Total)
	if m.state.Failed > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d failed)", m.state.Failed))
	}
	if m.state.Skipped > 0 {
		counts += fmt.Sprintf(" (%d skipped)", m.state.Skipped)
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to pause; resume later with 'paperlens resume'")
	if m.stopping {
		hint = m.theme.hintStyle().Render("Pausing after in-flight documents finish...")
	}

	return fmt.Sprintf("%s %s %s\n%s\n", statusLine, bar, counts, hint)
}

// waitForResult blocks on the run goroutine and delivers its outcome.
func (m taskProgressModel) waitForResult() tea.Cmd {
	return func() tea.Msg {
		report, err := m.wait()
		return doneMsg{report: report, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runTaskProgress runs the interactive progress UI for a task and
// returns the final report once the batch stops.
func runTaskProgress(orch *workflow.Orchestrator, taskID string, wait func() (*workflow.Report, error)) (*workflow.Report, error) {
	model := newTaskProgressModel(orch, taskID, wait)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(taskProgressModel)
	if !ok {
		return nil, fmt.Errorf("unexpected progress model type")
	}
	if m.runErr != nil {
		return nil, m.runErr
	}
	if m.report == nil {
		// UI exited before the run goroutine finished; wait it out.
		return wait()
	}
	return m.report, nil
}
