// Package ui renders a live dashboard of a transcode batch.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const refreshInterval = 500 * time.Millisecond

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    UIState
	source   func() UIState
	cancel   func()
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	workerStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg carries a fresh snapshot into the model.
type TUIUpdateMsg struct {
	State UIState
}

// NewTUIModel creates a dashboard that polls source for snapshots. cancel is
// called when the user quits before the batch is done.
func NewTUIModel(source func() UIState, cancel func()) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return TUIModel{
		state:        source(),
		source:       source,
		cancel:       cancel,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		workerStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) poll() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return TUIUpdateMsg{State: m.source()}
	})
}

func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.state.Done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)

	case TUIUpdateMsg:
		m.state = msg.State
		if m.state.Done {
			return m, tea.Quit
		}
		cmds = append(cmds, m.poll())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	st := m.state
	var sb strings.Builder

	header := fmt.Sprintf("%s gtrans %s", m.spinner.View(), m.titleStyle.Render("Transcode Batch"))
	sb.WriteString(header + "\n")

	var percent float64
	if st.TotalJobs > 0 {
		percent = float64(st.Finished()) / float64(st.TotalJobs)
	}

	info := fmt.Sprintf("ETA: %s | Workers: %d/%d | %d/%d done | %d failed | %s elapsed",
		formatETA(st.Finished(), st.TotalJobs, st.Elapsed),
		st.ActiveWorkers, st.MaxWorkers,
		st.Finished(), st.TotalJobs, st.Failed,
		formatDuration(st.Elapsed))
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	sb.WriteString("Workers:\n")
	var workers strings.Builder
	if len(st.Workers) == 0 {
		workers.WriteString(m.infoStyle.Render("Waiting for workers..."))
	}
	for _, w := range st.Workers {
		workers.WriteString(m.workerLine(w) + "\n")
	}
	m.viewport.SetContent(workers.String())
	sb.WriteString(m.viewport.View())

	help := m.helpStyle.Render("q/ctrl+c: cancel batch")
	switch {
	case st.Done && st.Err != nil:
		help = m.errorStyle.Render("Batch aborted: " + st.Err.Error())
	case st.Done:
		help = m.successStyle.Render("Batch complete!")
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func (m TUIModel) workerLine(w WorkerView) string {
	label := fmt.Sprintf("%02d %-3s", w.ID, w.Variant)
	switch {
	case w.Exited:
		return m.infoStyle.Render(label + " exited")
	case w.File == "":
		return m.infoStyle.Render(label + " idle")
	}

	file := truncate(filepath.Base(w.File), 40)
	line := truncate(w.LastLine, 60)
	return fmt.Sprintf("%s | %-40s | %8s | %s",
		m.workerStyle.Render(label), file, humanize.Bytes(uint64(w.Size)), m.infoStyle.Render(line))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// formatETA extrapolates the remaining time from the average time per
// finished job.
func formatETA(finished, total int, elapsed time.Duration) string {
	if finished == 0 || total == 0 || elapsed <= 0 {
		return "Calculating..."
	}

	remaining := total - finished
	if remaining <= 0 {
		return "0s"
	}

	d := elapsed / time.Duration(finished) * time.Duration(remaining)
	if d.Hours() > 24 {
		return "> 1d"
	}
	return formatDuration(d)
}

// Run shows the dashboard until the batch finishes or the user quits.
func Run(state *BatchState, cancel func(), opts ...tea.ProgramOption) error {
	p := tea.NewProgram(NewTUIModel(state.Snapshot, cancel), opts...)
	_, err := p.Run()
	return err
}
