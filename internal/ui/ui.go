package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vishkrish200/spotify-organiser/internal/formatter"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
)

// ViewState represents the current view in the monitor.
type ViewState int

const (
	RunningView ViewState = iota
	ResultView
)

// RunFunc executes one ingest and reports progress through the channel.
// The monitor closes over it so restarts get a fresh library stream.
type RunFunc func(ctx context.Context, progress chan tasks.ProgressUpdate) (*tasks.IngestSummary, error)

type runOutcome struct {
	summary *tasks.IngestSummary
	err     error
}

// Model represents the monitor application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	run          RunFunc
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	done         chan runOutcome
	progress     tasks.ProgressUpdate
	recent       []string
	summary      *tasks.IngestSummary
	err          error
	width        int
	height       int
	help         help.Model
	keys         keyMap
}

// NewModel creates a monitor that will execute run once started.
func NewModel(ctx context.Context, run RunFunc) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.title

	return &Model{
		ctx:     ctx,
		view:    RunningView,
		run:     run,
		spinner: sp,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the ingest and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.startIngest(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case RunningView:
			return m.handleRunningKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			m.recent = append(m.recent, m.progress.Message)
			if len(m.recent) > 6 {
				m.recent = m.recent[len(m.recent)-6:]
			}
			return m, m.waitForProgress()

		case MsgIngestComplete:
			outcome := msg.data.(struct {
				summary *tasks.IngestSummary
				err     error
			})
			m.summary = outcome.summary
			m.err = outcome.err
			m.view = ResultView
			m.progressChan = nil
			return m, nil
		}
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case RunningView:
		return m.renderRunning()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleRunningKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "r":
		m.view = RunningView
		m.summary = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		m.recent = nil
		return m, tea.Batch(m.startIngest(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) startIngest() tea.Cmd {
	runCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan runOutcome, 1)

	progress := m.progressChan
	done := m.done
	go func() {
		summary, err := m.run(runCtx, progress)
		done <- runOutcome{summary: summary, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress := m.progressChan
	done := m.done
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			outcome := <-done
			return ingestCompleteMsg(outcome.summary, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderRunning() string {
	title := styles.title.Render("Ingesting Library")

	var phase string
	switch m.progress.Phase {
	case tasks.Admission:
		phase = "Checking skip conditions..."
	case tasks.FetchLibrary:
		phase = "Streaming saved tracks from Spotify..."
	case tasks.Enrich:
		phase = fmt.Sprintf("Enriching metadata (batch %d)", m.progress.Step)
	case tasks.Persist:
		phase = fmt.Sprintf("Persisting tracks (batch %d)", m.progress.Step)
	default:
		phase = "Starting..."
	}

	var log string
	for _, line := range m.recent {
		log += styles.help.Render("  "+line) + "\n"
	}

	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n\n%s %s\n\n%s\n%s", title, m.spinner.View(), phase, log, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView(m.keys.FullHelp()[0])

	if m.err != nil {
		body := styles.err.Render(fmt.Sprintf("Ingest failed: %v", m.err))
		return fmt.Sprintf("%s\n\n%s", body, helpView)
	}
	if m.summary == nil {
		body := styles.err.Render("No summary available")
		return fmt.Sprintf("%s\n\n%s", body, helpView)
	}

	return fmt.Sprintf("%s\n%s", formatter.RenderSummary(m.summary), helpView)
}
