package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/tracker"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	HistoryView ViewState = iota
	TracksView
	RunDetailView
	ConfirmView
	RunView
	ResultView
)

// EntryReader reads the song log. [tracker.SongLog] satisfies it.
type EntryReader interface {
	Entries() ([]tracker.Entry, error)
}

// RunLister lists recorded runs. [repositories.RunRepository] satisfies it.
type RunLister interface {
	List(criteria map[string]any) ([]*models.Run, error)
}

// Engine performs a tracker pass. [tracker.Engine] satisfies it.
type Engine interface {
	Run(ctx context.Context, progress chan<- tracker.ProgressUpdate) (*tracker.RunResult, error)
}

// Options wires the TUI to its data. Runs and Engine are optional.
type Options struct {
	Log      EntryReader
	Runs     RunLister
	Engine   Engine
	DryRun   bool
	RunLimit int
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	opts         Options
	view         ViewState
	width        int
	height       int
	entryList    list.Model
	runList      list.Model
	trackList    list.Model
	showRuns     bool
	entries      []tracker.Entry
	runs         []*models.Run
	selectedRun  *models.Run
	progressChan chan tracker.ProgressUpdate
	done         chan Msg
	progress     tracker.ProgressUpdate
	bar          progress.Model
	result       *tracker.RunResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.RunLimit <= 0 {
		opts.RunLimit = 100
	}
	return &Model{
		ctx:       ctx,
		opts:      opts,
		view:      HistoryView,
		entryList: newList(nil, "Song Log"),
		runList:   newList(nil, "Runs"),
		trackList: newList(nil, "Tracks"),
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	return l
}

// Init loads the song log and run history.
func (m *Model) Init() tea.Cmd {
	return m.loadHistory()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, l := range []*list.Model{&m.entryList, &m.runList, &m.trackList} {
			l.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case TracksView:
			return m.handleTracksKeys(msg)
		case RunDetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgHistoryLoaded:
		d := msg.data.(historyData)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		m.entries = d.entries
		m.runs = d.runs
		m.entryList.SetItems(entryItems(d.entries))
		m.runList.SetItems(runItems(d.runs))
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tracker.ProgressUpdate)
		return m, waitForProgress(m.progressChan, m.done)

	case MsgRunComplete:
		d := msg.data.(runData)
		m.result = d.result
		m.err = d.err
		m.progressChan = nil
		m.done = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress r to reload, q to quit", m.err))
	}

	switch m.view {
	case HistoryView:
		return m.renderHistory()
	case TracksView:
		return m.renderTracks()
	case RunDetailView:
		return m.renderRunDetail()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) activeList() *list.Model {
	if m.showRuns {
		return &m.runList
	}
	return &m.entryList
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	active := m.activeList()
	if active.FilterState() == list.Filtering {
		var cmd tea.Cmd
		*active, cmd = active.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		return m, m.loadHistory()
	case key.Matches(msg, m.keys.tab):
		if m.opts.Runs != nil {
			m.showRuns = !m.showRuns
		}
		return m, nil
	case key.Matches(msg, m.keys.run):
		if m.opts.Engine != nil {
			m.view = ConfirmView
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		switch it := active.SelectedItem().(type) {
		case entryItem:
			m.trackList.SetItems(trackItems(it.entry))
			m.trackList.Title = fmt.Sprintf("Songs logged %s", it.Title())
			m.view = TracksView
		case runItem:
			m.selectedRun = it.run
			m.view = RunDetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	*active, cmd = active.Update(msg)
	return m, cmd
}

func (m *Model) handleTracksKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.back):
			m.view = HistoryView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.selectedRun = nil
		m.view = HistoryView
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		m.progress = tracker.ProgressUpdate{}
		return m, m.startRun()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = HistoryView
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload), key.Matches(msg, m.keys.back):
		m.view = HistoryView
		m.result = nil
		m.err = nil
		return m, m.loadHistory()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case HistoryView:
		active := m.activeList()
		*active, cmd = active.Update(msg)
	case TracksView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) loadHistory() tea.Cmd {
	reader, lister, limit := m.opts.Log, m.opts.Runs, m.opts.RunLimit
	return func() tea.Msg {
		var entries []tracker.Entry
		var runs []*models.Run
		var err error

		if reader != nil {
			if entries, err = reader.Entries(); err != nil {
				return historyLoadedMsg(nil, nil, err)
			}
		}
		if lister != nil {
			if runs, err = lister.List(map[string]any{"limit": limit}); err != nil {
				return historyLoadedMsg(nil, nil, err)
			}
		}
		return historyLoadedMsg(entries, runs, nil)
	}
}

func (m *Model) startRun() tea.Cmd {
	progressChan := make(chan tracker.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progressChan
	m.done = done

	engine, ctx := m.opts.Engine, m.ctx
	go func() {
		result, err := engine.Run(ctx, progressChan)
		close(progressChan)
		done <- runCompleteMsg(result, err)
	}()

	return waitForProgress(progressChan, done)
}

func waitForProgress(progressChan <-chan tracker.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		if update, ok := <-progressChan; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

// percent estimates overall run progress from the current phase and step.
func percent(u tracker.ProgressUpdate) float64 {
	const phases = float64(tracker.SaveCursor + 1)
	frac := 0.0
	if u.Total > 0 {
		frac = float64(u.Step) / float64(u.Total)
	}
	p := (float64(u.Phase) + frac) / phases
	if p > 1 {
		p = 1
	}
	return p
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.enter}
	if m.opts.Runs != nil {
		helpKeys = append(helpKeys, m.keys.tab)
	}
	if m.opts.Engine != nil {
		helpKeys = append(helpKeys, m.keys.run)
	}
	helpKeys = append(helpKeys, m.keys.reload, m.keys.quit)

	body := m.activeList().View()
	if len(m.activeList().Items()) == 0 {
		body = styles.title.Render(m.activeList().Title) + "\n" + styles.help.Render("Nothing recorded yet.")
	}
	return fmt.Sprintf("%s\n\n%s", body, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTracks() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderRunDetail() string {
	r := m.selectedRun
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status:    %s\n", styles.statusStyle(r.Status()).Render(r.Status()))
	fmt.Fprintf(&b, "Started:   %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if r.Finished() {
		fmt.Fprintf(&b, "Duration:  %s\n", r.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "Since:     %s\n", r.Since.Local().Format("2006-01-02 15:04:05"))
	if r.CursorAdvanced() {
		fmt.Fprintf(&b, "Cursor:    %s\n", r.CursorAfter.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Playlists: %d scanned, %d failed\n", r.PlaylistsScanned, r.PlaylistsFailed)
	fmt.Fprintf(&b, "Tracks:    %d found, %d added, %d batches failed\n", r.TracksFound, r.TracksAdded, r.BatchesFailed)
	if r.TargetPlaylistID != "" {
		fmt.Fprintf(&b, "Target:    %s\n           %s\n", r.TargetPlaylistName, r.PlaylistURL())
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error:     %s\n", styles.err.Render(r.Error))
	}

	title := styles.title.Render(fmt.Sprintf("Run #%d", r.Sequence()))
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.box.Render(strings.TrimRight(b.String(), "\n")), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	prompt := "Check source playlists for new songs now?"
	if m.opts.DryRun {
		prompt = "Check source playlists for new songs now? (dry run)"
	}
	title := styles.title.Render(prompt)
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n\n%s", title, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Tracking new songs")

	var phase string
	switch m.progress.Phase {
	case tracker.LoadCursor:
		phase = "Loading cursor..."
	case tracker.FetchPlaylists:
		phase = fmt.Sprintf("Reading playlists (%d/%d)", m.progress.Step, m.progress.Total)
	case tracker.WriteLog:
		phase = "Writing song log..."
	case tracker.ResolveTarget:
		phase = "Resolving target playlist..."
	case tracker.AddTracks:
		phase = fmt.Sprintf("Adding tracks (batch %d/%d)", m.progress.Step, m.progress.Total)
	case tracker.SaveCursor:
		phase = "Saving cursor..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, phase, m.progress.Message, m.bar.ViewAs(percent(m.progress)))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.reload, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Run failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	r := m.result
	var title string
	switch status := r.Record().Status(); status {
	case models.StatusOK:
		title = styles.ok.Render("✓ Run complete")
	case models.StatusDryRun:
		title = styles.ok.Render("✓ Dry run complete")
	default:
		title = styles.statusStyle(status).Render("Run finished: " + status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nSince: %s\n", r.Since.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "New songs: %d from %d playlists\n", len(r.URIs), len(r.Playlists))
	_ = formatter.WriteSummary(&b, r.Entry)

	if r.Target != nil {
		name := r.Target.Name
		if name == "" {
			name = r.Target.URL
		}
		fmt.Fprintf(&b, "\nAdded %d/%d to %s\n", r.Added, len(r.URIs), name)
	}
	if r.TargetErr != nil {
		b.WriteString("\n" + styles.err.Render(fmt.Sprintf("Target playlist: %v", r.TargetErr)) + "\n")
	}
	if len(r.Failures) > 0 {
		b.WriteString("\n" + styles.warn.Render(fmt.Sprintf("%d playlists failed:", len(r.Failures))))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "\n  • %s: %v", f.Source, f.Err)
		}
		b.WriteString("\n")
	}
	if n := r.FailedBatches(); n > 0 {
		b.WriteString("\n" + styles.warn.Render(fmt.Sprintf("%d add batches failed", n)) + "\n")
	}
	if r.CursorAdvanced {
		fmt.Fprintf(&b, "\nCursor saved at %s\n", r.CursorAfter.Local().Format("2006-01-02 15:04:05"))
	}

	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}
