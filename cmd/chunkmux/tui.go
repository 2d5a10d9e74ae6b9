package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chunkmux/chunkmux/engine"
	"github.com/chunkmux/chunkmux/internal/utils"
)

var (
	labelStyle = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("243"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// engineEventMsg wraps one engine.Event for bubbletea's message loop.
type engineEventMsg engine.Event

// engineClosedMsg is sent once the event channel closes.
type engineClosedMsg struct{}

type workerView struct {
	id       int
	progress progress.Model
	done     bool
	lastErr  string
}

type watchModel struct {
	total      int64
	downloaded int64
	workers    map[int]*workerView
	events     <-chan engine.Event
	finished   bool
}

func newWatchModel(h *engine.Handle, total int64) watchModel {
	return watchModel{
		total:   total,
		workers: map[int]*workerView{},
		events:  h.Events,
	}
}

// waitForEvent returns a tea.Cmd that reads exactly one Event off the
// channel, the standard bubbletea pattern for bridging an external channel
// into the Elm-style update loop.
func waitForEvent(events <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return engineClosedMsg{}
		}
		return engineEventMsg(e)
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m watchModel) workerFor(id int) *workerView {
	w, ok := m.workers[id]
	if !ok {
		w = &workerView{id: id, progress: progress.New(progress.WithDefaultGradient())}
		m.workers[id] = w
	}
	return w
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil

	case engineEventMsg:
		e := engine.Event(msg)
		switch e.Kind {
		case engine.EventWriteProgress:
			m.downloaded += e.Range.Len()
		case engine.EventFinished, engine.EventCancelled:
			m.workerFor(e.WorkerID).done = true
		case engine.EventReadError:
			m.workerFor(e.WorkerID).lastErr = e.Err.Error()
		case engine.EventWriteError:
			m.workerFor(e.WorkerID).lastErr = e.Err.Error()
		case engine.EventReading:
			m.workerFor(e.WorkerID)
		}
		return m, waitForEvent(m.events)

	case engineClosedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.downloaded) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s / %s\n\n",
		utils.ConvertBytesToHumanReadable(m.downloaded),
		utils.ConvertBytesToHumanReadable(m.total))

	for id := 0; id < len(m.workers); id++ {
		w, ok := m.workers[id]
		if !ok {
			continue
		}
		status := labelStyle.Render(fmt.Sprintf("worker %d", id))
		switch {
		case w.lastErr != "":
			b.WriteString(status + errorStyle.Render("retrying: "+w.lastErr) + "\n")
		case w.done:
			b.WriteString(status + doneStyle.Render("done") + "\n")
		default:
			b.WriteString(status + w.progress.ViewAs(pct) + "\n")
		}
	}

	if m.finished {
		b.WriteString("\n" + doneStyle.Render("transfer complete") + "\n")
	} else {
		b.WriteString("\n(ctrl+c to cancel)\n")
	}
	return b.String()
}

// runWatchView drives the bubbletea program until the event stream closes,
// returning the total bytes written. Quitting the view early (ctrl+c or q)
// cancels the engine.
func runWatchView(h *engine.Handle, total int64) int64 {
	m := newWatchModel(h, total)
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		fmt.Println("tui error:", err)
	}
	if fm, ok := final.(watchModel); ok {
		if !fm.finished {
			h.Cancel()
		}
		return fm.downloaded
	}
	return 0
}
