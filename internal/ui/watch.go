package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/registry"
	"github.com/muurk/bacscan/internal/session"
)

// Messages fed to the watch view from session observer hooks
type sendMsg struct{ count int }

type peerMsg struct {
	peer    registry.Peer
	outcome registry.Outcome
}

type eventMsg struct{ text string }

type doneMsg struct{ err error }

// maxWatchLines bounds the live peer list; the full table is printed to
// stdout when the session ends
const maxWatchLines = 12

// WatchModel is a live view of a running session
type WatchModel struct {
	title  string
	budget int // Total sends; 0 when repeating until cancelled
	cancel context.CancelFunc

	spinner spinner.Model
	bar     progress.Model

	sends      int
	devices    int
	duplicates int
	lines      []string
	status     string
	stopping   bool
	done       bool
	err        error
}

// NewWatchModel creates the view. cancel is called when the user quits.
func NewWatchModel(title string, budget int, cancel context.CancelFunc) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		title:   title,
		budget:  budget,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopping && m.cancel != nil {
				m.cancel()
			}
			m.stopping = true
		}

	case sendMsg:
		m.sends = msg.count

	case peerMsg:
		switch msg.outcome {
		case registry.OutcomeAdded:
			m.devices++
		case registry.OutcomeDuplicate:
			m.devices++
			m.duplicates++
		}
		m.lines = append(m.lines, renderPeerLine(msg.peer, msg.outcome))
		if len(m.lines) > maxWatchLines {
			m.lines = m.lines[len(m.lines)-maxWatchLines:]
		}

	case eventMsg:
		m.status = msg.text

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	state := m.spinner.View()
	switch {
	case m.done:
		state = SuccessMarker
	case m.stopping:
		state = KnownMarker
	}
	fmt.Fprintf(&b, "%s %s\n", StatusStyle.Render(state), HeaderTitleStyle.Render(m.title))

	sends := fmt.Sprintf("Sent %d", m.sends)
	if m.budget > 0 {
		pct := float64(m.sends) / float64(m.budget)
		if pct > 1 {
			pct = 1
		}
		sends = fmt.Sprintf("%s  %d/%d", m.bar.ViewAs(pct), m.sends, m.budget)
	}
	fmt.Fprintf(&b, "%s\n", StatusStyle.Render(sends))
	fmt.Fprintf(&b, "%s\n", StatusStyle.Render(fmt.Sprintf("Devices: %d   Duplicates: %d", m.devices, m.duplicates)))

	if len(m.lines) > 0 {
		b.WriteString("\n")
		for _, l := range m.lines {
			b.WriteString("  " + l + "\n")
		}
	}
	if m.status != "" {
		fmt.Fprintf(&b, "\n%s\n", ErrorMessageStyle.Render("  "+m.status))
	}
	if !m.done {
		help := "q: stop"
		if m.stopping {
			help = "stopping..."
		}
		fmt.Fprintf(&b, "\n%s\n", HelpStyle.Render(help))
	}
	return b.String()
}

func renderPeerLine(p registry.Peer, outcome registry.Outcome) string {
	text := fmt.Sprintf("%-7d %s  apdu %d", p.DeviceID, p.Address, p.MaxAPDU)
	switch outcome {
	case registry.OutcomeAdded:
		return PeerAddedStyle.Render(SuccessMarker + " " + text)
	case registry.OutcomeDuplicate:
		return PeerDuplicateStyle.Render(DuplicateMarker + " " + text + "  (duplicate)")
	default:
		return PeerKnownStyle.Render(KnownMarker + " " + text)
	}
}

// Watch runs a WatchModel in the background while a session runs
type Watch struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// StartWatch starts the view on out
func StartWatch(out io.Writer, model WatchModel) *Watch {
	w := &Watch{
		program: tea.NewProgram(model, tea.WithOutput(out)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		_, w.err = w.program.Run()
	}()
	return w
}

// Observer returns session hooks that update the view
func (w *Watch) Observer() session.Observer {
	return session.Observer{
		OnSend: func(n int) { w.program.Send(sendMsg{count: n}) },
		OnPeer: func(p registry.Peer, o registry.Outcome) {
			w.program.Send(peerMsg{peer: p, outcome: o})
		},
		OnEvent: func(ev bacnet.Event) {
			switch ev.(type) {
			case bacnet.AbortEvent, bacnet.RejectEvent:
				w.program.Send(eventMsg{text: fmt.Sprint(ev)})
			}
		},
	}
}

// Finish tells the view the session ended and waits for it to exit
func (w *Watch) Finish(err error) error {
	w.program.Send(doneMsg{err: err})
	<-w.done
	return w.err
}
