package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is the result of one scan as shown by the watch dashboard
type Snapshot struct {
	Time    time.Time
	Clients []ClientRow
	Hosts   []HostRow
}

// ScanFunc performs one scan. It is called from a Bubble Tea command, off
// the update loop.
type ScanFunc func() Snapshot

// Messages for async operations
type scanCompleteMsg struct {
	snapshot Snapshot
}

// tickMsg requests the next periodic scan. gen ties it to the scan that
// scheduled it so a manual rescan does not start a second timer chain.
type tickMsg struct {
	gen int
}

// watchKeyMap defines key bindings for the watch dashboard
type watchKeyMap struct {
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Rescan, k.Quit}}
}

// WatchModel is a live dashboard that rescans on an interval
type WatchModel struct {
	scan     ScanFunc
	interval time.Duration

	snapshot Snapshot
	scans    int
	scanning bool
	gen      int

	Width   int
	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap
}

// NewWatchModel creates a dashboard calling scan every interval
func NewWatchModel(scan ScanFunc, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		scan:     scan,
		interval: interval,
		Width:    GetTerminalWidth(),
		Spinner:  s,
		Help:     help.New(),
		Keys: watchKeyMap{
			Rescan: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "rescan"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init starts the first scan
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.runScan(), m.Spinner.Tick)
}

func (m WatchModel) runScan() tea.Cmd {
	scan := m.scan
	return func() tea.Msg {
		return scanCompleteMsg{snapshot: scan()}
	}
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Rescan):
			if m.scanning {
				return m, nil
			}
			m.scanning = true
			return m, tea.Batch(m.runScan(), m.Spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width

	case scanCompleteMsg:
		m.scanning = false
		m.snapshot = msg.snapshot
		m.scans++
		m.gen++
		gen := m.gen
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{gen: gen} })

	case tickMsg:
		if msg.gen != m.gen || m.scanning {
			return m, nil
		}
		m.scanning = true
		return m, tea.Batch(m.runScan(), m.Spinner.Tick)

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Scanning reports whether a scan is in flight
func (m WatchModel) Scanning() bool {
	return m.scanning
}

// Scans returns how many scans have completed
func (m WatchModel) Scans() int {
	return m.scans
}

// View renders the dashboard
func (m WatchModel) View() string {
	var b strings.Builder

	title := HeaderTitleStyle.Render("WRTPRESENCE WATCH")
	status := MutedStyle.Render(fmt.Sprintf("every %s", m.interval))
	if m.scanning {
		status = m.Spinner.View() + " scanning..."
	} else if !m.snapshot.Time.IsZero() {
		status += MutedStyle.Render(" • last scan " + m.snapshot.Time.Format("15:04:05"))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", status))
	b.WriteString("\n\n")

	if m.scans == 0 {
		b.WriteString(MutedStyle.Render("  Waiting for first scan..."))
		b.WriteString("\n")
	} else {
		hosts := make([][]string, 0, len(m.snapshot.Hosts))
		for _, h := range m.snapshot.Hosts {
			hosts = append(hosts, []string{h.Device, h.Host, RenderStatus(h.Status), fmt.Sprint(h.Clients)})
		}
		b.WriteString(renderTable([]string{"DEVICE", "HOST", "STATUS", "CLIENTS"}, hosts))
		b.WriteString("\n")

		clients := make([][]string, 0, len(m.snapshot.Clients))
		for _, c := range m.snapshot.Clients {
			clients = append(clients, []string{c.MAC, dash(c.Hostname), dash(c.Vendor)})
		}
		b.WriteString(renderTable([]string{"MAC", "HOSTNAME", "VENDOR"}, clients))
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(plural(len(m.snapshot.Clients), "client") + " associated"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.Help.View(m.Keys))
	return b.String()
}
