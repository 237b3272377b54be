// Command scarlettmon is a terminal dashboard for one attached Scarlett
// interface: per-output volume and mute state, sync lock, and meter levels,
// refreshed on a tick.
//
// Grounded on the teacher's bubbletea dashboard (internal/cli/ui/ui.go):
// a tea.Model driven by tea.Tick messages, lipgloss-styled header/body
// panes, rendered with tea.WithAltScreen.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/focusrite-scarlett/ctld/internal/driver/device"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#34D399")).
			Bold(true).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	lockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399"))
	unlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	meterLabelStyle = lipgloss.NewStyle().Padding(0, 1)
)

func volumeTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.BorderForeground(lipgloss.Color("#34D399")).Bold(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#34D399"))
	return s
}

type tickMsg time.Time

type refreshMsg struct {
	info   device.Info
	vol    []int
	mute   []bool
	meters []uint16
	err    error
}

type model struct {
	dev     *device.Device
	info    device.Info
	vol     []int
	mute    []bool
	meters  []uint16
	table   table.Model
	bars    []progress.Model
	lastErr error
}

func newModel(dev *device.Device) model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Out", Width: 4},
			{Title: "Volume", Width: 8},
			{Title: "Mute", Width: 6},
		}),
		table.WithFocused(false),
	)
	t.SetStyles(volumeTableStyles())
	return model{dev: dev, table: t}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickEvery(), doRefresh(m.dev))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(tickEvery(), doRefresh(m.dev))
	case refreshMsg:
		m.info = msg.info
		if msg.err == nil {
			m.vol = msg.vol
			m.mute = msg.mute
			m.meters = msg.meters
			m.table.SetRows(volumeRows(m.vol, m.mute))
			m.table.SetHeight(len(m.vol) + 1)
			for len(m.bars) < len(m.meters) {
				m.bars = append(m.bars, progress.New(progress.WithDefaultGradient()))
			}
		}
		m.lastErr = msg.err
		return m, nil
	}
	return m, nil
}

func volumeRows(vol []int, mute []bool) []table.Row {
	rows := make([]table.Row, len(vol))
	for i, v := range vol {
		muted := "no"
		if i < len(mute) && mute[i] {
			muted = "yes"
		}
		rows[i] = table.Row{fmt.Sprintf("%d", i), fmt.Sprintf("%d", v), muted}
	}
	return rows
}

func (m model) View() string {
	sync := unlockedStyle.Render("UNLOCKED")
	if m.info.SyncLocked {
		sync = lockedStyle.Render("LOCKED")
	}
	header := headerStyle.Render(fmt.Sprintf(" %s  gen %d  sync: ", m.info.Name, m.info.Gen)) + sync

	meters := ""
	for i, level := range m.meters {
		pct := float64(level) / 65535.0
		bar := m.bars[i].ViewAs(pct)
		meters += meterLabelStyle.Render(fmt.Sprintf("meter %-2d %s\n", i, bar))
	}

	footer := footerStyle.Render("q to quit")
	if m.lastErr != nil {
		footer = unlockedStyle.Render(fmt.Sprintf("refresh error: %v", m.lastErr))
	}

	return header + "\n\n" + m.table.View() + "\n\n" + meters + "\n" + footer + "\n"
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func doRefresh(dev *device.Device) tea.Cmd {
	return func() tea.Msg {
		if err := dev.RefreshStale(); err != nil {
			return refreshMsg{info: dev.Info(), err: err}
		}
		dev.Store.Mu.Lock()
		vol := append([]int(nil), dev.Store.Vol...)
		mute := append([]bool(nil), dev.Store.MuteSwitch...)
		dev.Store.Mu.Unlock()

		var meters []uint16
		if dev.Model.MeterCount > 0 {
			if levels, err := dev.Control.MeterLevels(dev.Model.MeterCount); err == nil {
				meters = levels
			}
		}
		return refreshMsg{info: dev.Info(), vol: vol, mute: mute, meters: meters}
	}
}

func main() {
	productID := flag.Uint("product", 0, "USB product ID (0 = first recognised device)")
	flag.Parse()

	dev, err := attach(uint16(*productID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	p := tea.NewProgram(newModel(dev), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func attach(productID uint16) (*device.Device, error) {
	if productID != 0 {
		return device.Open(registry.VendorID, productID)
	}
	for pid := range registry.ByProductID {
		if d, err := device.Open(registry.VendorID, pid); err == nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no supported Scarlett interface found")
}
