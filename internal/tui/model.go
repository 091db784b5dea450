// Package tui is the terminal front end: it renders orchestrator snapshots
// and turns key presses into Select and Quit intents.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"gpflash/internal/orchestrator"
	"gpflash/pkg/types"
)

// Controller is the part of the orchestrator the UI drives.
type Controller interface {
	Select(index int) error
	Quit()
	Subscribe() (<-chan orchestrator.Snapshot, func())
}

type snapshotMsg struct{ snap orchestrator.Snapshot }

type closedMsg struct{}

type selectResultMsg struct{ err error }

type firmwareItem struct {
	fw    types.Firmware
	index int
}

func (i firmwareItem) Title() string { return i.fw.Name }

func (i firmwareItem) Description() string {
	parts := []string{}
	if i.fw.Version != "" {
		parts = append(parts, "v"+strings.TrimPrefix(i.fw.Version, "v"))
	}
	if i.fw.Board != "" {
		parts = append(parts, i.fw.Board)
	}
	if i.fw.LocalPath != "" {
		parts = append(parts, "cached")
	}
	return strings.Join(parts, " · ")
}

func (i firmwareItem) FilterValue() string { return i.fw.Name }

// Model is the bubbletea model.
type Model struct {
	ctrl    Controller
	updates <-chan orchestrator.Snapshot
	list    list.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	snap    orchestrator.Snapshot
	loaded  bool
	notice  string
	width   int
}

// New builds a Model reading snapshots from updates.
func New(ctrl Controller, updates <-chan orchestrator.Snapshot) Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "GP2040-CE firmware"
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)
	l.SetStatusBarItemName("image", "images")
	l.DisableQuitKeybindings()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		ctrl:    ctrl,
		updates: updates,
		list:    l,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitSnapshot(m.updates))
}

func waitSnapshot(ch <-chan orchestrator.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg{snap: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		h, v := docStyle.GetFrameSize()
		// room for the status block and help below the list
		m.list.SetSize(msg.Width-h, msg.Height-v-6)
		m.help.Width = msg.Width - h

	case snapshotMsg:
		m.apply(msg.snap)
		if msg.snap.State == orchestrator.StateTerminated {
			return m, tea.Quit
		}
		return m, waitSnapshot(m.updates)

	case closedMsg:
		return m, tea.Quit

	case selectResultMsg:
		m.notice = ""
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.notice = "Quitting..."
			ctrl := m.ctrl
			return m, func() tea.Msg {
				ctrl.Quit()
				return nil
			}
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Select):
			return m, m.selectCmd()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) apply(s orchestrator.Snapshot) {
	m.snap = s
	if !m.loaded && s.State != orchestrator.StateIdle {
		items := make([]list.Item, len(s.Firmware))
		for i, fw := range s.Firmware {
			items[i] = firmwareItem{fw: fw, index: i}
		}
		m.list.SetItems(items)
		if s.Cursor >= 0 && s.Cursor < len(items) {
			m.list.Select(s.Cursor)
		}
		m.loaded = true
	}
}

func (m Model) selectCmd() tea.Cmd {
	item, ok := m.list.SelectedItem().(firmwareItem)
	if !ok {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		return selectResultMsg{err: ctrl.Select(item.index)}
	}
}

func (m Model) busy() bool {
	if m.snap.State.Busy() || m.snap.State == orchestrator.StateIdle {
		return true
	}
	return strings.HasPrefix(m.snap.Progress, "Downloading")
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n\n")

	status := stateStyle.Render(string(m.snap.State))
	if m.busy() {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	if m.snap.Progress != "" {
		b.WriteString("  " + progressStyle.Render(m.snap.Progress))
	}
	b.WriteString("\n")
	if m.snap.Selected != nil {
		b.WriteString(fmt.Sprintf("Selected: %s  ", m.snap.Selected.Name))
	}
	b.WriteString(countStyle.Render(fmt.Sprintf("flashed %d · nuked %d", m.snap.Flashed, m.snap.Nuked)))
	b.WriteString("\n")
	if m.snap.Err != "" {
		b.WriteString(errorStyle.Render(m.snap.Err) + "\n")
	}
	if m.notice != "" {
		b.WriteString(progressStyle.Render(m.notice) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return docStyle.Render(b.String())
}

// Run shows the UI until the session terminates.
func Run(ctx context.Context, ctrl Controller, opts ...tea.ProgramOption) error {
	updates, cancel := ctrl.Subscribe()
	defer cancel()
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctrl, updates), opts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
