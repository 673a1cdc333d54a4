package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/classkit/trace"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectMember modelState = iota
	stateFilter
	stateShowMember
)

type browserModel struct {
	filename string
	class    string
	header   string
	members  []trace.Member
	visible  []int
	filter   textinput.Model
	view     viewport.Model
	selected int
	width    int
	height   int
	state    modelState
}

func newBrowserModel(filename string, events []trace.Event) *browserModel {
	members := trace.Members(events)
	var header []trace.Event
	for _, e := range events {
		if e.Op == "VisitField" || e.Op == "VisitMethod" {
			break
		}
		header = append(header, e)
	}

	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.Width = 40

	m := &browserModel{
		filename: filename,
		class:    trace.ClassName(events),
		header:   trace.Format(header),
		members:  members,
		filter:   ti,
		view:     viewport.New(80, 20),
		state:    stateSelectMember,
	}
	m.applyFilter()
	return m
}

func (m *browserModel) Init() tea.Cmd {
	return nil
}

func (m *browserModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, mem := range m.members {
		if q == "" || strings.Contains(strings.ToLower(mem.String()), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 1)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateFilter:
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateSelectMember
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd

		case stateShowMember:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "esc", "enter":
				m.state = stateSelectMember
				return m, nil
			}
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.visible)-1 {
				m.selected++
			}
		case "/":
			m.state = stateFilter
			return m, m.filter.Focus()
		case "enter":
			if len(m.visible) > 0 {
				mem := m.members[m.visible[m.selected]]
				m.view.SetContent(trace.Format(mem.Events))
				m.view.GotoTop()
				m.state = stateShowMember
			}
		}
	}
	return m, nil
}

func (m *browserModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.class))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if m.state == stateShowMember {
		mem := m.members[m.visible[m.selected]]
		b.WriteString(m.formatMember(mem))
		b.WriteString("\n")
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
		return b.String()
	}

	b.WriteString(m.header)
	b.WriteString("\n")
	if m.state == stateFilter || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(helpStyle.Render("no matching members"))
		b.WriteString("\n")
	}
	for i, idx := range m.visible {
		line := m.formatMember(m.members[idx])
		if i == m.selected {
			line = selectedStyle.Render("> " + m.members[idx].String())
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("%d members • ↑/↓ select • enter show • / filter • q quit", len(m.members))))
	return b.String()
}

func (m *browserModel) formatMember(mem trace.Member) string {
	if mem.Method {
		return methodStyle.Render(mem.String())
	}
	return fieldStyle.Render(mem.String())
}

func runInteractive(filename string, events []trace.Event) error {
	p := tea.NewProgram(newBrowserModel(filename, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
