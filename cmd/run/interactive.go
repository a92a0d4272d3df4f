package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/addon-bridge/gojahost"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxShown caps how many past evaluations the view renders.
const maxShown = 10

type replModel struct {
	host    *gojahost.Host
	exports []string
	input   textinput.Model
	entries []replEntry
	past    []string
	histPos int
	busy    bool
}

type replEntry struct {
	src    string
	result string
	err    error
}

type evalMsg struct {
	src    string
	result string
	err    error
}

func newReplModel(host *gojahost.Host, exports []string) *replModel {
	ti := textinput.New()
	ti.Placeholder = "require('demo').add(2, 3)"
	ti.Prompt = "js> "
	ti.Width = 60
	ti.Focus()
	return &replModel{
		host:    host,
		exports: exports,
		input:   ti,
	}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) evalCmd(src string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.host.RunScript(src)
		if err != nil {
			return evalMsg{src: src, err: err}
		}
		result := "undefined"
		if out != nil {
			result = fmt.Sprintf("%v", out)
		}
		return evalMsg{src: src, result: result}
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy {
				return m, nil
			}
			m.past = append(m.past, src)
			m.histPos = len(m.past)
			m.input.Reset()
			m.busy = true
			return m, m.evalCmd(src)

		case "up":
			if m.histPos > 0 {
				m.histPos--
				m.input.SetValue(m.past[m.histPos])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histPos < len(m.past) {
				m.histPos++
				if m.histPos == len(m.past) {
					m.input.Reset()
				} else {
					m.input.SetValue(m.past[m.histPos])
					m.input.CursorEnd()
				}
			}
			return m, nil

		case "esc":
			m.input.Reset()
			m.histPos = len(m.past)
			return m, nil
		}

	case evalMsg:
		m.entries = append(m.entries, replEntry{
			src:    msg.src,
			result: msg.result,
			err:    msg.err,
		})
		m.busy = false
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Addon REPL"))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render("require('demo') is installed"))
	b.WriteString("\n\n")

	if len(m.exports) > 0 {
		var names []string
		for _, name := range m.exports {
			names = append(names, funcStyle.Render(name))
		}
		b.WriteString("exports: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n\n")
	}

	entries := m.entries
	if len(entries) > maxShown {
		entries = entries[len(entries)-maxShown:]
	}
	for _, entry := range entries {
		b.WriteString(promptStyle.Render("js> "))
		b.WriteString(entry.src)
		b.WriteString("\n")
		if entry.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", entry.err)))
		} else {
			b.WriteString(resultStyle.Render(entry.result))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(helpStyle.Render("evaluating..."))
	} else {
		b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • esc clear • ctrl+d quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func runInteractive(host *gojahost.Host, exports []string) error {
	p := tea.NewProgram(newReplModel(host, exports), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
