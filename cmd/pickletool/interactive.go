package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/picklebridge/command"
)

var paneStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444"))

var focusedPaneStyle = paneStyle.
	BorderForeground(lipgloss.Color("#7D56F4"))

// report is what inspect shows: the disassembly of a command and, when a
// data stream was given, the value it decodes to.
type report struct {
	title   string
	disasm  string
	value   string
	err     error
	hasData bool
	size    int
	data    int
}

func buildReport(e *env, title string, cmd command.Command, data []byte) report {
	r := report{title: title, size: len(cmd), data: len(data), hasData: data != nil}

	ins, err := command.Disassemble(cmd)
	if err != nil {
		r.err = err
		return r
	}
	lines := make([]string, len(ins))
	for i, in := range ins {
		lines[i] = e.styles.instruction(in)
	}
	r.disasm = strings.Join(lines, "\n")

	if !r.hasData {
		return r
	}
	eng, cd := e.codec()
	defer cd.Close()
	v, err := cd.Unpickle(cmd, data)
	if err != nil {
		r.err = err
		return r
	}
	out, err := json.MarshalIndent(eng.ToGo(v), "", "  ")
	eng.Free(v)
	if err != nil {
		r.err = err
		return r
	}
	r.value = string(out)
	return r
}

func (r report) header(s styles) string {
	h := s.title("pickletool inspect") + " " + r.title +
		fmt.Sprintf("  command %d bytes", r.size)
	if r.hasData {
		h += fmt.Sprintf(", data %d bytes", r.data)
	}
	return h
}

func (r report) valueText(s styles) string {
	switch {
	case r.err != nil:
		return s.err("Error: " + r.err.Error())
	case !r.hasData:
		return s.help("no data stream (use -data)")
	}
	return r.value
}

type inspectModel struct {
	report report
	styles styles
	left   viewport.Model
	right  viewport.Model
	focus  int
	ready  bool
	width  int
	height int
}

func newInspectModel(r report, s styles) *inspectModel {
	return &inspectModel{report: r, styles: s}
}

func (m *inspectModel) Init() tea.Cmd { return nil }

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "tab":
			m.focus = 1 - m.focus
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		paneWidth := msg.Width/2 - 2
		paneHeight := msg.Height - 4
		if !m.ready {
			m.left = viewport.New(paneWidth, paneHeight)
			m.right = viewport.New(paneWidth, paneHeight)
			m.left.SetContent(m.report.disasm)
			m.right.SetContent(m.report.valueText(m.styles))
			m.ready = true
		} else {
			m.left.Width, m.left.Height = paneWidth, paneHeight
			m.right.Width, m.right.Height = paneWidth, paneHeight
		}
		return m, nil
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	if m.focus == 0 {
		m.left, cmd = m.left.Update(msg)
	} else {
		m.right, cmd = m.right.Update(msg)
	}
	return m, cmd
}

func (m *inspectModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	left, right := paneStyle, paneStyle
	if m.focus == 0 {
		left = focusedPaneStyle
	} else {
		right = focusedPaneStyle
	}

	var b strings.Builder
	b.WriteString(m.report.header(m.styles))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		left.Render(m.left.View()),
		right.Render(m.right.View()),
	))
	b.WriteString("\n")
	b.WriteString(m.styles.help("tab switch pane • ↑/↓ scroll • q quit"))
	return b.String()
}

// runInteractive opens the TUI on a terminal and prints the report
// otherwise.
func runInteractive(e *env, title string, cmd command.Command, data []byte) error {
	r := buildReport(e, title, cmd, data)
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(e.out, r.header(e.styles))
		fmt.Fprintln(e.out)
		if r.disasm != "" {
			fmt.Fprintln(e.out, r.disasm)
			fmt.Fprintln(e.out)
		}
		fmt.Fprintln(e.out, r.valueText(e.styles))
		return r.err
	}

	p := tea.NewProgram(newInspectModel(r, e.styles), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
