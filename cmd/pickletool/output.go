package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/picklebridge/command"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	offsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	scopeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#B39DDB")).
			Bold(true)

	propStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	leafStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	segmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// colorMode is the value of the -color flag.
type colorMode string

func (m *colorMode) String() string { return string(*m) }

func (m *colorMode) Set(s string) error {
	switch s {
	case "auto", "always", "never":
		*m = colorMode(s)
		return nil
	}
	return fmt.Errorf("invalid color mode %q", s)
}

// output picks stdout and styling for the mode. Colors are used on
// terminals unless disabled.
func (m colorMode) output() (io.Writer, styles) {
	enabled := false
	switch m {
	case "always":
		enabled = true
	case "", "auto":
		enabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
	if !enabled {
		return os.Stdout, styles{}
	}
	return colorable.NewColorableStdout(), styles{enabled: true}
}

// styles renders text with lipgloss styles when colors are enabled.
type styles struct {
	enabled bool
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

func (s styles) typeName(name string) string { return s.render(propStyle, name) }
func (s styles) ok(text string) string       { return s.render(okStyle, text) }
func (s styles) err(text string) string      { return s.render(errorStyle, text) }
func (s styles) help(text string) string     { return s.render(helpStyle, text) }
func (s styles) title(text string) string    { return s.render(titleStyle, text) }

// instruction renders one disassembled instruction like
// Instruction.String, colored by opcode class.
func (s styles) instruction(in command.Instruction) string {
	var b strings.Builder
	b.WriteString(s.render(offsetStyle, fmt.Sprintf("%04x", in.Offset)))
	b.WriteString("  ")
	b.WriteString(strings.Repeat("  ", in.Depth))

	st := leafStyle
	switch {
	case in.Op == command.OptPush || in.Op == command.OptPop:
		st = scopeStyle
	case in.Op.IsProp():
		st = propStyle
	case in.Op.HasSegment() || in.Op == command.TypeCommand:
		st = segmentStyle
	}
	b.WriteString(s.render(st, in.Op.String()))
	if operand := in.Operand(); operand != "" {
		b.WriteByte(' ')
		b.WriteString(operand)
	}
	return b.String()
}

// describe renders a type as a type expression, expanding the body of
// named definitions one level.
func describe(t wit.Type) string {
	if td, ok := t.(*wit.TypeDef); ok && td.Name != nil {
		switch kind := td.Kind.(type) {
		case *wit.Record:
			fields := make([]string, len(kind.Fields))
			for i, f := range kind.Fields {
				fields[i] = f.Name + ": " + typeExpr(f.Type)
			}
			return "record { " + strings.Join(fields, ", ") + " }"
		case *wit.Enum:
			cases := make([]string, len(kind.Cases))
			for i, c := range kind.Cases {
				cases[i] = c.Name
			}
			return "enum { " + strings.Join(cases, ", ") + " }"
		case *wit.Flags:
			flags := make([]string, len(kind.Flags))
			for i, f := range kind.Flags {
				flags[i] = f.Name
			}
			return "flags { " + strings.Join(flags, ", ") + " }"
		case wit.Type:
			return "= " + typeExpr(kind)
		}
	}
	return typeExpr(t)
}

func typeExpr(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch kind := v.Kind.(type) {
		case *wit.List:
			return "list<" + typeExpr(kind.Type) + ">"
		case *wit.Option:
			return "option<" + typeExpr(kind.Type) + ">"
		case *wit.Tuple:
			parts := make([]string, len(kind.Types))
			for i, el := range kind.Types {
				parts[i] = typeExpr(el)
			}
			return "tuple<" + strings.Join(parts, ", ") + ">"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
