package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/wire"
)

// Instruction is one decoded command instruction.
type Instruction struct {
	Name    string // PROP_STR operand
	Offset  int
	Segment int   // TYPE_ARRAY / ATTR_NULLABLE segment length
	Handle  int64 // TYPE_COMMAND operand
	Index   int32 // PROP_INT operand
	Depth   int   // nesting of segments and push scopes
	Op      Opcode
}

func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%04x  ", in.Offset))
	b.WriteString(strings.Repeat("  ", in.Depth))
	b.WriteString(in.Op.String())
	if operand := in.Operand(); operand != "" {
		b.WriteByte(' ')
		b.WriteString(operand)
	}
	return b.String()
}

// Operand renders the instruction's operand, or "" if it has none.
func (in Instruction) Operand() string {
	switch in.Op {
	case PropInt:
		return strconv.FormatInt(int64(in.Index), 10)
	case PropStr:
		return strconv.Quote(in.Name)
	case TypeArray, AttrNullable:
		return "segment=" + strconv.Itoa(in.Segment)
	case TypeCommand:
		return "handle=" + strconv.FormatInt(in.Handle, 10)
	}
	return ""
}

// Disassemble decodes cmd into a flat instruction list. Segments are
// inline in the stream, so a single pass visits every instruction once.
func Disassemble(cmd Command) ([]Instruction, error) {
	c := wire.NewCursor(cmd)
	var (
		out      []Instruction
		segEnds  []int
		pushes   int
		segDepth int
	)

	for c.HasNext() {
		for len(segEnds) > 0 && c.Offset() >= segEnds[len(segEnds)-1] {
			segEnds = segEnds[:len(segEnds)-1]
			segDepth--
		}

		in := Instruction{Offset: c.Offset()}
		b, err := c.NextByte()
		if err != nil {
			return nil, err
		}
		in.Op = Opcode(b)
		if in.Op == OptPop && pushes > 0 {
			pushes--
		}
		in.Depth = segDepth + pushes

		switch in.Op {
		case PropInt:
			if in.Index, err = c.NextInt32(); err != nil {
				return nil, err
			}
		case PropStr:
			name, err := c.NextString()
			if err != nil {
				return nil, err
			}
			in.Name = string(name)
		case TypeArray, AttrNullable:
			if in.Segment, err = c.NextLength(); err != nil {
				return nil, err
			}
			end := c.Offset() + in.Segment
			if end > c.Size() || (len(segEnds) > 0 && end > segEnds[len(segEnds)-1]) {
				return nil, errors.Protocol(errors.PhaseCommand, nil,
					"%s at offset %d: segment of %d bytes overruns its enclosing window", in.Op, in.Offset, in.Segment)
			}
			segEnds = append(segEnds, end)
			segDepth++
		case TypeCommand:
			if in.Handle, err = c.NextInt64(); err != nil {
				return nil, err
			}
		case OptPush:
			pushes++
		case OptPop:
		default:
			if !in.Op.IsLeaf() && in.Op != TypeObject {
				return nil, errors.Protocol(errors.PhaseCommand, nil, "unknown opcode 0x%02X at offset %d", b, in.Offset)
			}
		}
		out = append(out, in)
	}
	return out, nil
}

// Format renders instructions one per line.
func Format(ins []Instruction) string {
	var b strings.Builder
	for i, in := range ins {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(in.String())
	}
	return b.String()
}
