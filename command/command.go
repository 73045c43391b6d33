package command

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/picklebridge/errors"
)

// Command is an immutable, pre-compiled traversal plan. It is the body of a
// command buffer, without the int32 length prefix.
type Command []byte

// Resolver maps a TYPE_COMMAND operand to the child command it names.
type Resolver interface {
	Resolve(handle int64) (Command, bool)
}

// PrefixSize is the size of the length prefix of a framed command.
const PrefixSize = 4

// Frame returns cmd prefixed by its int32 byte length.
func Frame(cmd Command) []byte {
	out := make([]byte, PrefixSize+len(cmd))
	binary.NativeEndian.PutUint32(out, uint32(len(cmd)))
	copy(out[PrefixSize:], cmd)
	return out
}

// Parse strips and checks the length prefix of a framed command. The
// returned command aliases framed.
func Parse(framed []byte) (Command, error) {
	if len(framed) < PrefixSize {
		return nil, errors.Protocol(errors.PhaseCommand, nil, "framed command shorter than its prefix (%d bytes)", len(framed))
	}
	n := binary.NativeEndian.Uint32(framed)
	if n > math.MaxInt32 || int(n) != len(framed)-PrefixSize {
		return nil, errors.Protocol(errors.PhaseCommand, nil, "length prefix %d does not match body of %d bytes", n, len(framed)-PrefixSize)
	}
	return Command(framed[PrefixSize:]), nil
}

// HasChildren reports whether cmd references child commands. Malformed
// commands report true so callers treat them as not self-contained.
func (c Command) HasChildren() bool {
	ins, err := Disassemble(c)
	if err != nil {
		return true
	}
	for _, in := range ins {
		if in.Op == TypeCommand {
			return true
		}
	}
	return false
}

func (c Command) String() string {
	ins, err := Disassemble(c)
	if err != nil {
		return "<malformed command: " + err.Error() + ">"
	}
	return Format(ins)
}
