package command

import (
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/wire"
)

// Validate checks that cmd is well formed before it is handed to the codec:
// every opcode is known, segments fit their enclosing window and are not
// empty, PUSH/POP balance inside each segment, properties are followed by
// something that produces a value, and every child handle resolves to a
// valid command. Child cycles are rejected.
//
// resolver may be nil when cmd has no TYPE_COMMAND instructions.
func Validate(cmd Command, resolver Resolver) error {
	v := validator{resolver: resolver, active: map[int64]bool{}, done: map[int64]bool{}}
	return v.command(cmd)
}

// ValidatePrefix is Validate for commands that drive the pickler, which
// reads members by name and so requires every member of an object scope to
// be named before its value. Child commands are held to the same rule.
func ValidatePrefix(cmd Command, resolver Resolver) error {
	v := validator{resolver: resolver, prefix: true, active: map[int64]bool{}, done: map[int64]bool{}}
	return v.command(cmd)
}

type validator struct {
	resolver Resolver
	prefix   bool
	active   map[int64]bool
	done     map[int64]bool
}

func (v *validator) command(cmd Command) error {
	c := wire.NewCursor(cmd)
	if !c.HasNext() {
		return errors.Protocol(errors.PhaseCommand, nil, "empty command")
	}
	return v.window(c, c.Size())
}

// window validates the instructions in [c.Offset(), end).
//
// Inside a PUSH scope each value must be named by a property, either
// before it (PROP, value) or after it (value, PROP). At segment level
// exactly one value is produced and it is the segment's result.
func (v *validator) window(c *wire.Cursor, end int) error {
	var (
		frames []bool // keyed-ness of each open PUSH
		keyed  bool   // a property is waiting for its value
		owe    bool   // an unnamed value is waiting for its property
		result bool   // the segment's value has been produced
	)
	after := func(at int, op Opcode) error {
		if len(frames) == 0 && result {
			return errors.Protocol(errors.PhaseCommand, nil, "%s at offset %d: instructions after the result", op, at)
		}
		return nil
	}
	unnamed := func(at int, op Opcode) error {
		if v.prefix && len(frames) > 0 && !keyed {
			return errors.Protocol(errors.PhaseCommand, nil, "%s at offset %d: pickler requires prefix properties", op, at)
		}
		return nil
	}
	produced := func(at int, op Opcode) error {
		if owe {
			return errors.Protocol(errors.PhaseCommand, nil, "%s at offset %d follows an unnamed value", op, at)
		}
		if len(frames) == 0 {
			result = true
		}
		if keyed {
			keyed = false
		} else if len(frames) > 0 {
			owe = true
		}
		return nil
	}

	for c.Offset() < end {
		at := c.Offset()
		b, err := c.NextByte()
		if err != nil {
			return err
		}
		op := Opcode(b)

		if err := after(at, op); err != nil {
			return err
		}

		switch {
		case op.IsProp():
			if op == PropInt {
				_, err = c.NextInt32()
			} else {
				_, err = c.NextString()
			}
			if err != nil {
				return err
			}
			switch {
			case keyed:
				return errors.Protocol(errors.PhaseCommand, nil, "%s at offset %d follows another property", op, at)
			case owe:
				owe = false
			default:
				keyed = true
			}
		case op == OptPush:
			if owe {
				return errors.Protocol(errors.PhaseCommand, nil, "OPT_PUSH at offset %d follows an unnamed value", at)
			}
			if err := unnamed(at, op); err != nil {
				return err
			}
			frames = append(frames, keyed)
			keyed = false
		case op == OptPop:
			if keyed || owe {
				return errors.Protocol(errors.PhaseCommand, nil, "OPT_POP at offset %d leaves a property without a value", at)
			}
			if len(frames) == 0 {
				return errors.Protocol(errors.PhaseCommand, nil, "OPT_POP at offset %d without matching OPT_PUSH", at)
			}
			keyed = frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			if err := produced(at, op); err != nil {
				return err
			}
		case op == TypeObject:
			return errors.Unsupported(errors.PhaseCommand, "TYPE_OBJECT is reserved")
		case op.IsLeaf():
			if err := unnamed(at, op); err != nil {
				return err
			}
			if err := produced(at, op); err != nil {
				return err
			}
		case op.HasSegment():
			if err := unnamed(at, op); err != nil {
				return err
			}
			n, err := c.NextLength()
			if err != nil {
				return err
			}
			segEnd := c.Offset() + n
			if segEnd > end {
				return errors.Protocol(errors.PhaseCommand, nil,
					"%s at offset %d: segment of %d bytes overruns its enclosing window", op, at, n)
			}
			if n == 0 {
				return errors.Protocol(errors.PhaseCommand, nil, "%s at offset %d has an empty segment", op, at)
			}
			if err := v.window(c, segEnd); err != nil {
				return err
			}
			if err := produced(at, op); err != nil {
				return err
			}
		case op == TypeCommand:
			if err := unnamed(at, op); err != nil {
				return err
			}
			h, err := c.NextInt64()
			if err != nil {
				return err
			}
			if err := v.child(h); err != nil {
				return err
			}
			if err := produced(at, op); err != nil {
				return err
			}
		default:
			return errors.Protocol(errors.PhaseCommand, nil, "unknown opcode 0x%02X at offset %d", b, at)
		}
	}
	if c.Offset() != end {
		return errors.Protocol(errors.PhaseCommand, nil, "instruction crosses segment end at offset %d", end)
	}
	if keyed {
		return errors.Protocol(errors.PhaseCommand, nil, "trailing property at end of segment")
	}
	if owe {
		return errors.Protocol(errors.PhaseCommand, nil, "unnamed value inside an object scope")
	}
	if len(frames) != 0 {
		return errors.Protocol(errors.PhaseCommand, nil, "%d unmatched OPT_PUSH", len(frames))
	}
	return nil
}

func (v *validator) child(h int64) error {
	if v.done[h] {
		return nil
	}
	if v.active[h] {
		return errors.Protocol(errors.PhaseCommand, nil, "child command %d references itself", h)
	}
	if v.resolver == nil {
		return errors.Protocol(errors.PhaseCommand, nil, "child command %d with no resolver", h)
	}
	child, ok := v.resolver.Resolve(h)
	if !ok {
		return errors.Protocol(errors.PhaseCommand, nil, "unknown child command handle %d", h)
	}
	v.active[h] = true
	err := v.command(child)
	delete(v.active, h)
	if err != nil {
		return errors.Wrap(errors.PhaseCommand, errors.KindOf(err), err, "child command")
	}
	v.done[h] = true
	return nil
}
