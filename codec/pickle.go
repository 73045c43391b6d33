package codec

import (
	"math"
	"strconv"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/wire"
)

// pickler walks one engine value graph. It is single use.
type pickler struct {
	codec *Codec
	eng   picklebridge.Engine
	sink  *wire.Sink
	stack *ValueStack
	path  []string
	depth int
}

// scope runs the instructions of cur's window against root. Object scopes
// opened inside the window must be closed inside it. root is borrowed.
func (p *pickler) scope(cur *wire.Cursor, root picklebridge.Value) (err error) {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	mark := p.stack.Mark()
	pathLen := len(p.path)
	// path segments owned by the open PUSH frames of this scope
	var framePaths []int
	defer func() {
		if err != nil {
			p.stack.Clear()
		}
		p.stack.Reset(mark)
		p.path = p.path[:pathLen]
	}()

	for cur.HasNext() {
		at := cur.Offset()
		op, err := p.nextOp(cur)
		if err != nil {
			return err
		}

		current := root
		if top, ok := p.stack.Peek(); ok {
			current = top
		}

		val, owned := current, false
		segLen := len(p.path)
		if op.IsProp() {
			val, err = p.property(cur, op, current)
			if err != nil {
				return err
			}
			owned = true
			if op, err = p.nextOp(cur); err != nil {
				p.eng.Free(val)
				return err
			}
		} else if op != command.OptPop && !p.stack.IsEmpty() {
			// postfix members name their value after it is read
			return errors.Protocol(errors.PhasePickle, clonePath(p.path),
				"%s at offset %d: pickler requires prefix properties", op, at)
		}

		switch op {
		case command.OptPush:
			if !owned {
				val = p.eng.Dup(val)
			}
			if tag := p.eng.Tag(val); tag != picklebridge.TagObject && tag != picklebridge.TagArray {
				p.eng.Free(val)
				return errors.TypeMismatch(errors.PhasePickle, clonePath(p.path), "object", tag.String())
			}
			if p.depth+p.stack.Len() >= p.codec.maxDepth {
				p.eng.Free(val)
				return errors.DepthExceeded(errors.PhasePickle, clonePath(p.path), p.codec.maxDepth)
			}
			if err := p.stack.Push(val, Key{}); err != nil {
				return err
			}
			framePaths = append(framePaths, segLen)
			continue

		case command.OptPop:
			if owned {
				p.eng.Free(val)
				return errors.Protocol(errors.PhasePickle, clonePath(p.path), "property before OPT_POP at offset %d", at)
			}
			top, _, err := p.stack.Pop()
			if err != nil {
				return err
			}
			p.eng.Free(top)
			n := len(framePaths) - 1
			p.path = p.path[:framePaths[n]]
			framePaths = framePaths[:n]
			if err := p.trailing(cur); err != nil {
				return err
			}
			continue
		}

		err = p.value(cur, op, val)
		if owned {
			p.eng.Free(val)
		}
		if err != nil {
			return err
		}
		p.path = p.path[:segLen]
		if err := p.trailing(cur); err != nil {
			return err
		}
	}

	if !p.stack.IsEmpty() {
		return errors.Protocol(errors.PhasePickle, clonePath(p.path), "%d unmatched OPT_PUSH", p.stack.Depth())
	}
	return nil
}

// trailing rejects instructions left in the window once its single result
// has been written.
func (p *pickler) trailing(cur *wire.Cursor) error {
	if p.stack.IsEmpty() && cur.HasNext() {
		return errors.Protocol(errors.PhasePickle, clonePath(p.path),
			"instructions after the result at offset %d", cur.Offset())
	}
	return nil
}

func (p *pickler) enter() error {
	if p.depth >= p.codec.maxDepth {
		return errors.DepthExceeded(errors.PhasePickle, clonePath(p.path), p.codec.maxDepth)
	}
	p.depth++
	return nil
}

func (p *pickler) leave() { p.depth-- }

func (p *pickler) nextOp(cur *wire.Cursor) (command.Opcode, error) {
	b, err := cur.NextByte()
	if err != nil {
		return 0, errors.Protocol(errors.PhasePickle, clonePath(p.path), "truncated command at offset %d", cur.Offset())
	}
	return command.Opcode(b), nil
}

// property reads a PROP operand, fetches it from obj and appends it to the
// path. The caller owns the result.
func (p *pickler) property(cur *wire.Cursor, op command.Opcode, obj picklebridge.Value) (picklebridge.Value, error) {
	if op == command.PropInt {
		i, err := cur.NextInt32()
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, errors.Protocol(errors.PhasePickle, clonePath(p.path), "negative property index %d", i)
		}
		p.path = append(p.path, "["+strconv.Itoa(int(i))+"]")
		v, err := p.eng.GetIndex(obj, uint32(i))
		if err != nil {
			return nil, engineErr(errors.PhasePickle, p.path, "get index", err)
		}
		return v, nil
	}

	name, err := cur.NextString()
	if err != nil {
		return nil, err
	}
	p.path = append(p.path, string(name))
	v, err := p.eng.GetProperty(obj, string(name))
	if err != nil {
		return nil, engineErr(errors.PhasePickle, p.path, "get property", err)
	}
	return v, nil
}

// value writes the payload op describes for v. v is borrowed.
func (p *pickler) value(cur *wire.Cursor, op command.Opcode, v picklebridge.Value) error {
	switch op {
	case command.AttrNullable:
		return p.nullable(cur, v)
	case command.TypeArray:
		return p.array(cur, v)
	case command.TypeCommand:
		return p.child(cur, v)
	case command.TypeObject:
		return errors.Unsupported(errors.PhasePickle, "TYPE_OBJECT is reserved")
	}
	if !op.IsLeaf() {
		return errors.Protocol(errors.PhasePickle, clonePath(p.path), "unexpected %s at offset %d", op, cur.Offset()-1)
	}
	return p.leaf(op, v)
}

func (p *pickler) leaf(op command.Opcode, v picklebridge.Value) error {
	tag := p.eng.Tag(v)
	switch op {
	case command.TypeNull:
		if !tag.IsNullish() {
			return p.mismatch("null", tag)
		}
		return nil

	case command.TypeBoolean:
		if tag != picklebridge.TagBool {
			return p.mismatch("bool", tag)
		}
		return p.sink.WriteBoolean(p.eng.ToBool(v))

	case command.TypeByte:
		i, err := p.integral(v, tag, "byte", math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		return p.sink.WriteInt8(int8(i))

	case command.TypeShort:
		i, err := p.integral(v, tag, "short", math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		return p.sink.WriteInt16(int16(i))

	case command.TypeInt:
		i, err := p.integral(v, tag, "int", math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		return p.sink.WriteInt(i)

	case command.TypeFloat:
		if !tag.IsNumber() {
			return p.mismatch("number", tag)
		}
		return p.sink.WriteFloat(float32(p.eng.ToFloat64(v)))

	case command.TypeDouble:
		if !tag.IsNumber() {
			return p.mismatch("number", tag)
		}
		return p.sink.WriteDouble(p.eng.ToFloat64(v))

	case command.TypeNumber:
		switch tag {
		case picklebridge.TagInt:
			return p.sink.WriteNumberInt(p.eng.ToInt32(v))
		case picklebridge.TagFloat:
			return p.sink.WriteNumberDouble(p.eng.ToFloat64(v))
		}
		return p.mismatch("number", tag)

	case command.TypeString:
		if tag != picklebridge.TagString {
			return p.mismatch("string", tag)
		}
		s, err := p.eng.ToString(v)
		if err != nil {
			return engineErr(errors.PhasePickle, p.path, "to string", err)
		}
		return p.sink.WriteString(s)
	}
	return errors.Protocol(errors.PhasePickle, clonePath(p.path), "unexpected %s", op)
}

// integral accepts int values and floats holding an integer, within
// [lo, hi].
func (p *pickler) integral(v picklebridge.Value, tag picklebridge.Tag, expected string, lo, hi int64) (int32, error) {
	var i int64
	switch tag {
	case picklebridge.TagInt:
		i = int64(p.eng.ToInt32(v))
	case picklebridge.TagFloat:
		f := p.eng.ToFloat64(v)
		if f != math.Trunc(f) || f < float64(lo) || f > float64(hi) {
			return 0, errors.New(errors.PhasePickle, errors.KindTypeMismatch).
				Path(clonePath(p.path)...).
				Expected(expected).
				Actual("float").
				Value(f).
				Detail("%v is not representable", f).
				Build()
		}
		i = int64(f)
	default:
		return 0, p.mismatch(expected, tag)
	}
	if i < lo || i > hi {
		return 0, errors.New(errors.PhasePickle, errors.KindTypeMismatch).
			Path(clonePath(p.path)...).
			Expected(expected).
			Actual("int").
			Value(i).
			Detail("%d out of range", i).
			Build()
	}
	return int32(i), nil
}

func (p *pickler) mismatch(expected string, actual picklebridge.Tag) error {
	return errors.TypeMismatch(errors.PhasePickle, clonePath(p.path), expected, actual.String())
}

// segment reads a segment length operand and returns the window bounds.
func segment(cur *wire.Cursor, phase errors.Phase, path []string, op command.Opcode) (start, end int, err error) {
	n, err := cur.NextLength()
	if err != nil {
		return 0, 0, err
	}
	start = cur.Offset()
	if n > cur.Size()-start {
		return 0, 0, errors.Protocol(phase, clonePath(path),
			"%s segment of %d bytes overruns the command (%d left)", op, n, cur.Size()-start)
	}
	return start, start + n, nil
}

func (p *pickler) nullable(cur *wire.Cursor, v picklebridge.Value) error {
	start, end, err := segment(cur, errors.PhasePickle, p.path, command.AttrNullable)
	if err != nil {
		return err
	}
	if p.eng.Tag(v).IsNullish() {
		if err := p.sink.WriteBoolean(false); err != nil {
			return err
		}
		return cur.Skip(end - start)
	}
	if err := p.sink.WriteBoolean(true); err != nil {
		return err
	}
	return p.window(cur, start, end, v)
}

func (p *pickler) array(cur *wire.Cursor, v picklebridge.Value) error {
	start, end, err := segment(cur, errors.PhasePickle, p.path, command.TypeArray)
	if err != nil {
		return err
	}
	n, ok := p.eng.ArrayLength(v)
	if !ok {
		return p.mismatch("array", p.eng.Tag(v))
	}
	if n > math.MaxInt32 {
		return errors.OutOfBounds(errors.PhasePickle, clonePath(p.path), int(n), math.MaxInt32)
	}
	if err := p.sink.WriteInt(int32(n)); err != nil {
		return err
	}

	size := cur.Size()
	for i := uint32(0); i < n; i++ {
		el, err := p.eng.GetIndex(v, i)
		if err != nil {
			return engineErr(errors.PhasePickle, p.path, "get index", err)
		}
		p.path = append(p.path, "["+strconv.FormatUint(uint64(i), 10)+"]")
		if err := cur.Reconfig(start, end); err != nil {
			p.eng.Free(el)
			return err
		}
		err = p.scope(cur, el)
		p.eng.Free(el)
		p.path = p.path[:len(p.path)-1]
		if err != nil {
			return err
		}
	}
	return cur.Reconfig(end, size)
}

// window runs [start, end) of cur as a nested scope and leaves cur just
// past it.
func (p *pickler) window(cur *wire.Cursor, start, end int, v picklebridge.Value) error {
	size := cur.Size()
	if err := cur.Reconfig(start, end); err != nil {
		return err
	}
	if err := p.scope(cur, v); err != nil {
		return err
	}
	return cur.Reconfig(end, size)
}

func (p *pickler) child(cur *wire.Cursor, v picklebridge.Value) error {
	h, err := cur.NextInt64()
	if err != nil {
		return err
	}
	cmd, err := p.codec.resolve(errors.PhasePickle, p.path, h)
	if err != nil {
		return err
	}
	return p.scope(wire.NewCursor(cmd), v)
}
