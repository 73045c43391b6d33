package codec

import (
	"strconv"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/wire"
)

// unpickler rebuilds one value graph from a data stream. It is single use.
type unpickler struct {
	codec *Codec
	eng   picklebridge.Engine
	data  *wire.Cursor
	stack *ValueStack
	path  []string
	depth int
}

// scope runs the instructions of cur's window and returns the single value
// they produce. Inside an object scope a property may precede its value
// (PROP, value) or follow it (value, PROP).
func (u *unpickler) scope(cur *wire.Cursor) (result picklebridge.Value, err error) {
	if err := u.enter(); err != nil {
		return nil, err
	}
	defer u.leave()

	mark := u.stack.Mark()
	pathLen := len(u.path)
	var framePaths []int
	defer func() {
		if err != nil {
			u.stack.Clear()
		}
		u.stack.Reset(mark)
		u.path = u.path[:pathLen]
	}()

	for cur.HasNext() {
		at := cur.Offset()
		op, err := u.nextOp(cur)
		if err != nil {
			return nil, err
		}

		var key Key
		if op.IsProp() {
			if u.stack.IsEmpty() {
				return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path),
					"%s at offset %d outside an object scope", op, at)
			}
			if key, err = u.key(cur, op); err != nil {
				return nil, err
			}
			if op, err = u.nextOp(cur); err != nil {
				return nil, err
			}
		}

		var v picklebridge.Value
		switch op {
		case command.OptPush:
			if u.depth+u.stack.Len() >= u.codec.maxDepth {
				return nil, errors.DepthExceeded(errors.PhaseUnpickle, clonePath(u.path), u.codec.maxDepth)
			}
			obj, err := u.container(cur)
			if err != nil {
				return nil, err
			}
			if err := u.stack.Push(obj, key); err != nil {
				return nil, err
			}
			framePaths = append(framePaths, len(u.path))
			if !key.IsZero() {
				u.path = append(u.path, key.String())
			}
			continue

		case command.OptPop:
			if !key.IsZero() {
				return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path),
					"property before OPT_POP at offset %d", at)
			}
			if v, key, err = u.stack.Pop(); err != nil {
				return nil, err
			}
			n := len(framePaths) - 1
			u.path = u.path[:framePaths[n]]
			framePaths = framePaths[:n]

		default:
			if !key.IsZero() {
				u.path = append(u.path, key.String())
			}
			v, err = u.value(cur, op)
			if !key.IsZero() {
				u.path = u.path[:len(u.path)-1]
			}
			if err != nil {
				return nil, err
			}
		}

		if key.IsZero() && u.stack.IsEmpty() {
			if cur.HasNext() {
				u.eng.Free(v)
				return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path),
					"instructions after the result at offset %d", cur.Offset())
			}
			return v, nil
		}
		if key.IsZero() {
			// postfix form: the property follows the value
			next, err := u.nextOp(cur)
			if err != nil || !next.IsProp() {
				u.eng.Free(v)
				return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path),
					"value inside an object scope needs a property")
			}
			if key, err = u.key(cur, next); err != nil {
				u.eng.Free(v)
				return nil, err
			}
		}
		parent, _ := u.stack.Peek()
		if err := u.assign(parent, key, v); err != nil {
			return nil, err
		}
	}

	if !u.stack.IsEmpty() {
		return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path), "%d unmatched OPT_PUSH", u.stack.Depth())
	}
	return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path), "command produced no value")
}

func (u *unpickler) enter() error {
	if u.depth >= u.codec.maxDepth {
		return errors.DepthExceeded(errors.PhaseUnpickle, clonePath(u.path), u.codec.maxDepth)
	}
	u.depth++
	return nil
}

func (u *unpickler) leave() { u.depth-- }

func (u *unpickler) nextOp(cur *wire.Cursor) (command.Opcode, error) {
	b, err := cur.NextByte()
	if err != nil {
		return 0, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path), "truncated command at offset %d", cur.Offset())
	}
	return command.Opcode(b), nil
}

func (u *unpickler) key(cur *wire.Cursor, op command.Opcode) (Key, error) {
	if op == command.PropInt {
		i, err := cur.NextInt32()
		if err != nil {
			return Key{}, err
		}
		if i < 0 {
			return Key{}, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path), "negative property index %d", i)
		}
		return IndexKey(uint32(i)), nil
	}
	name, err := cur.NextString()
	if err != nil {
		return Key{}, err
	}
	return NameKey(string(name)), nil
}

// container creates the value for an OPT_PUSH: an array when the scope
// starts with PROP_INT, an object otherwise.
func (u *unpickler) container(cur *wire.Cursor) (picklebridge.Value, error) {
	var (
		v   picklebridge.Value
		err error
	)
	array := false
	if cur.HasNext() {
		off := cur.Offset()
		b, _ := cur.NextByte()
		if err := cur.Reconfig(off, cur.Size()); err != nil {
			return nil, err
		}
		array = command.Opcode(b) == command.PropInt
	}
	if array {
		v, err = u.eng.NewArray()
	} else {
		v, err = u.eng.NewObject()
	}
	if err != nil {
		return nil, engineErr(errors.PhaseUnpickle, u.path, "new object", err)
	}
	return v, nil
}

// assign moves v into parent under key.
func (u *unpickler) assign(parent picklebridge.Value, key Key, v picklebridge.Value) error {
	var err error
	if key.Kind == KeyIndex {
		err = u.eng.SetIndex(parent, key.Index, v)
	} else {
		err = u.eng.SetProperty(parent, key.Name, v)
	}
	if err != nil {
		return engineErr(errors.PhaseUnpickle, append(u.path, key.String()), "assign "+key.String(), err)
	}
	return nil
}

// value constructs the value op describes from the data stream. The
// caller owns the result.
func (u *unpickler) value(cur *wire.Cursor, op command.Opcode) (picklebridge.Value, error) {
	switch op {
	case command.TypeNull:
		return u.eng.NewNull(), nil

	case command.TypeBoolean:
		b, err := u.data.NextBool()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewBool(b), nil

	case command.TypeByte:
		i, err := u.data.NextInt8()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewInt32(int32(i)), nil

	case command.TypeShort:
		i, err := u.data.NextInt16()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewInt32(int32(i)), nil

	case command.TypeInt:
		i, err := u.data.NextInt32()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewInt32(i), nil

	case command.TypeFloat:
		f, err := u.data.NextFloat()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewFloat64(float64(f)), nil

	case command.TypeDouble:
		f, err := u.data.NextDouble()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewFloat64(f), nil

	case command.TypeNumber:
		return u.number()

	case command.TypeString:
		b, err := u.data.NextString()
		if err != nil {
			return nil, u.short(err)
		}
		v, err := u.eng.NewString(string(b))
		if err != nil {
			return nil, engineErr(errors.PhaseUnpickle, u.path, "new string", err)
		}
		return v, nil

	case command.TypeArray:
		return u.array(cur)

	case command.AttrNullable:
		return u.nullable(cur)

	case command.TypeCommand:
		h, err := cur.NextInt64()
		if err != nil {
			return nil, err
		}
		child, err := u.codec.resolve(errors.PhaseUnpickle, u.path, h)
		if err != nil {
			return nil, err
		}
		return u.scope(wire.NewCursor(child))

	case command.TypeObject:
		return nil, errors.Unsupported(errors.PhaseUnpickle, "TYPE_OBJECT is reserved")
	}
	return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path),
		"unexpected %s at offset %d", op, cur.Offset()-1)
}

func (u *unpickler) short(err error) error {
	return errors.New(errors.PhaseUnpickle, errors.KindProtocol).
		Path(clonePath(u.path)...).
		Cause(err).
		Detail("data stream ended early at offset %d", u.data.Offset()).
		Build()
}

func (u *unpickler) number() (picklebridge.Value, error) {
	tag, err := u.data.NextByte()
	if err != nil {
		return nil, u.short(err)
	}
	switch tag {
	case wire.NumberInt:
		i, err := u.data.NextInt32()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewInt32(i), nil
	case wire.NumberDouble:
		f, err := u.data.NextDouble()
		if err != nil {
			return nil, u.short(err)
		}
		return u.eng.NewFloat64(f), nil
	}
	return nil, errors.Protocol(errors.PhaseUnpickle, clonePath(u.path), "unknown number tag %d", tag)
}

func (u *unpickler) nullable(cur *wire.Cursor) (picklebridge.Value, error) {
	start, end, err := segment(cur, errors.PhaseUnpickle, u.path, command.AttrNullable)
	if err != nil {
		return nil, err
	}
	present, err := u.data.NextBool()
	if err != nil {
		return nil, u.short(err)
	}
	if !present {
		if err := cur.Skip(end - start); err != nil {
			return nil, err
		}
		return u.eng.NewNull(), nil
	}

	size := cur.Size()
	if err := cur.Reconfig(start, end); err != nil {
		return nil, err
	}
	v, err := u.scope(cur)
	if err != nil {
		return nil, err
	}
	if err := cur.Reconfig(end, size); err != nil {
		u.eng.Free(v)
		return nil, err
	}
	return v, nil
}

func (u *unpickler) array(cur *wire.Cursor) (picklebridge.Value, error) {
	start, end, err := segment(cur, errors.PhaseUnpickle, u.path, command.TypeArray)
	if err != nil {
		return nil, err
	}
	n, err := u.data.NextLength()
	if err != nil {
		return nil, u.short(err)
	}
	if n > u.codec.maxArray {
		return nil, errors.New(errors.PhaseUnpickle, errors.KindAllocation).
			Path(clonePath(u.path)...).
			Value(n).
			Detail("array length %d exceeds limit %d", n, u.codec.maxArray).
			Build()
	}

	arr, err := u.eng.NewArray()
	if err != nil {
		return nil, engineErr(errors.PhaseUnpickle, u.path, "new array", err)
	}
	size := cur.Size()
	for i := 0; i < n; i++ {
		if err := cur.Reconfig(start, end); err != nil {
			u.eng.Free(arr)
			return nil, err
		}
		u.path = append(u.path, "["+strconv.Itoa(i)+"]")
		el, err := u.scope(cur)
		if err == nil {
			if err = u.eng.SetIndex(arr, uint32(i), el); err != nil {
				err = engineErr(errors.PhaseUnpickle, u.path, "set index", err)
			}
		}
		u.path = u.path[:len(u.path)-1]
		if err != nil {
			u.eng.Free(arr)
			return nil, err
		}
	}
	if err := cur.Reconfig(end, size); err != nil {
		u.eng.Free(arr)
		return nil, err
	}
	return arr, nil
}
