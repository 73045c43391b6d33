package command

import (
	"encoding/binary"

	"github.com/wippyai/picklebridge/wire"
)

// Builder assembles a command. Methods chain; the first write error is
// kept and reported by Build.
//
//	cmd := command.NewBuilder().
//		Push().
//		PropStr("tags").Array(func(b *command.Builder) { b.String() }).
//		PropStr("score").Nullable(func(b *command.Builder) { b.Double() }).
//		Pop().
//		Command()
type Builder struct {
	sink *wire.Sink
	err  error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{sink: wire.NewSink(32)}
}

func (b *Builder) op(o Opcode) *Builder {
	if b.err == nil {
		b.err = b.sink.WriteInt8(int8(o))
	}
	return b
}

// Op appends a bare opcode.
func (b *Builder) Op(o Opcode) *Builder { return b.op(o) }

func (b *Builder) Push() *Builder    { return b.op(OptPush) }
func (b *Builder) Pop() *Builder     { return b.op(OptPop) }
func (b *Builder) Null() *Builder    { return b.op(TypeNull) }
func (b *Builder) Boolean() *Builder { return b.op(TypeBoolean) }
func (b *Builder) Byte() *Builder    { return b.op(TypeByte) }
func (b *Builder) Short() *Builder   { return b.op(TypeShort) }
func (b *Builder) Int() *Builder     { return b.op(TypeInt) }
func (b *Builder) Float() *Builder   { return b.op(TypeFloat) }
func (b *Builder) Double() *Builder  { return b.op(TypeDouble) }
func (b *Builder) Number() *Builder  { return b.op(TypeNumber) }
func (b *Builder) String() *Builder  { return b.op(TypeString) }

// PropInt navigates to an array index.
func (b *Builder) PropInt(index int32) *Builder {
	b.op(PropInt)
	if b.err == nil {
		b.err = b.sink.WriteInt(index)
	}
	return b
}

// PropStr navigates to a named property.
func (b *Builder) PropStr(name string) *Builder {
	b.op(PropStr)
	if b.err == nil {
		b.err = b.sink.WriteString(name)
	}
	return b
}

// Child splices in the registered command named by handle.
func (b *Builder) Child(handle int64) *Builder {
	b.op(TypeCommand)
	if b.err == nil {
		b.err = b.sink.WriteInt64(handle)
	}
	return b
}

// Array declares an array whose elements are described by the segment
// that fn appends.
func (b *Builder) Array(fn func(*Builder)) *Builder {
	return b.segment(TypeArray, fn)
}

// Nullable wraps the segment that fn appends in ATTR_NULLABLE.
func (b *Builder) Nullable(fn func(*Builder)) *Builder {
	return b.segment(AttrNullable, fn)
}

func (b *Builder) segment(o Opcode, fn func(*Builder)) *Builder {
	b.op(o)
	if b.err != nil {
		return b
	}
	lenAt := b.sink.Len()
	if b.err = b.sink.WriteInt(0); b.err != nil {
		return b
	}
	start := b.sink.Len()
	fn(b)
	if b.err != nil {
		return b
	}
	binary.NativeEndian.PutUint32(b.sink.Bytes()[lenAt:], uint32(b.sink.Len()-start))
	return b
}

// Append splices cmd in verbatim.
func (b *Builder) Append(cmd Command) *Builder {
	if b.err == nil {
		b.err = b.sink.WriteRaw(cmd)
	}
	return b
}

// Len returns the number of bytes assembled so far.
func (b *Builder) Len() int {
	return b.sink.Len()
}

// Build returns a copy of the assembled command.
func (b *Builder) Build() (Command, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Command(append([]byte(nil), b.sink.Bytes()...)), nil
}

// Command is Build for builders that cannot fail (no size limit is set on
// the underlying sink). It panics on a recorded error.
func (b *Builder) Command() Command {
	cmd, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cmd
}

// WrapNullable returns ATTR_NULLABLE wrapping inner.
func WrapNullable(inner Command) Command {
	return NewBuilder().Nullable(func(b *Builder) { b.Append(inner) }).Command()
}

// WrapArray returns TYPE_ARRAY with elem as the per-element segment.
func WrapArray(elem Command) Command {
	return NewBuilder().Array(func(b *Builder) { b.Append(elem) }).Command()
}
