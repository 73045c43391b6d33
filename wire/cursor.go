package wire

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/picklebridge/errors"
)

// Cursor reads sequentially over the window [offset, size) of a byte slice.
//
// Reads never go past size. Reconfig moves the window, which is how nested
// segments are replayed over one buffer without copying.
type Cursor struct {
	data   []byte
	offset int
	size   int
}

// NewCursor creates a cursor over all of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data, size: len(data)}
}

func (c *Cursor) short(n int) error {
	return errors.New(errors.PhaseWire, errors.KindProtocol).
		Detail("read of %d bytes at offset %d exceeds size %d", n, c.offset, c.size).
		Build()
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || n > c.size-c.offset {
		return nil, c.short(n)
	}
	p := c.data[c.offset : c.offset+n]
	c.offset += n
	return p, nil
}

func (c *Cursor) NextInt8() (int8, error) {
	p, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return int8(p[0]), nil
}

// NextByte reads one unsigned byte.
func (c *Cursor) NextByte() (byte, error) {
	p, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// NextBool reads one byte; any non-zero value is true.
func (c *Cursor) NextBool() (bool, error) {
	p, err := c.take(1)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

func (c *Cursor) NextInt16() (int16, error) {
	p, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.NativeEndian.Uint16(p)), nil
}

func (c *Cursor) NextInt32() (int32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.NativeEndian.Uint32(p)), nil
}

func (c *Cursor) NextInt64() (int64, error) {
	p, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.NativeEndian.Uint64(p)), nil
}

func (c *Cursor) NextFloat() (float32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(p)), nil
}

func (c *Cursor) NextDouble() (float64, error) {
	p, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(p)), nil
}

// NextLength reads an int32 length and rejects negative values.
func (c *Cursor) NextLength() (int, error) {
	n, err := c.NextInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New(errors.PhaseWire, errors.KindProtocol).
			Detail("negative length %d at offset %d", n, c.offset-4).
			Build()
	}
	return int(n), nil
}

// NextString reads a length-prefixed byte string. The result borrows the
// cursor's buffer; copy it if it must outlive that buffer.
func (c *Cursor) NextString() ([]byte, error) {
	n, err := c.NextLength()
	if err != nil {
		return nil, err
	}
	return c.take(n)
}

// HasNext reports whether unread bytes remain in the window.
func (c *Cursor) HasNext() bool {
	return c.offset < c.size
}

// Skip advances by n bytes. Negative steps are rejected.
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n)
	return err
}

// Offset returns the read position.
func (c *Cursor) Offset() int {
	return c.offset
}

// Size returns the end of the current window.
func (c *Cursor) Size() int {
	return c.size
}

// Remaining returns the number of unread bytes in the window.
func (c *Cursor) Remaining() int {
	return c.size - c.offset
}

// Reconfig moves the window to [offset, size). Both bounds must lie within
// the underlying buffer and offset must not exceed size.
func (c *Cursor) Reconfig(offset, size int) error {
	if offset < 0 || offset > size || size > len(c.data) {
		return errors.New(errors.PhaseWire, errors.KindProtocol).
			Detail("window [%d, %d) outside buffer of %d bytes", offset, size, len(c.data)).
			Build()
	}
	c.offset = offset
	c.size = size
	return nil
}
