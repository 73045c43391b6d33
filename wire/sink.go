package wire

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/picklebridge/errors"
)

const (
	// DefaultCapacity is the initial capacity of a sink created with a
	// non-positive capacity.
	DefaultCapacity = 64

	// NoLimit disables the sink size limit.
	NoLimit = math.MaxInt

	// Number sub-tags written by WriteNumberInt and WriteNumberDouble.
	NumberInt    byte = 0
	NumberDouble byte = 1
)

// Sink is an append-only growable byte buffer for the data stream.
//
// Every write either reserves its full size and advances, or fails with a
// KindAllocation error and leaves the sink unchanged.
type Sink struct {
	buf   []byte
	limit int
}

// NewSink creates a sink without a size limit.
func NewSink(capacity int) *Sink {
	return NewSinkLimit(capacity, NoLimit)
}

// NewSinkLimit creates a sink that refuses to grow beyond limit bytes.
func NewSinkLimit(capacity, limit int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if limit <= 0 {
		limit = NoLimit
	}
	if capacity > limit {
		capacity = limit
	}
	return &Sink{buf: make([]byte, 0, capacity), limit: limit}
}

// reserve makes room for n more bytes and returns the slice to fill.
func (s *Sink) reserve(n int) ([]byte, error) {
	off := len(s.buf)
	if n < 0 || n > s.limit-off {
		return nil, errors.AllocationFailed(errors.PhaseWire, n, s.limit)
	}
	need := off + n
	if need > cap(s.buf) {
		newCap := cap(s.buf) * 2
		// doubling wrapped or still short: floor at the exact size
		if newCap < cap(s.buf) || newCap < need {
			newCap = need
		}
		if newCap > s.limit {
			newCap = s.limit
		}
		grown := make([]byte, off, newCap)
		copy(grown, s.buf)
		s.buf = grown
	}
	s.buf = s.buf[:need]
	return s.buf[off:need], nil
}

// WriteNull appends the absent marker of a nullable slot.
func (s *Sink) WriteNull() error {
	return s.WriteBoolean(false)
}

func (s *Sink) WriteBoolean(b bool) error {
	p, err := s.reserve(1)
	if err != nil {
		return err
	}
	if b {
		p[0] = 1
	} else {
		p[0] = 0
	}
	return nil
}

func (s *Sink) WriteInt8(v int8) error {
	p, err := s.reserve(1)
	if err != nil {
		return err
	}
	p[0] = byte(v)
	return nil
}

func (s *Sink) WriteInt16(v int16) error {
	p, err := s.reserve(2)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint16(p, uint16(v))
	return nil
}

func (s *Sink) WriteInt(v int32) error {
	p, err := s.reserve(4)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(p, uint32(v))
	return nil
}

func (s *Sink) WriteInt64(v int64) error {
	p, err := s.reserve(8)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint64(p, uint64(v))
	return nil
}

func (s *Sink) WriteFloat(v float32) error {
	p, err := s.reserve(4)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(p, math.Float32bits(v))
	return nil
}

func (s *Sink) WriteDouble(v float64) error {
	p, err := s.reserve(8)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint64(p, math.Float64bits(v))
	return nil
}

// WriteNumberInt appends a tagged number holding an int32.
func (s *Sink) WriteNumberInt(v int32) error {
	p, err := s.reserve(1 + 4)
	if err != nil {
		return err
	}
	p[0] = NumberInt
	binary.NativeEndian.PutUint32(p[1:], uint32(v))
	return nil
}

// WriteNumberDouble appends a tagged number holding a float64.
func (s *Sink) WriteNumberDouble(v float64) error {
	p, err := s.reserve(1 + 8)
	if err != nil {
		return err
	}
	p[0] = NumberDouble
	binary.NativeEndian.PutUint64(p[1:], math.Float64bits(v))
	return nil
}

// WriteString appends an int32 length followed by the raw bytes of v.
// No terminator is written; embedded NUL bytes are preserved.
func (s *Sink) WriteString(v string) error {
	if len(v) > math.MaxInt32 {
		return errors.AllocationFailed(errors.PhaseWire, len(v), math.MaxInt32)
	}
	p, err := s.reserve(4 + len(v))
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(p, uint32(len(v)))
	copy(p[4:], v)
	return nil
}

// WriteBytes is WriteString for a byte slice.
func (s *Sink) WriteBytes(v []byte) error {
	if len(v) > math.MaxInt32 {
		return errors.AllocationFailed(errors.PhaseWire, len(v), math.MaxInt32)
	}
	p, err := s.reserve(4 + len(v))
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(p, uint32(len(v)))
	copy(p[4:], v)
	return nil
}

// WriteRaw appends b unframed.
func (s *Sink) WriteRaw(b []byte) error {
	p, err := s.reserve(len(b))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// Bytes returns the written bytes. The slice aliases the sink's buffer and
// is invalidated by the next write.
func (s *Sink) Bytes() []byte {
	return s.buf
}

// Len returns the number of bytes written.
func (s *Sink) Len() int {
	return len(s.buf)
}

// Cap returns the current capacity of the backing buffer.
func (s *Sink) Cap() int {
	return cap(s.buf)
}

// Limit returns the maximum size the sink may grow to.
func (s *Sink) Limit() int {
	return s.limit
}

// Truncate discards everything written after the first n bytes.
func (s *Sink) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(s.buf) {
		s.buf = s.buf[:n]
	}
}

// Reset empties the sink, keeping its buffer.
func (s *Sink) Reset() {
	s.buf = s.buf[:0]
}
