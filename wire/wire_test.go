package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/picklebridge/errors"
)

func TestSink_ScalarRoundTrip(t *testing.T) {
	s := NewSink(1)
	require.NoError(t, s.WriteBoolean(true))
	require.NoError(t, s.WriteBoolean(false))
	require.NoError(t, s.WriteInt8(-7))
	require.NoError(t, s.WriteInt16(-1234))
	require.NoError(t, s.WriteInt(42))
	require.NoError(t, s.WriteInt64(math.MinInt64))
	require.NoError(t, s.WriteFloat(1.5))
	require.NoError(t, s.WriteDouble(math.Pi))
	require.NoError(t, s.WriteNull())

	c := NewCursor(s.Bytes())
	b, err := c.NextBool()
	require.NoError(t, err)
	assert.True(t, b)
	b, err = c.NextBool()
	require.NoError(t, err)
	assert.False(t, b)

	i8, err := c.NextInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(-7), i8)

	i16, err := c.NextInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-1234), i16)

	i32, err := c.NextInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), i32)

	i64, err := c.NextInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), i64)

	f32, err := c.NextFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	f64, err := c.NextDouble()
	require.NoError(t, err)
	assert.Equal(t, math.Pi, f64)

	present, err := c.NextBool()
	require.NoError(t, err)
	assert.False(t, present)

	assert.False(t, c.HasNext())
}

func TestSink_StringHasNoTerminator(t *testing.T) {
	s := NewSink(0)
	require.NoError(t, s.WriteString("a\x00b"))
	require.Equal(t, 4+3, s.Len())
	assert.Equal(t, uint32(3), binary.NativeEndian.Uint32(s.Bytes()))

	c := NewCursor(s.Bytes())
	str, err := c.NextString()
	require.NoError(t, err)
	assert.Equal(t, []byte("a\x00b"), str)
	assert.False(t, c.HasNext())
}

func TestSink_NumberTags(t *testing.T) {
	s := NewSink(0)
	require.NoError(t, s.WriteNumberInt(9))
	require.NoError(t, s.WriteNumberDouble(2.5))

	c := NewCursor(s.Bytes())
	tag, err := c.NextByte()
	require.NoError(t, err)
	assert.Equal(t, NumberInt, tag)
	i, err := c.NextInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(9), i)

	tag, err = c.NextByte()
	require.NoError(t, err)
	assert.Equal(t, NumberDouble, tag)
	d, err := c.NextDouble()
	require.NoError(t, err)
	assert.Equal(t, 2.5, d)
}

func TestSink_GrowthDoublesWithExactFloor(t *testing.T) {
	s := NewSink(4)
	require.NoError(t, s.WriteInt(1))
	assert.Equal(t, 4, s.Cap())

	require.NoError(t, s.WriteInt8(1))
	assert.Equal(t, 8, s.Cap(), "doubles when the request fits")

	require.NoError(t, s.WriteBytes(make([]byte, 100)))
	assert.Equal(t, 4+1+4+100, s.Cap(), "floors at the exact requested size")
}

func TestSink_LimitLeavesSinkUnchanged(t *testing.T) {
	s := NewSinkLimit(4, 6)
	require.NoError(t, s.WriteInt(7))

	before := append([]byte(nil), s.Bytes()...)
	err := s.WriteInt(8)
	require.Error(t, err)
	assert.Equal(t, errors.KindAllocation, errors.KindOf(err))
	assert.Equal(t, before, s.Bytes())

	require.NoError(t, s.WriteInt16(1), "fits exactly at the limit")
	assert.Equal(t, 6, s.Len())
}

func TestSink_TruncateAndReset(t *testing.T) {
	s := NewSink(0)
	require.NoError(t, s.WriteInt(1))
	mark := s.Len()
	require.NoError(t, s.WriteString("discard me"))
	s.Truncate(mark)
	assert.Equal(t, mark, s.Len())
	s.Truncate(100)
	assert.Equal(t, mark, s.Len())
	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestCursor_ShortReads(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	_, err := c.NextInt32()
	require.Error(t, err)
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
	assert.Equal(t, 0, c.Offset(), "failed read must not advance")

	require.NoError(t, c.Skip(2))
	assert.Error(t, c.Skip(2))
	assert.Error(t, c.Skip(-1))
}

func TestCursor_NegativeStringLength(t *testing.T) {
	s := NewSink(0)
	require.NoError(t, s.WriteInt(-5))
	_, err := NewCursor(s.Bytes()).NextString()
	require.Error(t, err)
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
}

func TestCursor_ReconfigReplaysSegment(t *testing.T) {
	s := NewSink(0)
	require.NoError(t, s.WriteInt8(9))
	require.NoError(t, s.WriteInt(10))
	require.NoError(t, s.WriteInt8(11))

	c := NewCursor(s.Bytes())
	_, err := c.NextInt8()
	require.NoError(t, err)

	segOff, size := c.Offset(), c.Size()
	for range 3 {
		require.NoError(t, c.Reconfig(segOff, segOff+4))
		v, err := c.NextInt32()
		require.NoError(t, err)
		assert.Equal(t, int32(10), v)
		assert.False(t, c.HasNext())
	}
	require.NoError(t, c.Reconfig(segOff+4, size))
	v, err := c.NextInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(11), v)

	assert.Error(t, c.Reconfig(3, 2))
	assert.Error(t, c.Reconfig(0, 100))
}
