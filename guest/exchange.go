package guest

import (
	"encoding/binary"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/codec"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/wire"
)

// Exchange moves pickled values between the host engine and a guest's
// linear memory. Buffers in guest memory are length prefixed, the same
// framing command.Frame uses.
type Exchange struct {
	codec *codec.Codec
	mem   Memory
	alloc Allocator
}

func NewExchange(c *codec.Codec, mem Memory, alloc Allocator) *Exchange {
	return &Exchange{codec: c, mem: mem, alloc: alloc}
}

// Pickle pickles v as described by cmd and stores the data stream in guest
// memory. It returns the address of the length prefix.
func (x *Exchange) Pickle(v picklebridge.Value, cmd command.Command) (uint32, error) {
	sink := wire.NewSink(codec.DefaultSinkCapacity)
	if err := sink.WriteInt(0); err != nil {
		return 0, err
	}
	if err := x.codec.PickleTo(v, cmd, sink); err != nil {
		return 0, err
	}
	buf := sink.Bytes()
	binary.NativeEndian.PutUint32(buf, uint32(len(buf)-PrefixSize))
	return x.putRaw(buf)
}

// PutCommand stores cmd in guest memory and returns its address.
func (x *Exchange) PutCommand(cmd command.Command) (uint32, error) {
	return x.putRaw(command.Frame(cmd))
}

// Unpickle rebuilds a value from the command at cmdPtr and the data stream
// at dataPtr, both in guest memory. The caller owns the result.
func (x *Exchange) Unpickle(cmdPtr, dataPtr uint32) (picklebridge.Value, error) {
	cmd, err := Get(x.mem, cmdPtr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindOf(err), err, "read command")
	}
	data, err := view(x.mem, dataPtr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindOf(err), err, "read data stream")
	}
	return x.codec.Unpickle(command.Command(cmd), data)
}

// Free releases a buffer returned by Pickle or PutCommand.
func (x *Exchange) Free(ptr uint32) {
	prefix, err := x.mem.Read(ptr, PrefixSize)
	if err != nil {
		return
	}
	n := binary.NativeEndian.Uint32(prefix)
	x.alloc.Free(ptr, PrefixSize+n, PrefixSize)
}

// putRaw stores an already framed buffer.
func (x *Exchange) putRaw(framed []byte) (uint32, error) {
	ptr, err := x.alloc.Alloc(uint32(len(framed)), PrefixSize)
	if err != nil {
		return 0, err
	}
	if err := x.mem.Write(ptr, framed); err != nil {
		x.alloc.Free(ptr, uint32(len(framed)), PrefixSize)
		return 0, err
	}
	return ptr, nil
}
