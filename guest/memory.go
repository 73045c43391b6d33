package guest

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/picklebridge/errors"
)

// Memory is the linear memory of a guest module.
type Memory interface {
	// Read returns a view of length bytes at offset. The view is only
	// valid until the guest runs again.
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// Allocator reserves regions of guest memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// WrapMemory adapts a wazero memory.
func WrapMemory(mem api.Memory) Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to Memory.
type Wrapper struct {
	Mem api.Memory
}

func (m *Wrapper) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds(offset, length, m.Mem.Size())
	}
	return data, nil
}

func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return outOfBounds(offset, uint32(len(data)), m.Mem.Size())
	}
	return nil
}

func (m *Wrapper) Size() uint32 { return m.Mem.Size() }

func outOfBounds(offset, length, size uint32) error {
	return errors.New(errors.PhaseGuest, errors.KindOutOfBounds).
		Value(offset).
		Detail("access of %d bytes at offset %d exceeds memory of %d bytes", length, offset, size).
		Build()
}

// WrapRealloc adapts a guest's cabi_realloc export to Allocator.
func WrapRealloc(ctx context.Context, fn api.Function) Allocator {
	if fn == nil {
		return nil
	}
	return &Realloc{Ctx: ctx, Fn: fn}
}

// Realloc allocates through cabi_realloc(old_ptr, old_size, align, new_size).
type Realloc struct {
	Ctx context.Context
	Fn  api.Function
}

func (a *Realloc) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseGuest, errors.KindAllocation, err, "cabi_realloc")
	}
	if len(results) == 0 {
		return 0, errors.New(errors.PhaseGuest, errors.KindAllocation).
			Detail("cabi_realloc returned no result").
			Build()
	}
	ptr := uint32(results[0])
	if ptr == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseGuest, int(size), 0)
	}
	return ptr, nil
}

func (a *Realloc) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	if _, err := a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0); err != nil {
		Logger().Warn("cabi_realloc free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// PrefixSize is the size of the length prefix Put writes.
const PrefixSize = 4

// Put copies buf into memory from alloc behind an int32 length prefix and
// returns the address of the prefix.
func Put(mem Memory, alloc Allocator, buf []byte) (uint32, error) {
	total := uint64(PrefixSize) + uint64(len(buf))
	if total > uint64(^uint32(0)) {
		return 0, errors.AllocationFailed(errors.PhaseGuest, int(total), int(^uint32(0)))
	}
	ptr, err := alloc.Alloc(uint32(total), PrefixSize)
	if err != nil {
		return 0, err
	}
	var prefix [PrefixSize]byte
	binary.NativeEndian.PutUint32(prefix[:], uint32(len(buf)))
	if err := mem.Write(ptr, prefix[:]); err != nil {
		alloc.Free(ptr, uint32(total), PrefixSize)
		return 0, err
	}
	if err := mem.Write(ptr+PrefixSize, buf); err != nil {
		alloc.Free(ptr, uint32(total), PrefixSize)
		return 0, err
	}
	return ptr, nil
}

// Get returns a copy of the length-prefixed buffer at ptr.
func Get(mem Memory, ptr uint32) ([]byte, error) {
	view, err := view(mem, ptr)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), view...), nil
}

func view(mem Memory, ptr uint32) ([]byte, error) {
	prefix, err := mem.Read(ptr, PrefixSize)
	if err != nil {
		return nil, err
	}
	n := binary.NativeEndian.Uint32(prefix)
	if uint64(ptr)+PrefixSize+uint64(n) > uint64(mem.Size()) {
		return nil, errors.New(errors.PhaseGuest, errors.KindInvalidData).
			Value(n).
			Detail("buffer at %d claims %d bytes past the end of memory", ptr, n).
			Build()
	}
	return mem.Read(ptr+PrefixSize, n)
}
