package guest

import (
	"sync"

	"github.com/wippyai/picklebridge/errors"
)

// Arena is a bump allocator over [base, base+size) of a guest memory. Only
// the most recent allocation can be freed individually; Reset frees all.
type Arena struct {
	mem  Memory
	base uint32
	end  uint32

	mu   sync.Mutex
	next uint32
	last uint32
}

// NewArena reserves size bytes of mem starting at base.
func NewArena(mem Memory, base, size uint32) (*Arena, error) {
	end := uint64(base) + uint64(size)
	if end > uint64(mem.Size()) {
		return nil, errors.New(errors.PhaseGuest, errors.KindOutOfBounds).
			Value(end).
			Detail("arena [%d, %d) exceeds memory of %d bytes", base, end, mem.Size()).
			Build()
	}
	return &Arena{mem: mem, base: base, end: uint32(end), next: base, last: base}, nil
}

// Alloc returns the address of size bytes aligned to align, a power of two.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseGuest, "alignment must be a power of two")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := (uint64(a.next) + uint64(align) - 1) &^ (uint64(align) - 1)
	if start+uint64(size) > uint64(a.end) {
		return 0, errors.AllocationFailed(errors.PhaseGuest, int(size), int(a.end-a.next))
	}
	a.last = a.next
	a.next = uint32(start) + size
	return uint32(start), nil
}

// Free rewinds the arena if ptr is the most recent allocation and is
// otherwise a no-op.
func (a *Arena) Free(ptr, size, _ uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ptr+size == a.next && ptr >= a.last {
		a.next = a.last
	}
}

// Reset frees every allocation.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.next = a.base
	a.last = a.base
	a.mu.Unlock()
}

// Used returns the number of bytes allocated, padding included.
func (a *Arena) Used() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - a.base
}

// Memory returns the memory the arena allocates from.
func (a *Arena) Memory() Memory { return a.mem }
