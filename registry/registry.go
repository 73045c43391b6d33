package registry

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
)

const maxHandles = math.MaxInt32

// Registry is a handle table of child commands referenced by TYPE_COMMAND.
// Entries are reference counted and handles are recycled through a free
// list once dropped. It is safe for concurrent use.
type Registry struct {
	names     map[string]Handle
	entries   []entry
	freeList  []int
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	name  string
	cmd   command.Command
	refs  uint32
	gen   uint32
	valid bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		names:    make(map[string]Handle),
		entries:  make([]entry, 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Register validates cmd against the commands already registered, stores a
// copy of it and returns its handle with one reference held.
func (r *Registry) Register(cmd command.Command) (Handle, error) {
	return r.RegisterNamed("", cmd)
}

// RegisterNamed is Register with a lookup name. If name is already
// registered the existing handle is retained and returned and cmd is
// ignored.
func (r *Registry) RegisterNamed(name string, cmd command.Command) (Handle, error) {
	if name != "" {
		if h, ok := r.Lookup(name); ok {
			if err := r.Retain(h); err == nil {
				return h, nil
			}
		}
	}
	if err := command.Validate(cmd, r); err != nil {
		return 0, errors.Wrap(errors.PhaseRegistry, errors.KindOf(err), err, "invalid command")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, errors.Closed(errors.PhaseRegistry, "registry")
	}
	if name != "" {
		if h, ok := r.names[name]; ok {
			r.entries[h.slot()-1].refs++
			refs := r.entries[h.slot()-1].refs
			r.mu.Unlock()
			r.notify(Event{Type: EventRetained, Handle: h, Name: name, Refs: refs})
			return h, nil
		}
	}

	e := entry{
		name:  name,
		cmd:   append(command.Command(nil), cmd...),
		refs:  1,
		valid: true,
	}
	var h Handle
	if n := len(r.freeList); n > 0 {
		slot := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		e.gen = r.entries[slot-1].gen
		r.entries[slot-1] = e
		h = makeHandle(slot, e.gen)
	} else {
		if len(r.entries) >= maxHandles {
			r.mu.Unlock()
			return 0, errors.AllocationFailed(errors.PhaseRegistry, len(r.entries)+1, maxHandles)
		}
		r.entries = append(r.entries, e)
		h = makeHandle(len(r.entries), 0)
	}
	if name != "" {
		r.names[name] = h
	}
	r.mu.Unlock()

	r.notify(Event{Type: EventRegistered, Handle: h, Name: name, Refs: 1})
	return h, nil
}

// Lookup returns the handle registered under name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.names[name]
	return h, ok
}

// Get returns the command stored under h. The returned slice is owned by
// the registry and must not be modified.
func (r *Registry) Get(h Handle) (command.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lookup(h)
	if !ok {
		return nil, false
	}
	return e.cmd, true
}

// Resolve implements command.Resolver.
func (r *Registry) Resolve(handle int64) (command.Command, bool) {
	if handle <= 0 {
		return nil, false
	}
	return r.Get(Handle(handle))
}

// Name returns the name h was registered under, or "".
func (r *Registry) Name(h Handle) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lookup(h)
	if !ok {
		return ""
	}
	return e.name
}

// Retain adds a reference to h.
func (r *Registry) Retain(h Handle) error {
	r.mu.Lock()
	e, ok := r.lookup(h)
	if !ok {
		r.mu.Unlock()
		return r.invalid(h)
	}
	e.refs++
	ev := Event{Type: EventRetained, Handle: h, Name: e.name, Refs: e.refs}
	r.mu.Unlock()

	r.notify(ev)
	return nil
}

// Release drops a reference to h. The command is removed when the last
// reference goes away. Its slot is then reused under a new generation, so h
// and any command still carrying it stop resolving.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	e, ok := r.lookup(h)
	if !ok {
		r.mu.Unlock()
		return r.invalid(h)
	}
	e.refs--
	ev := Event{Type: EventReleased, Handle: h, Name: e.name, Refs: e.refs}
	if e.refs == 0 {
		ev.Type = EventDropped
		if e.name != "" {
			delete(r.names, e.name)
		}
		*e = entry{gen: (e.gen + 1) & generationMask}
		r.freeList = append(r.freeList, h.slot())
	}
	r.mu.Unlock()

	r.notify(ev)
	return nil
}

// Len returns the number of live commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) - len(r.freeList)
}

// Each calls fn for every live command until fn returns false.
func (r *Registry) Each(fn func(Handle, string, command.Command) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, e := range r.entries {
		if e.valid && !fn(makeHandle(i+1, e.gen), e.name, e.cmd) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close drops every command and stops accepting registrations. Closing
// twice is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	n := len(r.entries) - len(r.freeList)
	r.entries = nil
	r.freeList = nil
	r.names = nil
	r.mu.Unlock()

	Logger().Debug("registry closed", zap.Int("dropped", n))
	return nil
}

// lookup must be called with mu held.
func (r *Registry) lookup(h Handle) (*entry, bool) {
	slot := h.slot()
	if slot == 0 || slot > len(r.entries) {
		return nil, false
	}
	e := &r.entries[slot-1]
	if !e.valid || e.gen != h.generation() {
		return nil, false
	}
	return e, true
}

func (r *Registry) invalid(h Handle) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return errors.Closed(errors.PhaseRegistry, "registry")
	}
	return errors.New(errors.PhaseRegistry, errors.KindNotFound).
		Value(h).
		Detail("unknown command handle %d", h).
		Build()
}

func (r *Registry) notify(e Event) {
	Logger().Debug("command "+e.Type.String(),
		zap.Uint64("handle", uint64(e.Handle)),
		zap.String("name", e.Name),
		zap.Uint32("refs", e.Refs))

	r.obsMu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.obsMu.RUnlock()
	for _, o := range observers {
		o.OnRegistryEvent(e)
	}
}
