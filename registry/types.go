package registry

import "math"

// Handle names a registered command. The low 32 bits select a table slot
// (1-based) and the high bits carry the slot's generation, which changes
// every time the slot is dropped, so a stale handle never resolves to the
// command registered after it. Handle 0 is reserved and always invalid. On
// the wire it travels as the int64 operand of TYPE_COMMAND.
type Handle uint64

// generations stay below 2^31 so a handle is a positive int64.
const generationMask = math.MaxInt32

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(slot)))
}

func (h Handle) slot() int { return int(uint32(h)) }

func (h Handle) generation() uint32 { return uint32(h >> 32) }

// EventType identifies a registry lifecycle event.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventRetained
	EventReleased
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event is a lifecycle notification.
type Event struct {
	Name   string
	Handle Handle
	Refs   uint32
	Type   EventType
}

// Observer receives lifecycle events. Observers run with no registry lock
// held and may call back into the registry.
type Observer interface {
	OnRegistryEvent(Event)
}

// ObserverFunc adapts a function to Observer. Function values are not
// comparable, so an ObserverFunc cannot be passed to Unsubscribe.
type ObserverFunc func(Event)

func (f ObserverFunc) OnRegistryEvent(e Event) { f(e) }
