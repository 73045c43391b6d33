package codec

import (
	"strconv"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/errors"
)

// KeyKind says how a stack entry is attached to its parent.
type KeyKind uint8

const (
	KeyNone KeyKind = iota
	KeyName
	KeyIndex
)

// Key is the property a value is assigned under when its scope closes.
type Key struct {
	Name  string
	Index uint32
	Kind  KeyKind
}

// NameKey returns a named property key.
func NameKey(name string) Key { return Key{Kind: KeyName, Name: name} }

// IndexKey returns an array index key.
func IndexKey(i uint32) Key { return Key{Kind: KeyIndex, Index: i} }

// IsZero reports whether k names no property.
func (k Key) IsZero() bool { return k.Kind == KeyNone }

func (k Key) String() string {
	switch k.Kind {
	case KeyName:
		return k.Name
	case KeyIndex:
		return "[" + strconv.FormatUint(uint64(k.Index), 10) + "]"
	}
	return ""
}

type frame struct {
	value picklebridge.Value
	key   Key
}

// ValueStack holds the open object scopes of one traversal. Entries are
// owned by the stack until popped.
//
// A mark fences off the entries of an enclosing scope: IsEmpty, Peek, Pop
// and Clear only see entries above the current mark, so a nested segment
// cannot unbalance its caller.
type ValueStack struct {
	eng    picklebridge.Engine
	frames []frame
	mark   int
	limit  int
	phase  errors.Phase
}

// NewValueStack creates a stack releasing entries through eng. A limit of
// zero or less means unbounded.
func NewValueStack(eng picklebridge.Engine, phase errors.Phase, limit int) *ValueStack {
	return &ValueStack{
		eng:    eng,
		frames: make([]frame, 0, 8),
		limit:  limit,
		phase:  phase,
	}
}

// Push moves v onto the stack. On failure v is released.
func (s *ValueStack) Push(v picklebridge.Value, key Key) error {
	if s.limit > 0 && len(s.frames) >= s.limit {
		s.eng.Free(v)
		return errors.New(s.phase, errors.KindAllocation).
			Value(len(s.frames) + 1).
			Detail("value stack limit %d reached", s.limit).
			Build()
	}
	s.frames = append(s.frames, frame{value: v, key: key})
	return nil
}

// Pop removes the top entry and hands ownership to the caller.
func (s *ValueStack) Pop() (picklebridge.Value, Key, error) {
	if len(s.frames) <= s.mark {
		return nil, Key{}, errors.Protocol(s.phase, nil, "OPT_POP without matching OPT_PUSH")
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = frame{}
	s.frames = s.frames[:len(s.frames)-1]
	return top.value, top.key, nil
}

// Peek returns the top entry without transferring ownership.
func (s *ValueStack) Peek() (picklebridge.Value, bool) {
	if len(s.frames) <= s.mark {
		return nil, false
	}
	return s.frames[len(s.frames)-1].value, true
}

// Mark fences the current entries and returns the previous mark for
// Reset.
func (s *ValueStack) Mark() int {
	prev := s.mark
	s.mark = len(s.frames)
	return prev
}

// Reset restores a mark returned by Mark.
func (s *ValueStack) Reset(mark int) {
	s.mark = mark
}

// IsEmpty reports whether no entries sit above the mark.
func (s *ValueStack) IsEmpty() bool {
	return len(s.frames) <= s.mark
}

// Clear releases every entry above the mark.
func (s *ValueStack) Clear() {
	for len(s.frames) > s.mark {
		top := s.frames[len(s.frames)-1]
		s.frames[len(s.frames)-1] = frame{}
		s.frames = s.frames[:len(s.frames)-1]
		s.eng.Free(top.value)
	}
}

// Len returns the total number of entries, marked or not.
func (s *ValueStack) Len() int {
	return len(s.frames)
}

// Depth returns the number of entries above the mark.
func (s *ValueStack) Depth() int {
	return len(s.frames) - s.mark
}
