package memengine

import (
	"fmt"
	"math"
	"sort"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/errors"
)

// FromGo builds an engine value from a Go value. Integers that fit int32
// become TagInt, other numbers TagFloat. Maps are built with their keys in
// sorted order. The caller owns the result.
func (e *Engine) FromGo(v any) (picklebridge.Value, error) {
	switch x := v.(type) {
	case nil:
		return e.NewNull(), nil
	case *Cell:
		return e.Dup(x), nil
	case bool:
		return e.NewBool(x), nil
	case int:
		return e.fromInt(int64(x)), nil
	case int8:
		return e.NewInt32(int32(x)), nil
	case int16:
		return e.NewInt32(int32(x)), nil
	case int32:
		return e.NewInt32(x), nil
	case int64:
		return e.fromInt(x), nil
	case uint:
		return e.fromUint(uint64(x)), nil
	case uint8:
		return e.NewInt32(int32(x)), nil
	case uint16:
		return e.NewInt32(int32(x)), nil
	case uint32:
		return e.fromUint(uint64(x)), nil
	case uint64:
		return e.fromUint(x), nil
	case float32:
		return e.NewFloat64(float64(x)), nil
	case float64:
		return e.NewFloat64(x), nil
	case string:
		return e.NewString(x)
	case []any:
		arr, err := e.NewArray()
		if err != nil {
			return nil, err
		}
		for i, el := range x {
			ev, err := e.FromGo(el)
			if err != nil {
				e.Free(arr)
				return nil, err
			}
			if err := e.SetIndex(arr, uint32(i), ev); err != nil {
				e.Free(arr)
				return nil, err
			}
		}
		return arr, nil
	case map[string]any:
		obj, err := e.NewObject()
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ev, err := e.FromGo(x[k])
			if err != nil {
				e.Free(obj)
				return nil, err
			}
			if err := e.SetProperty(obj, k, ev); err != nil {
				e.Free(obj)
				return nil, err
			}
		}
		return obj, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, el := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, errors.InvalidInput(errors.PhaseEngine, fmt.Sprintf("non-string map key %T", k))
			}
			m[ks] = el
		}
		return e.FromGo(m)
	}
	return nil, errors.InvalidInput(errors.PhaseEngine, fmt.Sprintf("unsupported Go type %T", v))
}

func (e *Engine) fromInt(i int64) picklebridge.Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return e.NewInt32(int32(i))
	}
	return e.NewFloat64(float64(i))
}

func (e *Engine) fromUint(u uint64) picklebridge.Value {
	if u <= math.MaxInt32 {
		return e.NewInt32(int32(u))
	}
	return e.NewFloat64(float64(u))
}

// ToGo converts an engine value to plain Go: nil, bool, int32, float64,
// string, []any and map[string]any. Values tagged TagOther become nil. v
// stays owned by the caller.
func (e *Engine) ToGo(v picklebridge.Value) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ToGo")
	if c == nil {
		return nil
	}
	return c.toGo()
}

func (c *Cell) toGo() any {
	switch c.tag {
	case picklebridge.TagBool:
		return c.b
	case picklebridge.TagInt:
		return c.i
	case picklebridge.TagFloat:
		return c.f
	case picklebridge.TagString:
		return c.s
	case picklebridge.TagArray:
		out := make([]any, len(c.elems))
		for i, el := range c.elems {
			out[i] = el.toGo()
		}
		return out
	case picklebridge.TagObject:
		out := make(map[string]any, len(c.keys))
		for _, k := range c.keys {
			out[k] = c.props[k].toGo()
		}
		return out
	}
	return nil
}

// Equal reports whether a and b are structurally equal: same tags, same
// scalars, same array lengths and order, same property sets. Property
// order is ignored.
func (e *Engine) Equal(a, b picklebridge.Value) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ca, cb := e.cell(a, "Equal"), e.cell(b, "Equal")
	if ca == nil || cb == nil {
		return false
	}
	return ca.equal(cb)
}

func (c *Cell) equal(o *Cell) bool {
	if c == o {
		return true
	}
	if c.tag != o.tag {
		return false
	}
	switch c.tag {
	case picklebridge.TagBool:
		return c.b == o.b
	case picklebridge.TagInt:
		return c.i == o.i
	case picklebridge.TagFloat:
		return c.f == o.f || (math.IsNaN(c.f) && math.IsNaN(o.f))
	case picklebridge.TagString:
		return c.s == o.s
	case picklebridge.TagArray:
		if len(c.elems) != len(o.elems) {
			return false
		}
		for i := range c.elems {
			if !c.elems[i].equal(o.elems[i]) {
				return false
			}
		}
		return true
	case picklebridge.TagObject:
		if len(c.keys) != len(o.keys) {
			return false
		}
		for _, k := range c.keys {
			op, ok := o.props[k]
			if !ok || !c.props[k].equal(op) {
				return false
			}
		}
		return true
	case picklebridge.TagOther:
		return false
	}
	return true
}
