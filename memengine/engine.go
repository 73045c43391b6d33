package memengine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/errors"
)

// Getter computes a property value on read. The returned value is owned by
// the caller of GetProperty.
type Getter func() (picklebridge.Value, error)

// Cell is a reference-counted engine value.
type Cell struct {
	props   map[string]*Cell
	getters map[string]Getter
	s       string
	keys    []string
	elems   []*Cell
	f       float64
	id      uint64
	refs    int
	i       int32
	tag     picklebridge.Tag
	b       bool
	frozen  bool
}

// ID returns the allocation sequence number of c.
func (c *Cell) ID() uint64 { return c.id }

// Engine is an in-memory picklebridge.Engine with instrumented reference
// counting. Every value, scalars included, is a heap cell. Releasing a
// cell twice or touching a released cell is recorded as a fault instead of
// corrupting state, which lets tests assert that a traversal released
// exactly what it owned.
//
// Engine is safe for concurrent use.
type Engine struct {
	live   map[*Cell]struct{}
	faults []string
	nextID uint64
	limit  int
	mu     sync.Mutex
}

var _ picklebridge.Engine = (*Engine)(nil)

// New creates an engine with no allocation limit.
func New() *Engine {
	return &Engine{
		live:  make(map[*Cell]struct{}),
		limit: -1,
	}
}

// SetLimit caps the number of live cells. Once reached, NewString,
// NewObject and NewArray fail with an allocation error. A negative limit
// removes the cap.
func (e *Engine) SetLimit(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limit = n
}

// Live returns the number of cells not yet released.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Faults returns the recorded ownership faults.
func (e *Engine) Faults() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.faults...)
}

// Check returns an error describing recorded faults, or nil.
func (e *Engine) Check() error {
	faults := e.Faults()
	if len(faults) == 0 {
		return nil
	}
	return errors.New(errors.PhaseEngine, errors.KindInvalidData).
		Value(len(faults)).
		Detail("%d ownership faults: %s", len(faults), strings.Join(faults, "; ")).
		Build()
}

func (e *Engine) alloc(tag picklebridge.Tag) *Cell {
	e.nextID++
	c := &Cell{tag: tag, refs: 1, id: e.nextID}
	e.live[c] = struct{}{}
	return c
}

func (e *Engine) allocChecked(tag picklebridge.Tag) (*Cell, error) {
	if e.limit >= 0 && len(e.live) >= e.limit {
		return nil, errors.AllocationFailed(errors.PhaseEngine, len(e.live)+1, e.limit)
	}
	return e.alloc(tag), nil
}

func (e *Engine) fault(format string, args ...any) {
	e.faults = append(e.faults, fmt.Sprintf(format, args...))
}

// cell unwraps v and records a fault if it is foreign or released. Must be
// called with mu held.
func (e *Engine) cell(v picklebridge.Value, op string) *Cell {
	c, ok := v.(*Cell)
	if !ok || c == nil {
		e.fault("%s: foreign value %T", op, v)
		return nil
	}
	if c.refs <= 0 {
		e.fault("%s: use after free of cell #%d", op, c.id)
		return nil
	}
	return c
}

func (e *Engine) Tag(v picklebridge.Value) picklebridge.Tag {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "Tag")
	if c == nil {
		return picklebridge.TagOther
	}
	return c.tag
}

func (e *Engine) ToBool(v picklebridge.Value) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ToBool")
	if c == nil {
		return false
	}
	switch c.tag {
	case picklebridge.TagBool:
		return c.b
	case picklebridge.TagInt:
		return c.i != 0
	case picklebridge.TagFloat:
		return c.f != 0 && !math.IsNaN(c.f)
	case picklebridge.TagString:
		return c.s != ""
	case picklebridge.TagObject, picklebridge.TagArray:
		return true
	}
	return false
}

func (e *Engine) ToInt32(v picklebridge.Value) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ToInt32")
	if c == nil {
		return 0
	}
	switch c.tag {
	case picklebridge.TagBool:
		if c.b {
			return 1
		}
	case picklebridge.TagInt:
		return c.i
	case picklebridge.TagFloat:
		return wrapInt32(c.f)
	case picklebridge.TagString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c.s), 64); err == nil {
			return wrapInt32(f)
		}
	}
	return 0
}

// wrapInt32 truncates f and wraps it modulo 2^32.
func wrapInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}

func (e *Engine) ToFloat64(v picklebridge.Value) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ToFloat64")
	if c == nil {
		return math.NaN()
	}
	switch c.tag {
	case picklebridge.TagBool:
		if c.b {
			return 1
		}
		return 0
	case picklebridge.TagInt:
		return float64(c.i)
	case picklebridge.TagFloat:
		return c.f
	case picklebridge.TagNull:
		return 0
	case picklebridge.TagString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c.s), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func (e *Engine) ToString(v picklebridge.Value) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ToString")
	if c == nil {
		return "", errors.InvalidInput(errors.PhaseEngine, "invalid value")
	}
	return c.text(), nil
}

func (c *Cell) text() string {
	switch c.tag {
	case picklebridge.TagUndefined:
		return "undefined"
	case picklebridge.TagNull:
		return "null"
	case picklebridge.TagBool:
		return strconv.FormatBool(c.b)
	case picklebridge.TagInt:
		return strconv.FormatInt(int64(c.i), 10)
	case picklebridge.TagFloat:
		return strconv.FormatFloat(c.f, 'g', -1, 64)
	case picklebridge.TagString:
		return c.s
	case picklebridge.TagArray:
		return "[object Array]"
	}
	return "[object Object]"
}

func (e *Engine) ArrayLength(v picklebridge.Value) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(v, "ArrayLength")
	if c == nil || c.tag != picklebridge.TagArray {
		return 0, false
	}
	return uint32(len(c.elems)), true
}

func (e *Engine) GetIndex(obj picklebridge.Value, index uint32) (picklebridge.Value, error) {
	e.mu.Lock()
	c := e.cell(obj, "GetIndex")
	if c == nil {
		e.mu.Unlock()
		return nil, errors.InvalidInput(errors.PhaseEngine, "GetIndex on invalid value")
	}
	if c.tag != picklebridge.TagArray {
		e.mu.Unlock()
		return e.GetProperty(obj, strconv.FormatUint(uint64(index), 10))
	}
	defer e.mu.Unlock()
	if int(index) >= len(c.elems) {
		return e.alloc(picklebridge.TagUndefined), nil
	}
	el := c.elems[index]
	el.refs++
	return el, nil
}

func (e *Engine) GetProperty(obj picklebridge.Value, name string) (picklebridge.Value, error) {
	e.mu.Lock()
	c := e.cell(obj, "GetProperty")
	if c == nil {
		e.mu.Unlock()
		return nil, errors.InvalidInput(errors.PhaseEngine, "GetProperty on invalid value")
	}
	if g, ok := c.getters[name]; ok {
		e.mu.Unlock()
		return g()
	}
	defer e.mu.Unlock()

	if c.tag == picklebridge.TagArray {
		if name == "length" {
			return e.alloc(picklebridge.TagInt).setInt(int32(len(c.elems))), nil
		}
		if i, err := strconv.ParseUint(name, 10, 32); err == nil && int(i) < len(c.elems) {
			el := c.elems[i]
			el.refs++
			return el, nil
		}
	}
	if c.tag == picklebridge.TagString && name == "length" {
		return e.alloc(picklebridge.TagInt).setInt(int32(len(c.s))), nil
	}
	if p, ok := c.props[name]; ok {
		p.refs++
		return p, nil
	}
	return e.alloc(picklebridge.TagUndefined), nil
}

func (c *Cell) setInt(i int32) *Cell {
	c.i = i
	return c
}

func (e *Engine) SetIndex(obj picklebridge.Value, index uint32, v picklebridge.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	val := e.cell(v, "SetIndex value")
	c := e.cell(obj, "SetIndex")
	if c == nil {
		e.release(val)
		return errors.InvalidInput(errors.PhaseEngine, "SetIndex on invalid value")
	}
	if val == nil {
		return errors.InvalidInput(errors.PhaseEngine, "SetIndex with invalid value")
	}
	if c.frozen {
		e.release(val)
		return errors.New(errors.PhaseEngine, errors.KindEvaluation).
			Detail("cannot assign index %d of frozen %s", index, c.tag).
			Build()
	}
	if c.tag != picklebridge.TagArray {
		return e.setProp(c, strconv.FormatUint(uint64(index), 10), val)
	}
	for uint32(len(c.elems)) < index {
		c.elems = append(c.elems, e.alloc(picklebridge.TagUndefined))
	}
	if int(index) < len(c.elems) {
		e.release(c.elems[index])
		c.elems[index] = val
		return nil
	}
	c.elems = append(c.elems, val)
	return nil
}

func (e *Engine) SetProperty(obj picklebridge.Value, name string, v picklebridge.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	val := e.cell(v, "SetProperty value")
	c := e.cell(obj, "SetProperty")
	if c == nil {
		e.release(val)
		return errors.InvalidInput(errors.PhaseEngine, "SetProperty on invalid value")
	}
	if val == nil {
		return errors.InvalidInput(errors.PhaseEngine, "SetProperty with invalid value")
	}
	if c.frozen {
		e.release(val)
		return errors.New(errors.PhaseEngine, errors.KindEvaluation).
			Detail("cannot assign property %q of frozen %s", name, c.tag).
			Build()
	}
	return e.setProp(c, name, val)
}

// setProp must be called with mu held.
func (e *Engine) setProp(c *Cell, name string, val *Cell) error {
	if c.tag != picklebridge.TagObject && c.tag != picklebridge.TagArray {
		e.release(val)
		return errors.New(errors.PhaseEngine, errors.KindTypeMismatch).
			Expected("object").
			Actual(c.tag.String()).
			Detail("cannot set property %q", name).
			Build()
	}
	if c.props == nil {
		c.props = make(map[string]*Cell)
	}
	if old, ok := c.props[name]; ok {
		e.release(old)
	} else {
		c.keys = append(c.keys, name)
	}
	c.props[name] = val
	return nil
}

func (e *Engine) NewNull() picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc(picklebridge.TagNull)
}

// NewUndefined returns the undefined value.
func (e *Engine) NewUndefined() picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc(picklebridge.TagUndefined)
}

func (e *Engine) NewBool(b bool) picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.alloc(picklebridge.TagBool)
	c.b = b
	return c
}

func (e *Engine) NewInt32(i int32) picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc(picklebridge.TagInt).setInt(i)
}

func (e *Engine) NewFloat64(f float64) picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.alloc(picklebridge.TagFloat)
	c.f = f
	return c
}

func (e *Engine) NewString(s string) (picklebridge.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.allocChecked(picklebridge.TagString)
	if err != nil {
		return nil, err
	}
	c.s = s
	return c, nil
}

func (e *Engine) NewObject() (picklebridge.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.allocChecked(picklebridge.TagObject)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) NewArray() (picklebridge.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.allocChecked(picklebridge.TagArray)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewOther returns a value tagged TagOther, standing in for engine types
// the codec does not transfer (functions, symbols).
func (e *Engine) NewOther() picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc(picklebridge.TagOther)
}

func (e *Engine) Dup(v picklebridge.Value) picklebridge.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.cell(v, "Dup"); c != nil {
		c.refs++
	}
	return v
}

func (e *Engine) Free(v picklebridge.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := v.(*Cell)
	if !ok || c == nil {
		e.fault("Free: foreign value %T", v)
		return
	}
	if c.refs <= 0 {
		e.fault("double free of cell #%d", c.id)
		return
	}
	e.release(c)
}

// release drops one reference. Must be called with mu held.
func (e *Engine) release(c *Cell) {
	if c == nil {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	delete(e.live, c)
	for _, el := range c.elems {
		e.release(el)
	}
	for _, k := range c.keys {
		e.release(c.props[k])
	}
	c.elems = nil
	c.props = nil
	c.keys = nil
	c.getters = nil
}

// DefineGetter installs fn as the reader of obj's property name. Getters
// take precedence over stored properties.
func (e *Engine) DefineGetter(obj picklebridge.Value, name string, fn Getter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(obj, "DefineGetter")
	if c == nil || (c.tag != picklebridge.TagObject && c.tag != picklebridge.TagArray) {
		return errors.InvalidInput(errors.PhaseEngine, "DefineGetter requires an object")
	}
	if c.getters == nil {
		c.getters = make(map[string]Getter)
	}
	c.getters[name] = fn
	return nil
}

// Freeze makes every later SetIndex and SetProperty on obj fail with an
// evaluation error.
func (e *Engine) Freeze(obj picklebridge.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.cell(obj, "Freeze"); c != nil {
		c.frozen = true
	}
}

// Keys returns obj's own property names in insertion order.
func (e *Engine) Keys(obj picklebridge.Value) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cell(obj, "Keys")
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Refs returns v's reference count, 0 once released.
func (e *Engine) Refs(v picklebridge.Value) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := v.(*Cell); ok && c != nil && c.refs > 0 {
		return c.refs
	}
	return 0
}
