package compiler

import (
	"bytes"
	"strconv"
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/registry"
)

// MaxDepth bounds how deeply type definitions may nest.
const MaxDepth = 64

// Compiler turns WIT types into commands. It is safe for concurrent use.
type Compiler struct {
	registry *registry.Registry
	cache    sync.Map // wit.Type -> command.Command

	mu       sync.Mutex
	children map[*wit.TypeDef]registry.Handle
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRegistry makes the compiler emit named records nested inside other
// types as TYPE_COMMAND references to children registered in r.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Compiler) { c.registry = r }
}

func New(opts ...Option) *Compiler {
	c := &Compiler{children: make(map[*wit.TypeDef]registry.Handle)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the command describing values of type t.
func (c *Compiler) Compile(t wit.Type) (command.Command, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "type cannot be nil")
	}
	if cached, ok := c.cache.Load(t); ok {
		return cached.(command.Command), nil
	}

	b := command.NewBuilder()
	if err := c.emit(b, t, nil, 0, false); err != nil {
		return nil, err
	}
	cmd, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindOf(err), err, "assemble command")
	}
	actual, _ := c.cache.LoadOrStore(t, cmd)
	return actual.(command.Command), nil
}

// Release drops the references the compiler holds on registered children
// and forgets them. Commands compiled earlier may refer to released
// handles and are evicted from the cache.
func (c *Compiler) Release() error {
	c.mu.Lock()
	children := c.children
	c.children = make(map[*wit.TypeDef]registry.Handle)
	c.mu.Unlock()

	var first error
	for _, h := range children {
		if err := c.registry.Release(h); err != nil && first == nil {
			first = err
		}
	}
	if len(children) > 0 {
		c.cache.Range(func(k, v any) bool {
			if v.(command.Command).HasChildren() {
				c.cache.Delete(k)
			}
			return true
		})
	}
	return first
}

// emit appends the command for t. nested is false only for the outermost
// type, which is always compiled inline.
func (c *Compiler) emit(b *command.Builder, t wit.Type, path []string, depth int, nested bool) error {
	if depth > MaxDepth {
		return errors.DepthExceeded(errors.PhaseCompile, path, MaxDepth)
	}

	switch t := t.(type) {
	case wit.Bool:
		b.Boolean()
	case wit.S8:
		b.Byte()
	case wit.S16:
		b.Short()
	case wit.U8, wit.U16, wit.S32:
		b.Int()
	case wit.U32, wit.S64, wit.U64:
		b.Number()
	case wit.F32:
		b.Float()
	case wit.F64:
		b.Double()
	case wit.Char, wit.String:
		b.String()
	case *wit.TypeDef:
		return c.emitTypeDef(b, t, path, depth, nested)
	default:
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type: %T", t).
			Build()
	}
	return nil
}

func (c *Compiler) emitTypeDef(b *command.Builder, td *wit.TypeDef, path []string, depth int, nested bool) error {
	switch kind := td.Kind.(type) {
	case *wit.Record:
		if nested && c.registry != nil && td.Name != nil {
			h, err := c.child(td, path, depth)
			if err != nil {
				return err
			}
			b.Child(int64(h))
			return nil
		}
		return c.emitRecord(b, kind, path, depth)

	case *wit.Tuple:
		b.Push()
		for i, elem := range kind.Types {
			b.PropInt(int32(i))
			if err := c.emit(b, elem, appendPath(path, "["+strconv.Itoa(i)+"]"), depth+1, true); err != nil {
				return err
			}
		}
		b.Pop()
		return nil

	case *wit.List:
		var err error
		b.Array(func(b *command.Builder) {
			err = c.emit(b, kind.Type, appendPath(path, "[elem]"), depth+1, true)
		})
		return err

	case *wit.Option:
		var err error
		b.Nullable(func(b *command.Builder) {
			err = c.emit(b, kind.Type, appendPath(path, "[some]"), depth+1, true)
		})
		return err

	case *wit.Enum:
		b.String()
		return nil

	case *wit.Flags:
		// one boolean property per flag
		b.Push()
		for _, f := range kind.Flags {
			b.PropStr(f.Name).Boolean()
		}
		b.Pop()
		return nil

	case *wit.Result, *wit.Variant:
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("%s: tagged unions have no command form", typeName(td)).
			Build()

	case *wit.Own, *wit.Borrow:
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("%s: resource handles cannot be pickled", typeName(td)).
			Build()

	case wit.Type:
		// type alias
		return c.emit(b, kind, path, depth+1, nested)

	default:
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported type definition kind: %T", td.Kind).
			Build()
	}
}

func (c *Compiler) emitRecord(b *command.Builder, r *wit.Record, path []string, depth int) error {
	b.Push()
	for _, f := range r.Fields {
		b.PropStr(f.Name)
		if err := c.emit(b, f.Type, appendPath(path, f.Name), depth+1, true); err != nil {
			return err
		}
	}
	b.Pop()
	return nil
}

// child registers the record td once and returns its handle.
func (c *Compiler) child(td *wit.TypeDef, path []string, depth int) (registry.Handle, error) {
	c.mu.Lock()
	h, ok := c.children[td]
	c.mu.Unlock()
	if ok {
		return h, nil
	}

	b := command.NewBuilder()
	if err := c.emitRecord(b, td.Kind.(*wit.Record), path, depth); err != nil {
		return 0, err
	}
	body, err := b.Build()
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCompile, errors.KindOf(err), err, "assemble child")
	}

	name := *td.Name
	if prev, ok := c.registry.Lookup(name); ok {
		if existing, _ := c.registry.Get(prev); !bytes.Equal(existing, body) {
			// same name, different shape: keep it anonymous
			name = ""
		}
	}
	h, err = c.registry.RegisterNamed(name, body)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCompile, errors.KindOf(err), err, "register "+*td.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.children[td]; ok {
		// lost a race with another Compile of the same record
		_ = c.registry.Release(h)
		return prev, nil
	}
	c.children[td] = h
	return h, nil
}

func typeName(td *wit.TypeDef) string {
	if td.Name != nil {
		return *td.Name
	}
	switch td.Kind.(type) {
	case *wit.Result:
		return "result"
	case *wit.Variant:
		return "variant"
	case *wit.Own:
		return "own"
	case *wit.Borrow:
		return "borrow"
	}
	return "type"
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}
