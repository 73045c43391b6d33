package codec

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/picklebridge"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/registry"
	"github.com/wippyai/picklebridge/wire"
)

const (
	DefaultMaxDepth       = 256
	DefaultMaxArrayLength = 1 << 20
	DefaultSinkCapacity   = 256
)

// Codec pickles engine values into data streams and unpickles them back,
// driven by commands. A Codec holds only configuration and is safe for
// concurrent use; every call builds its own stack and cursors.
type Codec struct {
	eng          picklebridge.Engine
	registry     *registry.Registry
	logger       *zap.Logger
	pool         *sinkPool
	maxDepth     int
	maxArray     int
	stackLimit   int
	sinkCapacity int
	sinkLimit    int
	validate     bool
	ownsRegistry bool
	closed       atomic.Bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxDepth bounds the nesting of object scopes, array elements,
// nullable segments and child commands.
func WithMaxDepth(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithMaxArrayLength bounds the element count the unpickler accepts from
// a data stream.
func WithMaxArrayLength(n int) Option {
	return func(c *Codec) {
		if n >= 0 {
			c.maxArray = n
		}
	}
}

// WithStackLimit caps the value stack. Zero means unbounded.
func WithStackLimit(n int) Option {
	return func(c *Codec) { c.stackLimit = n }
}

// WithSinkCapacity sets the initial capacity of sinks created by Pickle.
func WithSinkCapacity(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.sinkCapacity = n
		}
	}
}

// WithSinkLimit caps the size of data streams produced by Pickle.
func WithSinkLimit(n int) Option {
	return func(c *Codec) { c.sinkLimit = n }
}

// WithRegistry resolves TYPE_COMMAND handles through r. The codec does not
// take ownership of r.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Codec) { c.registry = r }
}

// WithLogger sets the logger used for traversal diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithValidation controls the structural check run on every command before
// use: command.ValidatePrefix for Pickle, command.Validate for Unpickle. It
// is on by default; turn it off only for trusted, precompiled commands.
func WithValidation(on bool) Option {
	return func(c *Codec) { c.validate = on }
}

// New creates a codec over eng. Without WithRegistry the codec creates and
// owns an empty registry, released by Close.
func New(eng picklebridge.Engine, opts ...Option) *Codec {
	c := &Codec{
		eng:          eng,
		maxDepth:     DefaultMaxDepth,
		maxArray:     DefaultMaxArrayLength,
		sinkCapacity: DefaultSinkCapacity,
		validate:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = registry.New()
		c.ownsRegistry = true
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	c.pool = newSinkPool(c.sinkCapacity, c.sinkLimit)
	return c
}

// Engine returns the engine the codec operates on.
func (c *Codec) Engine() picklebridge.Engine { return c.eng }

// Registry returns the registry used to resolve child commands.
func (c *Codec) Registry() *registry.Registry { return c.registry }

// Pickle walks v as described by cmd and returns the data stream. v stays
// owned by the caller.
func (c *Codec) Pickle(v picklebridge.Value, cmd command.Command) ([]byte, error) {
	sink := c.pool.get()
	defer c.pool.put(sink)

	if err := c.PickleTo(v, cmd, sink); err != nil {
		return nil, err
	}
	return append([]byte(nil), sink.Bytes()...), nil
}

// PickleTo appends the data stream for v to sink. On failure sink is
// truncated back to its length on entry.
func (c *Codec) PickleTo(v picklebridge.Value, cmd command.Command, sink *wire.Sink) error {
	if err := c.check(cmd, true); err != nil {
		return err
	}
	entry := sink.Len()
	p := &pickler{
		codec: c,
		eng:   c.eng,
		sink:  sink,
		stack: NewValueStack(c.eng, errors.PhasePickle, c.stackLimit),
	}
	if err := p.scope(wire.NewCursor(cmd), v); err != nil {
		sink.Truncate(entry)
		c.logFailure("pickle", err)
		return err
	}
	return nil
}

// Unpickle rebuilds a value from data as described by cmd. Both cmd and
// data must be consumed exactly. The caller owns the result.
func (c *Codec) Unpickle(cmd command.Command, data []byte) (picklebridge.Value, error) {
	if err := c.check(cmd, false); err != nil {
		return nil, err
	}
	u := &unpickler{
		codec: c,
		eng:   c.eng,
		data:  wire.NewCursor(data),
		stack: NewValueStack(c.eng, errors.PhaseUnpickle, c.stackLimit),
	}
	v, err := u.scope(wire.NewCursor(cmd))
	if err == nil && u.data.HasNext() {
		c.eng.Free(v)
		err = errors.Protocol(errors.PhaseUnpickle, nil,
			"%d trailing bytes in data stream", u.data.Remaining())
	}
	if err != nil {
		c.logFailure("unpickle", err)
		return nil, err
	}
	return v, nil
}

// Close releases the registry if the codec owns it. Later calls fail.
func (c *Codec) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.ownsRegistry {
		return c.registry.Close()
	}
	return nil
}

func (c *Codec) check(cmd command.Command, prefix bool) error {
	if c.closed.Load() {
		return errors.Closed(errors.PhaseCommand, "codec")
	}
	if len(cmd) == 0 {
		return errors.Protocol(errors.PhaseCommand, nil, "empty command")
	}
	switch {
	case !c.validate:
		return nil
	case prefix:
		return command.ValidatePrefix(cmd, c.registry)
	}
	return command.Validate(cmd, c.registry)
}

func (c *Codec) resolve(phase errors.Phase, path []string, handle int64) (command.Command, error) {
	child, ok := c.registry.Resolve(handle)
	if !ok {
		return nil, errors.Protocol(phase, path, "unknown child command handle %d", handle)
	}
	return child, nil
}

func (c *Codec) logFailure(op string, err error) {
	if ce := c.logger.Check(zap.DebugLevel, op+" failed"); ce != nil {
		fields := []zap.Field{zap.String("kind", string(errors.KindOf(err))), zap.Error(err)}
		if e, ok := err.(*errors.Error); ok && len(e.Path) > 0 {
			fields = append(fields, zap.String("path", errors.JoinPath(e.Path)))
		}
		ce.Write(fields...)
	}
}

// engineErr keeps structured engine errors and wraps anything else as an
// evaluation failure.
func engineErr(phase errors.Phase, path []string, what string, err error) error {
	if e, ok := err.(*errors.Error); ok {
		if len(e.Path) == 0 && len(path) > 0 {
			cp := *e
			cp.Path = clonePath(path)
			return &cp
		}
		return e
	}
	return errors.Evaluation(phase, clonePath(path), what, err)
}

func clonePath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	return append([]string(nil), path...)
}
