// Package codec pickles engine values into flat data streams and unpickles
// them back, driven by commands from the command package.
//
// The pickler pairs a command with a live value and appends the leaves it
// visits to a wire.Sink. The unpickler pairs the same command with a data
// stream and rebuilds the value inside the engine:
//
//	c := codec.New(eng, codec.WithMaxDepth(64))
//	data, err := c.Pickle(v, cmd)
//	...
//	rebuilt, err := c.Unpickle(cmd, data)
//
// Object scopes opened with OPT_PUSH live on a ValueStack. Array elements,
// present nullable values and child commands run as nested scopes fenced by
// a stack mark. Every failure unwinds level by level and releases each
// value the traversal owned exactly once.
//
// The unpickler accepts a property either before its value, as the pickler
// reads it, or after it:
//
//	PUSH PROP "x" INT POP    prefix
//	PUSH INT PROP "x" POP    postfix
package codec
