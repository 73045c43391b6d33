// Package picklebridge moves structured values between a host program and an
// embedded value engine by pickling them into a neutral byte encoding.
//
// A pre-compiled command stream describes how to walk a value graph: which
// properties to visit, which leaves are nullable, where arrays repeat a
// segment and where a child command is spliced in. The pickler pairs a
// command with a live engine value and writes the visited leaves into a flat
// data stream; the unpickler pairs the same command with a data stream and
// rebuilds the value inside the engine.
//
// # Architecture Overview
//
//	picklebridge/   Root package with the Engine capability interface and tags
//	├── codec/      Pickler, unpickler, value stack, Codec context
//	├── command/    Opcodes, builder, disassembler, validator
//	├── wire/       Growable byte sink and bounded byte cursor
//	├── registry/   Handle table for child commands
//	├── compiler/   WIT type to command compilation
//	├── memengine/  Reference-counted in-memory Engine (tests, tooling)
//	├── guest/      Staging buffers in wazero guest linear memory
//	├── cache/      SQLite store for compiled commands
//	├── config/     TOML tool configuration and type schema
//	└── errors/     Structured error types
//
// # Quick Start
//
//	eng := memengine.New()
//	c := codec.New(eng)
//
//	cmd := command.NewBuilder().
//		Push().
//		PropStr("x").Int().
//		PropStr("y").String().
//		Pop().
//		Command()
//
//	data, err := c.Pickle(value, cmd)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rebuilt, err := c.Unpickle(cmd, data)
//
// # Data Stream
//
// The data stream carries only leaf payloads, in visiting order, in the
// producing process's native byte order:
//
//	Opcode        Payload
//	─────────────────────────────────────────
//	BOOLEAN       1 byte
//	BYTE/SHORT    int8 / int16
//	INT           int32
//	FLOAT/DOUBLE  float32 / float64
//	NUMBER        tag byte (0 int32, 1 float64) + payload
//	STRING        int32 length + bytes, no terminator
//	ARRAY         int32 length, then elements
//	NULLABLE      1 presence byte, then the wrapped payload if present
//
// # Thread Safety
//
// Codec and Registry are safe for concurrent use. Sinks, cursors and value
// stacks are per call and must not be shared between goroutines.
package picklebridge
