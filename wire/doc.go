// Package wire provides the byte-level primitives of the data and command
// streams: Sink, an append-only growable buffer, and Cursor, a bounded
// sequential reader whose window can be moved to replay nested segments.
//
// All multi-byte values use the native byte order of the running process.
// The format is an in-process handoff, not a durable file format.
package wire
