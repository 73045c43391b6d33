// Package memengine is an in-memory value engine for the codec.
//
// It implements picklebridge.Engine with reference-counted cells and
// records ownership faults (double free, use after free) instead of
// crashing. Tests use Live and Check to prove that a traversal released
// exactly what it owned; the command-line tool uses FromGo and ToGo to move
// decoded JSON or CBOR documents in and out of the engine.
package memengine
