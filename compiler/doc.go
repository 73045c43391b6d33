// Package compiler derives commands from WIT type definitions.
//
// Primitive types map to leaf opcodes: bool to TYPE_BOOLEAN, s8 to
// TYPE_BYTE, s16 to TYPE_SHORT, u8, u16 and s32 to TYPE_INT, f32 to
// TYPE_FLOAT, f64 to TYPE_DOUBLE, char and string to TYPE_STRING. u32, s64
// and u64 do not fit an int32 and use TYPE_NUMBER.
//
// Records become an OPT_PUSH scope with one PROP_STR per field, tuples the
// same with PROP_INT, lists a TYPE_ARRAY segment and options an
// ATTR_NULLABLE segment. Enums travel as their case name and flags as a
// record of booleans. Results, variants and resource handles are rejected.
//
//	c := compiler.New(compiler.WithRegistry(reg))
//	cmd, err := c.Compile(typ)
//
// With a registry, named records nested in another type are compiled once,
// registered, and referenced with TYPE_COMMAND.
package compiler
