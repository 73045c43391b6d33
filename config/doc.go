// Package config loads picklebridge.toml files for pickletool.
//
// A file sets codec limits, logging, the command cache location and a
// schema of named types:
//
//	[codec]
//	max-depth = 64
//	validate = true
//
//	[log]
//	level = "info"
//
//	[types.point]
//	x = "s32"
//	y = "s32"
//
//	[types.shape]
//	points = "list<point>"
//	fill = "option<color>"
//
//	[enums]
//	color = ["red", "green"]
//
// Records keep the field order of the file. Type expressions use WIT
// primitive names, list<T>, option<T>, tuple<A, B, ...> and names declared
// under [types], [aliases], [enums] or [flags]. Schema resolves them to
// go.bytecodealliance.org/wit types for the compiler package.
package config
