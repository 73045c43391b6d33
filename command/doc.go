// Package command defines the traversal plans that drive the codec.
//
// A command is a flat byte string of opcodes. Property opcodes navigate into
// an object or array, type opcodes describe a leaf, segment opcodes
// (TYPE_ARRAY, ATTR_NULLABLE) carry an inline length-prefixed sub-command
// and the stack opcodes OPT_PUSH and OPT_POP open and close an object
// scope.
//
//	PUSH
//	  PROP_STR "id"    TYPE_INT
//	  PROP_STR "tags"  TYPE_ARRAY segment=1
//	    TYPE_STRING
//	POP
//
// Commands are built with Builder, inspected with Disassemble and checked
// with Validate before they reach untrusted data.
package command
