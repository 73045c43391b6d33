package command

import "fmt"

// Opcode is the tag byte of one command instruction.
//
// The two high bits select the group: 00 property navigation, 10 value
// type, 01 attribute, 11 stack operation.
type Opcode byte

const (
	PropInt Opcode = 0b00000000 // int32 index
	PropStr Opcode = 0b00000001 // int32 length + name bytes

	TypeNull    Opcode = 0b10000000
	TypeBoolean Opcode = 0b10000001
	TypeByte    Opcode = 0b10000010
	TypeShort   Opcode = 0b10000011
	TypeInt     Opcode = 0b10000100
	TypeFloat   Opcode = 0b10000101
	TypeDouble  Opcode = 0b10000110
	TypeString  Opcode = 0b10000111
	TypeObject  Opcode = 0b10001000 // reserved, rejected by the codec
	TypeArray   Opcode = 0b10001001 // int32 segment length + segment
	TypeCommand Opcode = 0b10001010 // int64 registry handle
	TypeNumber  Opcode = 0b10001011

	AttrNullable Opcode = 0b01000000 // int32 segment length + segment

	OptPush Opcode = 0b11000000
	OptPop  Opcode = 0b11000001
)

var opcodeNames = map[Opcode]string{
	PropInt:      "PROP_INT",
	PropStr:      "PROP_STR",
	TypeNull:     "TYPE_NULL",
	TypeBoolean:  "TYPE_BOOLEAN",
	TypeByte:     "TYPE_BYTE",
	TypeShort:    "TYPE_SHORT",
	TypeInt:      "TYPE_INT",
	TypeFloat:    "TYPE_FLOAT",
	TypeDouble:   "TYPE_DOUBLE",
	TypeString:   "TYPE_STRING",
	TypeObject:   "TYPE_OBJECT",
	TypeArray:    "TYPE_ARRAY",
	TypeCommand:  "TYPE_COMMAND",
	TypeNumber:   "TYPE_NUMBER",
	AttrNullable: "ATTR_NULLABLE",
	OptPush:      "OPT_PUSH",
	OptPop:       "OPT_POP",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP(0x%02X)", byte(o))
}

// Known reports whether o is a defined opcode.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// IsProp reports whether o navigates into a property.
func (o Opcode) IsProp() bool {
	return o == PropInt || o == PropStr
}

// IsLeaf reports whether o describes a scalar leaf.
func (o Opcode) IsLeaf() bool {
	switch o {
	case TypeNull, TypeBoolean, TypeByte, TypeShort, TypeInt,
		TypeFloat, TypeDouble, TypeString, TypeNumber:
		return true
	}
	return false
}

// HasSegment reports whether o is followed by an int32 segment length
// and an inline segment.
func (o Opcode) HasSegment() bool {
	return o == TypeArray || o == AttrNullable
}
