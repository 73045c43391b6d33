package picklebridge

// Value is an opaque handle owned by an Engine. The codec never inspects
// it directly; every operation goes through the Engine that produced it.
type Value any

// Tag is the runtime type tag of a Value.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagInt
	TagFloat
	TagString
	TagObject
	TagArray
	TagOther
)

var tagNames = [...]string{
	TagUndefined: "undefined",
	TagNull:      "null",
	TagBool:      "bool",
	TagInt:       "int",
	TagFloat:     "float",
	TagString:    "string",
	TagObject:    "object",
	TagArray:     "array",
	TagOther:     "other",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// IsNullish reports whether t is null or undefined.
func (t Tag) IsNullish() bool {
	return t == TagNull || t == TagUndefined
}

// IsNumber reports whether t is one of the numeric tags.
func (t Tag) IsNumber() bool {
	return t == TagInt || t == TagFloat
}

// Engine is the capability set the codec requires from an embedded value
// engine.
//
// Ownership: values returned by Get*, New* and Dup are owned by the caller
// and must be released with Free exactly once. SetIndex and SetProperty
// take ownership of the assigned value even when they fail.
type Engine interface {
	Tag(v Value) Tag
	ToBool(v Value) bool
	ToInt32(v Value) int32
	ToFloat64(v Value) float64
	ToString(v Value) (string, error)

	// ArrayLength returns false if v is not an array.
	ArrayLength(v Value) (uint32, bool)

	GetIndex(obj Value, index uint32) (Value, error)
	GetProperty(obj Value, name string) (Value, error)
	SetIndex(obj Value, index uint32, v Value) error
	SetProperty(obj Value, name string, v Value) error

	NewNull() Value
	NewBool(b bool) Value
	NewInt32(i int32) Value
	NewFloat64(f float64) Value
	NewString(s string) (Value, error)
	NewObject() (Value, error)
	NewArray() (Value, error)

	Dup(v Value) Value
	Free(v Value)
}
