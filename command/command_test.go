package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/picklebridge/errors"
)

type mapResolver map[int64]Command

func (m mapResolver) Resolve(h int64) (Command, bool) {
	c, ok := m[h]
	return c, ok
}

func person() Command {
	return NewBuilder().
		Push().
		PropStr("id").Int().
		PropStr("tags").Array(func(b *Builder) { b.String() }).
		PropStr("score").Nullable(func(b *Builder) { b.Double() }).
		Pop().
		Command()
}

func TestBuilder_Bytes(t *testing.T) {
	cmd := NewBuilder().Push().PropInt(2).Boolean().Pop().Command()
	assert.Equal(t, Command{0xC0, 0x00, 2, 0, 0, 0, 0x81, 0xC1}, cmd)
}

func TestBuilder_SegmentLengthPatched(t *testing.T) {
	cmd := WrapArray(NewBuilder().Int().Command())
	require.Len(t, cmd, 1+4+1)
	assert.Equal(t, TypeArray, Opcode(cmd[0]))
	assert.Equal(t, byte(1), cmd[1])
	assert.Equal(t, TypeInt, Opcode(cmd[5]))

	nested := WrapNullable(cmd)
	assert.Equal(t, byte(len(cmd)), nested[1])
}

func TestFrameParse(t *testing.T) {
	cmd := person()
	framed := Frame(cmd)
	require.Len(t, framed, PrefixSize+len(cmd))

	got, err := Parse(framed)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)

	_, err = Parse(framed[:PrefixSize+1])
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
	_, err = Parse([]byte{1})
	assert.Error(t, err)
}

func TestDisassemble(t *testing.T) {
	ins, err := Disassemble(person())
	require.NoError(t, err)

	var ops []Opcode
	for _, in := range ins {
		ops = append(ops, in.Op)
	}
	assert.Equal(t, []Opcode{
		OptPush,
		PropStr, TypeInt,
		PropStr, TypeArray, TypeString,
		PropStr, AttrNullable, TypeDouble,
		OptPop,
	}, ops)

	assert.Equal(t, "id", ins[1].Name)
	assert.Equal(t, 1, ins[4].Segment)
	assert.Equal(t, 0, ins[0].Depth)
	assert.Equal(t, 1, ins[1].Depth)
	assert.Equal(t, 2, ins[5].Depth, "segment body nests below the array")
	assert.Equal(t, 0, ins[9].Depth)
}

func TestDisassemble_Malformed(t *testing.T) {
	_, err := Disassemble(Command{0x77})
	assert.Error(t, err)

	_, err = Disassemble(Command{byte(TypeArray), 9, 0, 0, 0, byte(TypeInt)})
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))

	_, err = Disassemble(Command{byte(PropStr), 3, 0, 0, 0, 'a'})
	assert.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	out := person().String()
	assert.Contains(t, out, `PROP_STR "tags"`)
	assert.Contains(t, out, "TYPE_ARRAY segment=1")
	assert.Equal(t, 10, len(strings.Split(out, "\n")))

	assert.Contains(t, Command{0x77}.String(), "malformed")
}

func TestCommand_HasChildren(t *testing.T) {
	assert.False(t, person().HasChildren())
	assert.True(t, NewBuilder().Push().PropStr("x").Child(1).Pop().Command().HasChildren())
}

func TestValidate(t *testing.T) {
	child := NewBuilder().Push().PropStr("n").Int().Pop().Command()
	registry := mapResolver{1: child}

	valid := map[string]Command{
		"prefix object": person(),
		"postfix object": NewBuilder().
			Push().Int().PropStr("a").String().PropStr("b").Pop().Command(),
		"top level leaf":       NewBuilder().Double().Command(),
		"array of objects":     WrapArray(child),
		"child":                NewBuilder().Push().PropStr("c").Child(1).Pop().Command(),
		"top level navigation": NewBuilder().PropStr("a").Int().Command(),
	}
	for name, cmd := range valid {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate(cmd, registry))
		})
	}

	invalid := map[string]Command{
		"empty":             {},
		"unknown opcode":    {0x77},
		"object opcode":     {byte(TypeObject)},
		"unbalanced push":   NewBuilder().Push().PropStr("a").Int().Command(),
		"stray pop":         NewBuilder().Pop().Command(),
		"double property":   NewBuilder().Push().PropStr("a").PropStr("b").Int().Pop().Command(),
		"dangling property": NewBuilder().Push().PropStr("a").Pop().Command(),
		"unnamed member":    NewBuilder().Push().Int().Int().Pop().Command(),
		"empty segment":     {byte(TypeArray), 0, 0, 0, 0},
		"missing child":     NewBuilder().Child(7).Command(),
		"truncated operand": {byte(TypeCommand), 1, 0},
		"second leaf":       NewBuilder().Int().Int().Command(),
		"second object":     NewBuilder().Append(person()).Append(person()).Command(),
		"second navigation": NewBuilder().PropStr("a").Int().PropStr("b").String().Command(),
		"leaf after object": NewBuilder().Append(person()).Int().Command(),
		"second element":    WrapArray(NewBuilder().Int().String().Command()),
	}
	for name, cmd := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(cmd, registry))
		})
	}
}

func TestValidate_ObjectIsUnsupported(t *testing.T) {
	err := Validate(Command{byte(TypeObject)}, nil)
	assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))
}

func TestValidate_ChildCycle(t *testing.T) {
	registry := mapResolver{}
	registry[1] = NewBuilder().Push().PropStr("self").Child(1).Pop().Command()
	err := Validate(NewBuilder().Child(1).Command(), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references itself")
}

func TestValidate_NilResolver(t *testing.T) {
	assert.NoError(t, Validate(person(), nil))
	assert.Error(t, Validate(NewBuilder().Child(1).Command(), nil))
}

func TestValidate_SingleResult(t *testing.T) {
	err := Validate(NewBuilder().Int().Int().Command(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
	assert.Contains(t, err.Error(), "instructions after the result")
}

func TestValidatePrefix(t *testing.T) {
	child := NewBuilder().Push().Int().PropStr("n").Pop().Command()
	registry := mapResolver{1: child}

	prefixOnly := []Command{
		person(),
		NewBuilder().Push().PropInt(0).Int().PropInt(1).String().Pop().Command(),
		NewBuilder().PropStr("a").Int().Command(),
		NewBuilder().Push().Pop().Command(),
	}
	for _, cmd := range prefixOnly {
		assert.NoError(t, ValidatePrefix(cmd, registry))
	}

	postfix := map[string]Command{
		"leaf":    NewBuilder().Push().Int().PropStr("a").Pop().Command(),
		"object":  NewBuilder().Push().Push().Pop().PropStr("a").Pop().Command(),
		"segment": NewBuilder().Push().Array(func(b *Builder) { b.Int() }).PropStr("a").Pop().Command(),
		"child":   NewBuilder().Push().PropStr("c").Child(1).Pop().Command(),
	}
	for name, cmd := range postfix {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Validate(cmd, registry), "both forms are well formed")
			err := ValidatePrefix(cmd, registry)
			require.Error(t, err)
			assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
			assert.Contains(t, err.Error(), "pickler requires prefix properties")
		})
	}
}
