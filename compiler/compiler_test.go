package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/picklebridge/codec"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
	"github.com/wippyai/picklebridge/memengine"
	"github.com/wippyai/picklebridge/registry"
)

func named(name string, kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: kind}
}

func pointType() *wit.TypeDef {
	return named("point", &wit.Record{Fields: []wit.Field{
		{Name: "x", Type: wit.S32{}},
		{Name: "y", Type: wit.S32{}},
	}})
}

func roundTrip(t *testing.T, reg *registry.Registry, cmd command.Command, v any) {
	t.Helper()
	eng := memengine.New()
	opts := []codec.Option{codec.WithValidation(true)}
	if reg != nil {
		opts = append(opts, codec.WithRegistry(reg))
	}
	c := codec.New(eng, opts...)
	defer c.Close()

	val, err := eng.FromGo(v)
	require.NoError(t, err)
	data, err := c.Pickle(val, cmd)
	require.NoError(t, err)
	got, err := c.Unpickle(cmd, data)
	require.NoError(t, err)
	assert.True(t, eng.Equal(val, got), "got %#v", eng.ToGo(got))
	eng.Free(val)
	eng.Free(got)
	assert.Zero(t, eng.Live())
}

func TestCompile_Primitives(t *testing.T) {
	tests := []struct {
		typ  wit.Type
		want command.Opcode
	}{
		{wit.Bool{}, command.TypeBoolean},
		{wit.S8{}, command.TypeByte},
		{wit.S16{}, command.TypeShort},
		{wit.U8{}, command.TypeInt},
		{wit.U16{}, command.TypeInt},
		{wit.S32{}, command.TypeInt},
		{wit.U32{}, command.TypeNumber},
		{wit.S64{}, command.TypeNumber},
		{wit.U64{}, command.TypeNumber},
		{wit.F32{}, command.TypeFloat},
		{wit.F64{}, command.TypeDouble},
		{wit.Char{}, command.TypeString},
		{wit.String{}, command.TypeString},
	}
	c := New()
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			cmd, err := c.Compile(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, command.Command{byte(tt.want)}, cmd)
		})
	}
}

func TestCompile_Record(t *testing.T) {
	cmd, err := New().Compile(pointType())
	require.NoError(t, err)

	want := command.NewBuilder().
		Push().
		PropStr("x").Int().
		PropStr("y").Int().
		Pop().
		Command()
	assert.Equal(t, want, cmd)

	roundTrip(t, nil, cmd, map[string]any{"x": 3, "y": -4})
}

func TestCompile_Composite(t *testing.T) {
	color := named("color", &wit.Enum{Cases: []wit.EnumCase{{Name: "red"}, {Name: "green"}}})
	perms := named("perms", &wit.Flags{Flags: []wit.Flag{{Name: "read"}, {Name: "write"}}})
	typ := named("item", &wit.Record{Fields: []wit.Field{
		{Name: "id", Type: wit.U32{}},
		{Name: "tags", Type: &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}},
		{Name: "score", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.F64{}}}},
		{Name: "pair", Type: &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.S16{}, wit.Bool{}}}}},
		{Name: "color", Type: color},
		{Name: "perms", Type: perms},
		{Name: "origin", Type: pointType()},
	}})

	cmd, err := New().Compile(typ)
	require.NoError(t, err)
	assert.False(t, cmd.HasChildren())
	require.NoError(t, command.Validate(cmd, nil))

	roundTrip(t, nil, cmd, map[string]any{
		"id":     7,
		"tags":   []any{"a", "b"},
		"score":  2.5,
		"pair":   []any{-3, true},
		"color":  "green",
		"perms":  map[string]any{"read": true, "write": false},
		"origin": map[string]any{"x": 1, "y": 2},
	})
	roundTrip(t, nil, cmd, map[string]any{
		"id":     0,
		"tags":   []any{},
		"score":  nil,
		"pair":   []any{0, false},
		"color":  "red",
		"perms":  map[string]any{"read": false, "write": true},
		"origin": map[string]any{"x": 0, "y": 0},
	})
}

func TestCompile_Alias(t *testing.T) {
	id := named("id", wit.String{})
	cmd, err := New().Compile(id)
	require.NoError(t, err)
	assert.Equal(t, command.Command{byte(command.TypeString)}, cmd)
}

func TestCompile_ListOfRecords(t *testing.T) {
	cmd, err := New().Compile(&wit.TypeDef{Kind: &wit.List{Type: pointType()}})
	require.NoError(t, err)
	roundTrip(t, nil, cmd, []any{
		map[string]any{"x": 1, "y": 2},
		map[string]any{"x": 3, "y": 4},
	})
}

func TestCompile_Cache(t *testing.T) {
	c := New()
	typ := pointType()
	first, err := c.Compile(typ)
	require.NoError(t, err)
	second, err := c.Compile(typ)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
}

func TestCompile_NamedRecordsBecomeChildren(t *testing.T) {
	reg := registry.New()
	defer reg.Close()
	c := New(WithRegistry(reg))

	point := pointType()
	line := named("line", &wit.Record{Fields: []wit.Field{
		{Name: "from", Type: point},
		{Name: "to", Type: point},
	}})

	cmd, err := c.Compile(line)
	require.NoError(t, err)
	assert.True(t, cmd.HasChildren())
	assert.Equal(t, 1, reg.Len())

	h, ok := reg.Lookup("point")
	require.True(t, ok)
	want := command.NewBuilder().
		Push().
		PropStr("from").Child(int64(h)).
		PropStr("to").Child(int64(h)).
		Pop().
		Command()
	assert.Equal(t, want, cmd)

	roundTrip(t, reg, cmd, map[string]any{
		"from": map[string]any{"x": 0, "y": 0},
		"to":   map[string]any{"x": 10, "y": -10},
	})

	// the outermost record stays inline
	pc, err := c.Compile(point)
	require.NoError(t, err)
	assert.False(t, pc.HasChildren())

	require.NoError(t, c.Release())
	assert.Equal(t, 0, reg.Len())
}

func TestCompile_NameClash(t *testing.T) {
	reg := registry.New()
	defer reg.Close()
	c := New(WithRegistry(reg))

	other := named("point", &wit.Record{Fields: []wit.Field{{Name: "z", Type: wit.F64{}}}})
	outer := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{pointType(), other}}}

	cmd, err := c.Compile(outer)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	roundTrip(t, reg, cmd, []any{
		map[string]any{"x": 1, "y": 2},
		map[string]any{"z": 0.5},
	})
	require.NoError(t, c.Release())
}

func TestCompile_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
	}{
		{"result", &wit.TypeDef{Kind: &wit.Result{OK: wit.U32{}}}},
		{"variant", &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{{Name: "a"}}}}},
		{"own", &wit.TypeDef{Kind: &wit.Own{}}},
		{"borrow", &wit.TypeDef{Kind: &wit.Borrow{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := named("holder", &wit.Record{Fields: []wit.Field{{Name: "bad", Type: tt.typ}}})
			_, err := New().Compile(wrapped)
			require.Error(t, err)
			assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseCompile, e.Phase)
			assert.Equal(t, []string{"bad"}, e.Path)
		})
	}
}

func TestCompile_Nil(t *testing.T) {
	_, err := New().Compile(nil)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}
