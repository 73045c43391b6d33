package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/picklebridge/errors"
)

const sample = `
[codec]
max-depth = 32
max-array-length = 1000
validate = true

[log]
level = "debug"

[cache]
path = "commands.db"

[types.point]
y = "s32"
x = "s32"

[types.shape]
name = "string"
points = "list<point>"
fill = "option<color>"
mode = "perms"
meta = "tuple<u8, id>"

[aliases]
id = "string"

[enums]
color = ["red", "green", "blue"]

[flags]
perms = ["read", "write"]
`

func TestDecode(t *testing.T) {
	c, err := Decode(sample)
	require.NoError(t, err)

	assert.Equal(t, 32, c.Codec.MaxDepth)
	assert.Equal(t, 1000, c.Codec.MaxArrayLength)
	assert.True(t, c.Codec.Validate)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "commands.db", c.Cache.Path)
	assert.Equal(t, []string{"y", "x"}, c.fieldOrder("point"))
	assert.Len(t, c.Options(), 3)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind errors.Kind
	}{
		{"syntax", "[codec\n", errors.KindInvalidData},
		{"unknown key", "[codec]\ndepth = 3\n", errors.KindInvalidInput},
		{"negative", "[codec]\nmax-depth = -1\n", errors.KindInvalidInput},
		{"level", "[log]\nlevel = \"loud\"\n", errors.KindInvalidInput},
		{"duplicate", "[aliases]\np = \"s32\"\n[enums]\np = [\"a\"]\n", errors.KindInvalidInput},
		{"builtin", "[aliases]\nstring = \"s32\"\n", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
		})
	}
}

func TestSchema(t *testing.T) {
	c, err := Decode(sample)
	require.NoError(t, err)
	s, err := c.Schema()
	require.NoError(t, err)

	assert.Equal(t, []string{"color", "id", "perms", "point", "shape"}, s.Names())

	pt, ok := s.Lookup("point")
	require.True(t, ok)
	rec := pt.(*wit.TypeDef).Kind.(*wit.Record)
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "y", rec.Fields[0].Name)
	assert.Equal(t, wit.S32{}, rec.Fields[0].Type)

	shape, _ := s.Lookup("shape")
	fields := shape.(*wit.TypeDef).Kind.(*wit.Record).Fields
	require.Len(t, fields, 5)
	assert.Equal(t, []string{"name", "points", "fill", "mode", "meta"},
		[]string{fields[0].Name, fields[1].Name, fields[2].Name, fields[3].Name, fields[4].Name})

	list := fields[1].Type.(*wit.TypeDef).Kind.(*wit.List)
	assert.Same(t, pt, list.Type, "named types are shared")

	opt := fields[2].Type.(*wit.TypeDef).Kind.(*wit.Option)
	color := opt.Type.(*wit.TypeDef)
	assert.Equal(t, "color", *color.Name)
	assert.Len(t, color.Kind.(*wit.Enum).Cases, 3)

	tuple := fields[4].Type.(*wit.TypeDef).Kind.(*wit.Tuple)
	require.Len(t, tuple.Types, 2)
	assert.Equal(t, wit.U8{}, tuple.Types[0])
	id := tuple.Types[1].(*wit.TypeDef)
	assert.Equal(t, wit.String{}, id.Kind)
}

func TestSchema_Parse(t *testing.T) {
	c, err := Decode(sample)
	require.NoError(t, err)
	s, err := c.Schema()
	require.NoError(t, err)

	typ, err := s.Parse(" list< option<point> > ")
	require.NoError(t, err)
	inner := typ.(*wit.TypeDef).Kind.(*wit.List).Type.(*wit.TypeDef).Kind.(*wit.Option).Type
	pt, _ := s.Lookup("point")
	assert.Same(t, pt, inner)

	bad := map[string]errors.Kind{
		"":                 errors.KindInvalidInput,
		"widget":           errors.KindNotFound,
		"list<s32":         errors.KindInvalidInput,
		"list<s32, s32>":   errors.KindInvalidInput,
		"map<string>":      errors.KindInvalidInput,
		"tuple<>":          errors.KindInvalidInput,
		"tuple<s32,,s32>":  errors.KindInvalidInput,
		"option<s32>>":     errors.KindInvalidInput,
		"list<option<s32>": errors.KindInvalidInput,
	}
	for expr, kind := range bad {
		_, err := s.Parse(expr)
		assert.Equal(t, kind, errors.KindOf(err), "expr %q", expr)
	}
}

func TestSchema_Recursive(t *testing.T) {
	c, err := Decode("[types.node]\nnext = \"option<node>\"\n")
	require.NoError(t, err)
	_, err = c.Schema()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refers to itself")
}

func TestSchema_UnknownFieldType(t *testing.T) {
	c, err := Decode("[types.p]\nx = \"int\"\n")
	require.NoError(t, err)
	_, err = c.Schema()
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Path)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	// a directory exists but cannot be read as a file
	_, err = Load(dir)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	c, err = LoadOrDefault(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLogger(t *testing.T) {
	c := Default()
	l, err := c.Logger()
	require.NoError(t, err)
	assert.NotNil(t, l)

	c.Log.Development = true
	c.Log.Level = "debug"
	l, err = c.Logger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))
}
