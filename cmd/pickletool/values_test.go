package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/picklebridge/codec"
	"github.com/wippyai/picklebridge/config"
	"github.com/wippyai/picklebridge/memengine"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "json", detectFormat("auto", "v.json", nil))
	assert.Equal(t, "cbor", detectFormat("auto", "v.CBOR", nil))
	assert.Equal(t, "json", detectFormat("auto", "-", []byte(` {"a": 1}`)))
	assert.Equal(t, "cbor", detectFormat("auto", "-", []byte{0xa1, 0x61, 0x61, 0x01}))
	assert.Equal(t, "cbor", detectFormat("CBOR", "v.json", nil))
}

func TestValueFormats(t *testing.T) {
	src := `{"name": "p", "pos": [1, -2.5], "tags": null, "big": 4294967296}`
	v, err := decodeValue([]byte(src), "json")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, int64(1), m["pos"].([]any)[0])
	assert.Equal(t, -2.5, m["pos"].([]any)[1])
	assert.Equal(t, int64(4294967296), m["big"])

	encoded, err := encodeValue(v, "cbor")
	require.NoError(t, err)
	back, err := decodeValue(encoded, "cbor")
	require.NoError(t, err)

	eng := memengine.New()
	a, err := eng.FromGo(v)
	require.NoError(t, err)
	b, err := eng.FromGo(back)
	require.NoError(t, err)
	assert.True(t, eng.Equal(a, b))
	eng.Free(a)
	eng.Free(b)

	_, err = decodeValue([]byte("{"), "json")
	assert.Error(t, err)
	_, err = encodeValue(1, "yaml")
	assert.Error(t, err)
}

func TestPickleFixture(t *testing.T) {
	cfg, err := config.Decode(`
[types.point]
x = "s32"
y = "s32"
`)
	require.NoError(t, err)
	schema, err := cfg.Schema()
	require.NoError(t, err)
	e := &env{cfg: cfg, schema: schema}

	cmd, err := e.compile("list< point >", "")
	require.NoError(t, err)

	value, err := decodeValue([]byte(`[{"x": 1, "y": 2}, {"x": -3, "y": 4}]`), "json")
	require.NoError(t, err)

	eng := memengine.New()
	c := codec.New(eng, cfg.Options()...)
	defer c.Close()
	v, err := eng.FromGo(value)
	require.NoError(t, err)
	defer eng.Free(v)

	data, err := c.Pickle(v, cmd)
	require.NoError(t, err)
	got, err := c.Unpickle(cmd, data)
	require.NoError(t, err)
	defer eng.Free(got)

	out, err := encodeValue(eng.ToGo(got), "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x": 1, "y": 2}, {"x": -3, "y": 4}]`, string(out))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "list<option<point>>", normalizeExpr(" list< option <point> > "))
	assert.Equal(t, "tuple-s32-string", fileName("tuple<s32, string>"))
}
