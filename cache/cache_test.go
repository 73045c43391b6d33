package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
)

func open(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "commands.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return ctx, c
}

func point() command.Command {
	return command.NewBuilder().Push().PropStr("x").Int().PropStr("y").Int().Pop().Command()
}

func TestPutGet(t *testing.T) {
	ctx, c := open(t)

	require.NoError(t, c.Put(ctx, "point", point()))
	got, err := c.Get(ctx, "point")
	require.NoError(t, err)
	assert.Equal(t, point(), got)

	// replace
	list := command.WrapArray(point())
	require.NoError(t, c.Put(ctx, "point", list))
	got, err = c.Get(ctx, "point")
	require.NoError(t, err)
	assert.Equal(t, list, got)
}

func TestGet_Missing(t *testing.T) {
	ctx, c := open(t)
	_, err := c.Get(ctx, "nope")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestPut_Rejects(t *testing.T) {
	ctx, c := open(t)

	err := c.Put(ctx, "", point())
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	withChild := command.NewBuilder().Push().PropStr("p").Child(1).Pop().Command()
	err = c.Put(ctx, "line", withChild)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	err = c.Put(ctx, "broken", command.Command{byte(command.OptPush)})
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))

	names, err := c.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestGetOrCompile(t *testing.T) {
	ctx, c := open(t)
	calls := 0
	compile := func() (command.Command, error) {
		calls++
		return point(), nil
	}

	for i := 0; i < 3; i++ {
		cmd, err := c.GetOrCompile(ctx, "point", compile)
		require.NoError(t, err)
		assert.Equal(t, point(), cmd)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrCompile(ctx, "bad", func() (command.Command, error) {
		return nil, errors.Unsupported(errors.PhaseCompile, "variant")
	})
	assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))
}

func TestNamesDelete(t *testing.T) {
	ctx, c := open(t)
	require.NoError(t, c.Put(ctx, "b", point()))
	require.NoError(t, c.Put(ctx, "a", point()))

	names, err := c.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, c.Delete(ctx, "a"))
	require.NoError(t, c.Delete(ctx, "a"))
	names, err = c.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestVersioning(t *testing.T) {
	ctx, c := open(t)
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO commands (name, version, body, created) VALUES (?, ?, ?, 0)",
		"old", FormatVersion-1, []byte(point()))
	require.NoError(t, err)

	_, err = c.Get(ctx, "old")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGet_Corrupt(t *testing.T) {
	ctx, c := open(t)
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO commands (name, version, body, created) VALUES (?, ?, ?, 0)",
		"junk", FormatVersion, []byte{0x7f})
	require.NoError(t, err)

	_, err = c.Get(ctx, "junk")
	assert.Equal(t, errors.KindInvalidData, errors.KindOf(err))
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "commands.db")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "point", point()))
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	got, err := c.Get(ctx, "point")
	require.NoError(t, err)
	assert.Equal(t, point(), got)
}
