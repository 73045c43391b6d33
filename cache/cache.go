package cache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/errors"
)

// FormatVersion is bumped whenever the command encoding changes. Entries
// stored under another version are treated as missing.
const FormatVersion = 1

const schema = `CREATE TABLE IF NOT EXISTS commands (
	name    TEXT    NOT NULL,
	version INTEGER NOT NULL,
	body    BLOB    NOT NULL,
	created INTEGER NOT NULL,
	PRIMARY KEY (name, version)
)`

// Cache persists compiled commands in a SQLite database. Only
// self-contained commands can be stored: child handles are local to one
// registry.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "open "+path)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "set busy timeout")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "create table")
	}
	return &Cache{db: db, logger: Logger()}, nil
}

// Put stores cmd under name, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, name string, cmd command.Command) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseCache, "name cannot be empty")
	}
	if cmd.HasChildren() {
		return errors.InvalidInput(errors.PhaseCache, "command for "+name+" references child commands")
	}
	if err := command.Validate(cmd, nil); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindOf(err), err, "invalid command for "+name)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO commands (name, version, body, created) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name, version) DO UPDATE SET body = excluded.body, created = excluded.created`,
		name, FormatVersion, []byte(cmd), time.Now().Unix())
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "store "+name)
	}
	c.logger.Debug("command stored", zap.String("name", name), zap.Int("size", len(cmd)))
	return nil
}

// Get returns the command stored under name.
func (c *Cache) Get(ctx context.Context, name string) (command.Command, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT body FROM commands WHERE name = ? AND version = ?", name, FormatVersion).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(errors.PhaseCache, "command", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "load "+name)
	}
	cmd := command.Command(body)
	if err := command.Validate(cmd, nil); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "stored command "+name+" is corrupt")
	}
	return cmd, nil
}

// GetOrCompile returns the command stored under name, compiling and
// storing it on a miss.
func (c *Cache) GetOrCompile(ctx context.Context, name string, compile func() (command.Command, error)) (command.Command, error) {
	cmd, err := c.Get(ctx, name)
	if err == nil {
		return cmd, nil
	}
	if errors.KindOf(err) != errors.KindNotFound {
		return nil, err
	}
	if cmd, err = compile(); err != nil {
		return nil, err
	}
	if err := c.Put(ctx, name, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Delete removes name. Deleting a missing entry is not an error.
func (c *Cache) Delete(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM commands WHERE name = ?", name); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "delete "+name)
	}
	return nil
}

// Names lists the stored entries of the current format version in name
// order.
func (c *Cache) Names(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM commands WHERE version = ? ORDER BY name", FormatVersion)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "list")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "list")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "list")
	}
	return names, nil
}

// Prune deletes entries written under other format versions and returns
// how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM commands WHERE version <> ?", FormatVersion)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "prune")
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.logger.Info("pruned stale commands", zap.Int64("count", n))
	}
	return n, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
