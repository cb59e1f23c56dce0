package crontable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

const cronOption = "cron"

const schema = `
CREATE TABLE IF NOT EXISTS options (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteTable persists the whole table as one JSON option row, so every
// process sharing the file sees the same table. Each mutation is a
// read-modify-write inside one transaction.
type SQLiteTable struct {
	db *sql.DB
}

var _ Table = (*SQLiteTable)(nil)

// OpenSQLite opens (creating if needed) the table file at path.
func OpenSQLite(path string) (*SQLiteTable, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cron table path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cron table dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cron table: %w", err)
	}
	// SQLite single writer
	db.SetMaxOpenConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cron table schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("cron table opened")
	return &SQLiteTable{db: db}, nil
}

func (t *SQLiteTable) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *SQLiteTable) load(ctx context.Context, q queryer) (Cron, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, cronOption).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Cron{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cron option: %w", err)
	}
	c := Cron{}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode cron option: %w", err)
	}
	return c, nil
}

func (t *SQLiteTable) save(ctx context.Context, tx *sql.Tx, c Cron) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cron option: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO options(name, value) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		cronOption, string(b),
	)
	if err != nil {
		return fmt.Errorf("save cron option: %w", err)
	}
	return nil
}

// update runs fn over the current table and persists it when fn reports a
// change.
func (t *SQLiteTable) update(ctx context.Context, fn func(c Cron) bool) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cron update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := t.load(ctx, tx)
	if err != nil {
		return err
	}
	if !fn(c) {
		return nil
	}
	if err := t.save(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cron update: %w", err)
	}
	return nil
}

func (t *SQLiteTable) read(ctx context.Context) (Cron, error) {
	return t.load(ctx, t.db)
}

func (t *SQLiteTable) Schedule(ctx context.Context, e Event) error {
	return t.update(ctx, func(c Cron) bool {
		c.add(e)
		return true
	})
}

func (t *SQLiteTable) Unschedule(ctx context.Context, ts int64, hook string, args models.Args) (bool, error) {
	var removed bool
	err := t.update(ctx, func(c Cron) bool {
		removed = c.remove(ts, hook, args)
		return removed
	})
	return removed, err
}

func (t *SQLiteTable) Next(ctx context.Context, hook string, args models.Args) (Event, bool, error) {
	c, err := t.read(ctx)
	if err != nil {
		return Event{}, false, err
	}
	e, ok := c.next(hook, args)
	return e, ok, nil
}

func (t *SQLiteTable) ClearHook(ctx context.Context, hook string) (int, error) {
	var n int
	err := t.update(ctx, func(c Cron) bool {
		n = c.clearHook(hook)
		return n > 0
	})
	return n, err
}

func (t *SQLiteTable) Events(ctx context.Context) ([]Event, error) {
	c, err := t.read(ctx)
	if err != nil {
		return nil, err
	}
	return c.events(), nil
}
