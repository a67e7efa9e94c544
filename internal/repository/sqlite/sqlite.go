package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/garnizeh/triad/internal/db"
	"github.com/garnizeh/triad/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
// Each collection is a table of (key, JSON value) rows.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
	clock  func() time.Time
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.Store = (*SQLiteRepo)(nil)
var _ repository.ProfileRepo = (*SQLiteRepo)(nil)
var _ repository.ContactRepo = (*SQLiteRepo)(nil)
var _ repository.ActivityRepo = (*SQLiteRepo)(nil)
var _ repository.SnapshotRepo = (*SQLiteRepo)(nil)
var _ repository.SettingsRepo = (*SQLiteRepo)(nil)
var _ repository.Replacer = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger, clock: time.Now}
}

// WithClock replaces the time source used for slot completion and row timestamps.
func (r *SQLiteRepo) WithClock(clock func() time.Time) *SQLiteRepo {
	r.clock = clock
	return r
}

func (r *SQLiteRepo) now() int64 {
	return r.clock().UTC().UnixMilli()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a transaction and commits when fn returns nil.
func (r *SQLiteRepo) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
