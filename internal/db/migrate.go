package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	migrationsDir = "migrations"
	seedSettings  = "seed/settings.json"
)

// Migrate brings the schema up to date and seeds default settings.
//
// Every *.sql file under migrations/ is a version named after the file. Pending
// versions run in name order, each in its own transaction together with its
// schema_migrations row, so a failed file leaves no partial schema behind.
// Seeded settings never replace a key that is already stored.
func Migrate(ctx context.Context, d *DB, migrations, seed fs.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, d)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}
	for _, name := range pending {
		if err := applyMigration(ctx, d, migrations, name); err != nil {
			return err
		}
	}

	return seedDefaults(ctx, d, seed)
}

func appliedVersions(ctx context.Context, d *DB) (map[string]bool, error) {
	rows, err := d.QueryRows(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func pendingMigrations(migrations fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var pending []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(path.Ext(name), ".sql") {
			continue
		}
		if !applied[versionOf(name)] {
			pending = append(pending, name)
		}
	}
	slices.Sort(pending)
	return pending, nil
}

func versionOf(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

func applyMigration(ctx context.Context, d *DB, migrations fs.FS, name string) error {
	script, err := fs.ReadFile(migrations, path.Join(migrationsDir, name))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	version := versionOf(name)
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, ?)`, version, time.Now().Unix()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	d.logger.Info("migration applied", slog.String("version", version))
	return nil
}

func seedDefaults(ctx context.Context, d *DB, seed fs.FS) error {
	b, err := fs.ReadFile(seed, seedSettings)
	if err != nil {
		// optional
		return nil
	}

	var defaults map[string]json.RawMessage
	if err := json.Unmarshal(b, &defaults); err != nil {
		return fmt.Errorf("parse seed settings: %w", err)
	}

	now := time.Now().UTC().UnixMilli()
	for k, v := range defaults {
		if _, err := d.Exec(ctx, `INSERT OR IGNORE INTO settings (key, value, updated) VALUES (?, ?, ?)`, k, string(v), now); err != nil {
			return fmt.Errorf("seed setting %s: %w", k, err)
		}
	}
	return nil
}
