package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/repository"
)

func table(c repository.Collection) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", repository.ErrUnknownCollection, string(c))
	}
	return string(c), nil
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return repository.ErrInvalidKey
	}
	return nil
}

// Get decodes the value stored under key into out. It reports false when the key is absent.
func (r *SQLiteRepo) Get(ctx context.Context, c repository.Collection, key string, out any) (bool, error) {
	return r.get(ctx, r.conn.GetConn(), c, key, out)
}

func (r *SQLiteRepo) get(ctx context.Context, q querier, c repository.Collection, key string, out any) (bool, error) {
	t, err := table(c)
	if err != nil {
		return false, err
	}

	var raw string
	row := q.QueryRowContext(ctx, `SELECT value FROM `+t+` WHERE key = ?`, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get %s/%s: %w", t, key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", t, key, err)
	}
	return true, nil
}

// Put stores v as JSON under key, replacing any previous value.
func (r *SQLiteRepo) Put(ctx context.Context, c repository.Collection, key string, v any) error {
	return r.put(ctx, r.conn.GetConn(), c, key, v)
}

func (r *SQLiteRepo) put(ctx context.Context, q querier, c repository.Collection, key string, v any) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", repository.ErrInvalidValue, t, key, err)
	}
	return r.putRaw(ctx, q, t, key, b)
}

func (r *SQLiteRepo) putRaw(ctx context.Context, q querier, t, key string, raw []byte) error {
	_, err := q.ExecContext(ctx, `INSERT INTO `+t+` (key, value, updated) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated=excluded.updated`, key, string(raw), r.now())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", t, key, err)
	}
	return nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, c repository.Collection, key string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if _, err := r.conn.Exec(ctx, `DELETE FROM `+t+` WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", t, key, err)
	}
	return nil
}

// Iterate returns every entry of the collection ordered by key.
func (r *SQLiteRepo) Iterate(ctx context.Context, c repository.Collection) ([]repository.Entry, error) {
	return r.iterate(ctx, r.conn.GetConn(), c)
}

func (r *SQLiteRepo) iterate(ctx context.Context, q querier, c repository.Collection) ([]repository.Entry, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT key, value FROM `+t+` ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	defer rows.Close()

	out := []repository.Entry{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		out = append(out, repository.Entry{Key: key, Value: json.RawMessage(raw)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return out, nil
}

func (r *SQLiteRepo) Clear(ctx context.Context, c repository.Collection) error {
	return r.clear(ctx, r.conn.GetConn(), c)
}

func (r *SQLiteRepo) clear(ctx context.Context, q querier, c repository.Collection) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM `+t); err != nil {
		return fmt.Errorf("clear %s: %w", t, err)
	}
	return nil
}

// Reset clears all five collections in one transaction.
func (r *SQLiteRepo) Reset(ctx context.Context) error {
	err := r.inTx(ctx, func(q querier) error {
		for _, c := range repository.Collections {
			if err := r.clear(ctx, q, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("store reset")
	return nil
}

// ReplaceAll clears every collection and writes contents in a single transaction,
// so a failure part way leaves the previous store contents intact.
func (r *SQLiteRepo) ReplaceAll(ctx context.Context, contents map[repository.Collection][]repository.Entry) error {
	for c := range contents {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", repository.ErrUnknownCollection, string(c))
		}
	}

	return r.inTx(ctx, func(q querier) error {
		for _, c := range repository.Collections {
			if err := r.clear(ctx, q, c); err != nil {
				return err
			}
		}
		for _, c := range repository.Collections {
			for _, e := range contents[c] {
				if err := checkKey(e.Key); err != nil {
					return fmt.Errorf("%s: %w", c, err)
				}
				if !json.Valid(e.Value) {
					return fmt.Errorf("%w: %s/%s is not JSON", repository.ErrInvalidValue, c, e.Key)
				}
				if err := r.putRaw(ctx, q, string(c), e.Key, e.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
