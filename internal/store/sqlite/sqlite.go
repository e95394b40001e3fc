package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tapline/internal/db"
	"tapline/internal/migrate"
	"tapline/internal/store"
)

// Store keeps documents in the workspace SQLite database.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// Open opens (and migrates) the database for cfg.
func Open(ctx context.Context, cfg db.Config) (*Store, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: conn, Now: time.Now}, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=? AND (expires_at=0 OR expires_at>?)`,
		key, s.now().UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return value, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO kv(key,value,expires_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		key, value, store.ExpiresAt(now, ttl), now.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=? AND (expires_at=0 OR expires_at>?)`, key, s.now().UnixNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key,value FROM kv WHERE substr(key,1,?)=? AND (expires_at=0 OR expires_at>?) ORDER BY key`,
		len(prefix), prefix, s.now().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge removes expired rows and returns how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE expires_at<>0 AND expires_at<=?`, s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.DB.Close()
}
