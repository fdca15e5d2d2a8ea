package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store for pipelines whose history
// and state must be shared across hosts or survive the local filesystem.
//
// The schema is a single key/value table; values are stored as MEDIUMBLOB so
// large serialized run histories fit. Unlike SQLiteStore, the contract's
// per-instance serialization is provided by the database itself (single-row
// primary-key operations), so no process-level mutex is needed.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects with the given DSN, e.g.
// "user:pass@tcp(localhost:3306)/pipelines?parseTime=true".
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS pipeline_values (
		` + "`key`" + ` VARCHAR(512) PRIMARY KEY,
		value MEDIUMBLOB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Add writes value under key, honoring the overwrite flag.
func (s *MySQLStore) Add(ctx context.Context, key string, value []byte, overwrite bool) error {
	if overwrite {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO pipeline_values (`key`, value) VALUES (?, ?) "+
				"ON DUPLICATE KEY UPDATE value = VALUES(value)", key, value)
		if err != nil {
			return fmt.Errorf("failed to upsert key %q: %w", key, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pipeline_values (`key`, value) VALUES (?, ?)", key, value)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to insert key %q: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or ErrNotFound.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM pipeline_values WHERE `key` = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key, or fails with ErrNotFound.
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pipeline_values WHERE `key` = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListKeys returns all present keys.
func (s *MySQLStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT `key` FROM pipeline_values ORDER BY `key`")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// isDuplicateEntry reports MySQL error 1062 (duplicate primary key).
func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
