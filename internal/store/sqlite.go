package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/v0xg/steprec/internal/action"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLite keeps sequences in a single table, one JSON document per name
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sequences(
	  name        TEXT    PRIMARY KEY,
	  origin      TEXT    NOT NULL DEFAULT '',
	  actions     INTEGER NOT NULL,
	  updated_utc INTEGER NOT NULL,
	  data_json   TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_sequences_updated ON sequences(updated_utc);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Save(ctx context.Context, name string, seq *action.Sequence) error {
	if err := checkName(name); err != nil {
		return &Error{Op: "save", Key: name, Err: err}
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return &Error{Op: "save", Key: name, Err: fmt.Errorf("failed to marshal sequence: %w", err)}
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO sequences(name, origin, actions, updated_utc, data_json) VALUES(?,?,?,?,json(?))
	ON CONFLICT(name) DO UPDATE SET
	  origin = excluded.origin,
	  actions = excluded.actions,
	  updated_utc = excluded.updated_utc,
	  data_json = excluded.data_json`,
		name, seq.Origin, seq.Len(), time.Now().UTC().UnixMilli(), string(data))
	if err != nil {
		return &Error{Op: "save", Key: name, Err: fmt.Errorf("failed to execute statement: %w", err)}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, name string) (*action.Sequence, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM sequences WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Op: "load", Key: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "load", Key: name, Err: err}
	}

	seq := &action.Sequence{}
	if err := json.Unmarshal([]byte(data), seq); err != nil {
		return nil, &Error{Op: "load", Key: name, Err: fmt.Errorf("failed to decode sequence: %w", err)}
	}
	return seq, nil
}

func (s *SQLite) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, origin, actions, updated_utc FROM sequences ORDER BY name`)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.Name, &sum.Origin, &sum.Actions, &updated); err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sequences WHERE name = ?`, name)
	if err != nil {
		return &Error{Op: "delete", Key: name, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &Error{Op: "delete", Key: name, Err: err}
	}
	if n == 0 {
		return &Error{Op: "delete", Key: name, Err: ErrNotFound}
	}
	return nil
}
