package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdobak/go-xerrors"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	inMemory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")

	if !inMemory {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, xerrors.New("failed to create database directory", err)
			}
		}
	}

	dsn := path
	if !inMemory && !strings.Contains(path, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, xerrors.New("failed to open sqlite database", err)
	}

	// every connection to :memory: is its own database
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.New("failed to connect to sqlite database", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Table(ctx context.Context, name string) (Table, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`, name)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return nil, xerrors.New(fmt.Sprintf("failed to create table %s", name), err)
	}

	return &sqliteTable{db: s.db, name: name}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTable struct {
	db   *sql.DB
	name string
}

func (t *sqliteTable) Name() string { return t.name }

func (t *sqliteTable) View(ctx context.Context, fn func(ReadTx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.New("failed to begin read transaction", err)
	}
	defer tx.Rollback()

	return fn(&sqliteTx{ctx: ctx, tx: tx, name: t.name})
}

func (t *sqliteTable) Update(ctx context.Context, fn func(WriteTx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.New("failed to begin write transaction", err)
	}

	if err := fn(&sqliteTx{ctx: ctx, tx: tx, name: t.name}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return xerrors.New("failed to commit transaction", err)
	}
	return nil
}

type sqliteTx struct {
	ctx  context.Context
	tx   *sql.Tx
	name string
}

func (s *sqliteTx) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.tx.QueryRowContext(s.ctx, fmt.Sprintf(`SELECT value FROM "%s" WHERE key = ?`, s.name), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.New(fmt.Sprintf("failed to get %s", key), err)
	}
	return value, true, nil
}

func (s *sqliteTx) All() ([]Entry, error) {
	rows, err := s.tx.QueryContext(s.ctx, fmt.Sprintf(`SELECT key, value FROM "%s" ORDER BY key`, s.name))
	if err != nil {
		return nil, xerrors.New("failed to list entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, xerrors.New("failed to scan entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteTx) Count() (int, error) {
	var n int
	if err := s.tx.QueryRowContext(s.ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, s.name)).Scan(&n); err != nil {
		return 0, xerrors.New("failed to count entries", err)
	}
	return n, nil
}

func (s *sqliteTx) Put(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.tx.ExecContext(s.ctx,
		fmt.Sprintf(`INSERT INTO "%s" (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, s.name),
		key, value)
	if err != nil {
		return xerrors.New(fmt.Sprintf("failed to put %s", key), err)
	}
	return nil
}

func (s *sqliteTx) Delete(key string) error {
	if _, err := s.tx.ExecContext(s.ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE key = ?`, s.name), key); err != nil {
		return xerrors.New(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}
