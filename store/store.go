// Package store persists indexed tables in a single SQLite file. Each table is
// keyed by an integer cell id and its columns are stored as REAL or TEXT.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DefaultIndexName = "cell_id"
	MetadataTable    = "metadata"
)

// Store is an open SQLite database. A Store made by Create only appears at its
// final path once Close succeeds.
type Store struct {
	DB *sqlx.DB

	path string
	tmp  string
}

// Create starts a new database that will replace path on Close.
func Create(path string) (*Store, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, pfx.Err(err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, pfx.Err(err)
	}

	db, err := sqlx.Open("sqlite3", tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, pfx.Err(err)
	}
	// A single connection keeps every statement on the same file handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		os.Remove(tmp)
		return nil, pfx.Err(err)
	}

	return &Store{DB: db, path: path, tmp: tmp}, nil
}

// Open opens an existing database for reading.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pfx.Err(err)
	}

	db, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, pfx.Err(err)
	}
	db.SetMaxOpenConns(1)

	return &Store{DB: db, path: path}, nil
}

// Path is where the database lives, or will live once a created Store is
// closed.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and, for a created Store, moves it into place.
func (s *Store) Close() error {
	if err := s.DB.Close(); err != nil {
		if s.tmp != "" {
			os.Remove(s.tmp)
		}
		return pfx.Err(err)
	}
	if s.tmp == "" {
		return nil
	}

	if err := os.Chmod(s.tmp, 0o644); err != nil {
		os.Remove(s.tmp)
		return pfx.Err(err)
	}
	if err := os.Rename(s.tmp, s.path); err != nil {
		os.Remove(s.tmp)
		return pfx.Err(err)
	}
	s.tmp = ""

	return nil
}

// Abort closes a created Store and discards it. The previous file at its path,
// if any, is left alone.
func (s *Store) Abort() error {
	err := s.DB.Close()
	if s.tmp != "" {
		os.Remove(s.tmp)
		s.tmp = ""
	}
	return pfx.Err(err)
}

// WriteMetadata writes key/value pairs into the metadata table, creating it if
// needed. Existing keys are replaced.
func (s *Store) WriteMetadata(values map[string]string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return pfx.Err(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)", quote(MetadataTable))); err != nil {
		return pfx.Err(err)
	}
	for key, value := range values {
		if _, err := tx.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s (key, value) VALUES (?, ?)", quote(MetadataTable)), key, value); err != nil {
			return pfx.Err(err)
		}
	}

	return pfx.Err(tx.Commit())
}

type metadataRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// ReadMetadata returns the metadata table.
func (s *Store) ReadMetadata() (map[string]string, error) {
	var rows []metadataRow
	if err := s.DB.Select(&rows, fmt.Sprintf("SELECT key, value FROM %s", quote(MetadataTable))); err != nil {
		return nil, pfx.Err(err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}

	return out, nil
}

// Tables lists the tables in the database, sorted by name.
func (s *Store) Tables() ([]string, error) {
	var names []string
	if err := s.DB.Select(&names, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name"); err != nil {
		return nil, pfx.Err(err)
	}
	return names, nil
}

// quote makes name safe to use as an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
