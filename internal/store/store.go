package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/treehug/internal/model"
)

// Store is the SQLite summary cache. One row per (path, hash, engine key).
type Store struct {
	db *sql.DB
}

// Entry is a cached file summary together with its cache key.
type Entry struct {
	Path       string
	Hash       string
	EngineKey  string
	Summary    *model.FileSummary
	AnalyzedAt time.Time
}

// Stats describes the cache contents.
type Stats struct {
	Entries    int   `json:"entries"`
	Paths      int   `json:"paths"`
	EngineKeys int   `json:"engine_keys"`
	Bytes      int64 `json:"bytes"`
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open is NewStore followed by Migrate.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS summaries (
  path        TEXT NOT NULL,
  hash        TEXT NOT NULL,
  engine_key  TEXT NOT NULL,
  blob        BLOB NOT NULL,
  analyzed_at TIMESTAMP NOT NULL,
  PRIMARY KEY (path, hash, engine_key)
);

CREATE TABLE IF NOT EXISTS metadata (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_summaries_path ON summaries(path);
CREATE INDEX IF NOT EXISTS idx_summaries_engine_key ON summaries(engine_key);
`

// Get returns the cached summary for the key. ok is false on a miss.
func (s *Store) Get(path, hash, engineKey string) (*model.FileSummary, bool, error) {
	var blob []byte
	err := s.db.QueryRow(
		"SELECT blob FROM summaries WHERE path = ? AND hash = ? AND engine_key = ?",
		path, hash, engineKey,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get summary %s: %w", path, err)
	}
	sum, err := decodeSummary(blob)
	if err != nil {
		return nil, false, fmt.Errorf("get summary %s: %w", path, err)
	}
	return sum, true, nil
}

// Put stores e, replacing older entries for the same path.
func (s *Store) Put(e *Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put: begin: %w", err)
	}
	defer tx.Rollback()
	if err := putTx(tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func putTx(tx *sql.Tx, e *Entry) error {
	blob, err := encodeSummary(e.Summary)
	if err != nil {
		return fmt.Errorf("put summary %s: %w", e.Path, err)
	}
	at := e.AnalyzedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := tx.Exec("DELETE FROM summaries WHERE path = ?", e.Path); err != nil {
		return fmt.Errorf("put summary %s: %w", e.Path, err)
	}
	_, err = tx.Exec(
		"INSERT INTO summaries (path, hash, engine_key, blob, analyzed_at) VALUES (?, ?, ?, ?, ?)",
		e.Path, e.Hash, e.EngineKey, blob, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put summary %s: %w", e.Path, err)
	}
	return nil
}

// Prune deletes every entry whose path is not in keep and returns the
// number of rows removed.
func (s *Store) Prune(keep []string) (int64, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}

	rows, err := s.db.Query("SELECT DISTINCT path FROM summaries")
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, fmt.Errorf("prune: scan: %w", err)
		}
		if !keepSet[p] {
			stale = append(stale, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("prune: begin: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, chunk := range chunks(stale, maxParams) {
		res, err := tx.Exec(
			"DELETE FROM summaries WHERE path IN ("+placeholderList(len(chunk))+")",
			stringsToArgs(chunk)...,
		)
		if err != nil {
			return 0, fmt.Errorf("prune: delete: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, tx.Commit()
}

// Stats reports entry counts and the total compressed size.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT path), COUNT(DISTINCT engine_key),
		COALESCE(SUM(LENGTH(blob)), 0) FROM summaries`).
		Scan(&st.Entries, &st.Paths, &st.EngineKeys, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
