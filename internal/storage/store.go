// Package storage persists the translation cache and per-book reading
// progress in a single SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS translation_cache (
	key        TEXT PRIMARY KEY,
	translated TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS reading_progress (
	book           TEXT PRIMARY KEY,
	last_chapter   TEXT NOT NULL,
	last_paragraph INTEGER NOT NULL,
	updated_at     DATETIME NOT NULL
);
`

// Progress is the saved resume position for one book. LastParagraph is
// the next paragraph to speak, not the last one finished.
type Progress struct {
	Book          string `json:"book"`
	LastChapter   string `json:"last_chapter"`
	LastParagraph int    `json:"last_paragraph"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadCache returns the whole translation cache, keyed by request hash.
// Called once at startup; afterwards cache reads are in-memory only.
func (s *Store) LoadCache(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, translated FROM translation_cache`)
	if err != nil {
		return nil, fmt.Errorf("load translation cache: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]string)
	for rows.Next() {
		var key, translated string
		if err := rows.Scan(&key, &translated); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		cache[key] = translated
	}
	return cache, rows.Err()
}

// SaveCacheEntry writes through one cache entry. Entries are never
// rewritten: the cache is a pure memoization of the provider.
func (s *Store) SaveCacheEntry(ctx context.Context, key, translated string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_cache (key, translated) VALUES (?, ?)
		 ON CONFLICT(key) DO NOTHING`, key, translated)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, book string) (*Progress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT book, last_chapter, last_paragraph FROM reading_progress WHERE book = ?`, book)

	var p Progress
	if err := row.Scan(&p.Book, &p.LastChapter, &p.LastParagraph); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &p, nil
}

func (s *Store) SetProgress(ctx context.Context, p Progress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_progress (book, last_chapter, last_paragraph, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(book) DO UPDATE SET
			last_chapter = excluded.last_chapter,
			last_paragraph = excluded.last_paragraph,
			updated_at = excluded.updated_at`,
		p.Book, p.LastChapter, p.LastParagraph, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}
