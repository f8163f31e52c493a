// Package store persists carousel documents and the saved preset library in
// SQLite.
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

	_ "github.com/mattn/go-sqlite3"

	carousel "github.com/VantageDataChat/GoCarousel"
)

// ErrNotFound is returned for unknown document ids and preset names.
var ErrNotFound = errors.New("not found")

// Store is a SQLite-backed document and preset store.
type Store struct {
	db *sql.DB
}

// DocumentInfo is a document listing entry.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Slides    int       `json:"slides"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Open opens (and creates when needed) the database at path. ":memory:" opens
// a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_foreign_keys=1&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	carousel.Logger().Debug("store opened", "path", path)
	return s, nil
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL DEFAULT '',
			slide_count INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);`,
		`CREATE TABLE IF NOT EXISTS presets (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument inserts or replaces doc.
func (s *Store) SaveDocument(ctx context.Context, doc *carousel.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (id, topic, slide_count, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET topic = excluded.topic, slide_count = excluded.slide_count,
			body = excluded.body, updated_at = excluded.updated_at`,
		doc.ID, doc.Topic, doc.Len(), string(body), now, now)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// Document loads and hydrates the document with id.
func (s *Store) Document(ctx context.Context, id string) (*carousel.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	doc, err := carousel.HydrateDocument([]byte(body))
	if err != nil {
		return nil, err
	}
	doc.ID = id
	return doc, nil
}

// Documents lists stored documents, most recently updated first.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, topic, slide_count, updated_at FROM documents ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Topic, &d.Slides, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes the document with id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SavePreset inserts or replaces p under p.Name.
func (s *Store) SavePreset(ctx context.Context, p carousel.Preset) error {
	if p.Name == "" {
		return errors.New("preset name is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO presets (name, body) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body`, p.Name, string(body))
	if err != nil {
		return fmt.Errorf("failed to save preset %s: %w", p.Name, err)
	}
	return nil
}

// Preset loads the preset called name.
func (s *Store) Preset(ctx context.Context, name string) (carousel.Preset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM presets WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return carousel.Preset{}, fmt.Errorf("preset %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return carousel.Preset{}, fmt.Errorf("failed to load preset %s: %w", name, err)
	}
	var p carousel.Preset
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return carousel.Preset{}, fmt.Errorf("decode preset %s: %w", name, err)
	}
	return p, nil
}

// Presets lists saved presets by name.
func (s *Store) Presets(ctx context.Context) ([]carousel.Preset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var out []carousel.Preset
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var p carousel.Preset
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			carousel.Logger().Warn("skip unreadable preset", "err", err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
