// Package store provides a SQLite-backed upload log. Every document accepted
// by the upload endpoint or the ingest command is recorded with the number
// of pages and chunks it produced, so operators can see what the index holds
// and when it arrived.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// DefaultPath is the default upload log location.
const DefaultPath = "data/uploads.db"

// Disabled is the UPLOAD_LOG_DB value that turns the log off.
const Disabled = "disabled"

// Upload is a single ingested document.
type Upload struct {
	// Filename is the stored file name.
	Filename string `json:"filename"`
	// Collection is the vector collection the chunks went into.
	Collection string `json:"collection"`
	// NumDocs is the number of pages loaded.
	NumDocs int `json:"num_docs"`
	// NumChunks is the number of chunks indexed.
	NumChunks int `json:"num_chunks"`
	// UploadedAt is when the upload was recorded.
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadLog persists and lists uploads. Implementations must be safe for
// concurrent use.
type UploadLog interface {
	// Record persists one upload.
	Record(ctx context.Context, u Upload) error
	// Recent returns the most recent n uploads, newest first.
	// If fewer than n exist, all are returned.
	Recent(ctx context.Context, n int) ([]Upload, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteStore is an UploadLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", filepath.Dir(path), err)
		}
		// WAL mode improves concurrent read performance and is safe for single-host use.
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS uploads (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    filename     TEXT    NOT NULL,
    collection   TEXT    NOT NULL,
    num_docs     INTEGER NOT NULL,
    num_chunks   INTEGER NOT NULL,
    uploaded_at  INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_at
    ON uploads (uploaded_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists one upload. A zero UploadedAt is stamped with the current time.
func (s *SQLiteStore) Record(ctx context.Context, u Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	const q = `INSERT INTO uploads (filename, collection, num_docs, num_chunks, uploaded_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, u.Filename, u.Collection, u.NumDocs, u.NumChunks, u.UploadedAt.UnixNano()); err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n uploads, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Upload, error) {
	const q = `
SELECT filename, collection, num_docs, num_chunks, uploaded_at
FROM   uploads
ORDER  BY uploaded_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var u Upload
		var ts int64
		if err := rows.Scan(&u.Filename, &u.Collection, &u.NumDocs, &u.NumChunks, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		u.UploadedAt = time.Unix(0, ts).UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return out, nil
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
