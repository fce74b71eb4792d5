package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/pdfrag/internal/rag"
)

// IndexFile is the SQLite database file name inside a persist directory.
const IndexFile = "index.db"

// sqliteStore keeps every collection of one persist directory in a single
// SQLite file. Similarity is computed in-process over the collection rows.
type sqliteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// dir is the absolute persist directory.
	dir string
}

// openSQLite opens (or creates) dir/index.db and runs the schema migration.
func openSQLite(ctx context.Context, dir string) (*sqliteStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: resolve %s: %w", dir, rag.ErrConfiguration)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: create persist directory %s: %w: %w", abs, rag.ErrBackend, err)
	}

	dsn := "file:" + filepath.Join(abs, IndexFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w: %w", abs, rag.ErrBackend, err)
	}

	s := &sqliteStore{db: db, dir: abs}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *sqliteStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    collection   TEXT    NOT NULL,
    chunk_id     TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    metadata     TEXT    NOT NULL,  -- JSON object of string values
    vector       BLOB    NOT NULL,  -- little-endian float32
    UNIQUE (collection, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection_seq
    ON chunks (collection, seq);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("vectorstore: migrate: %w: %w", rag.ErrBackend, err)
	}
	return nil
}

func (s *sqliteStore) upsert(ctx context.Context, collection string, recs []record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return upsertTx(ctx, tx, collection, recs) })
}

func (s *sqliteStore) replace(ctx context.Context, collection, docID string, recs []record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		const q = `DELETE FROM chunks WHERE collection = ? AND json_extract(metadata, '$.doc_id') = ?`
		if _, err := tx.ExecContext(ctx, q, collection, docID); err != nil {
			return rag.BackendFailure("vectorstore: delete "+docID, err)
		}
		return upsertTx(ctx, tx, collection, recs)
	})
}

// inTx runs fn in a transaction and commits when it succeeds.
func (s *sqliteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rag.BackendFailure("vectorstore: begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return rag.BackendFailure("vectorstore: commit", err)
	}
	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, collection string, recs []record) error {
	if len(recs) == 0 {
		return nil
	}
	const q = `
INSERT INTO chunks (collection, chunk_id, content, metadata, vector)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, chunk_id) DO UPDATE SET
    content  = excluded.content,
    metadata = excluded.metadata,
    vector   = excluded.vector`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return rag.BackendFailure("vectorstore: prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		md, err := json.Marshal(r.metadata)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal metadata for %s: %w", r.id, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.id, r.content, string(md), encodeVector(r.vector)); err != nil {
			return rag.BackendFailure("vectorstore: upsert "+r.id, err)
		}
	}
	return nil
}

func (s *sqliteStore) nearest(ctx context.Context, collection string, query []float32, limit int) ([]record, error) {
	const q = `SELECT chunk_id, content, metadata, vector FROM chunks WHERE collection = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, rag.BackendFailure("vectorstore: search", err)
	}
	defer rows.Close()

	var recs []record
	for rows.Next() {
		var (
			r    record
			md   string
			blob []byte
		)
		if err := rows.Scan(&r.id, &r.content, &md, &blob); err != nil {
			return nil, rag.BackendFailure("vectorstore: search scan", err)
		}
		if err := json.Unmarshal([]byte(md), &r.metadata); err != nil {
			return nil, fmt.Errorf("vectorstore: corrupt metadata for %s: %w: %w", r.id, rag.ErrBackend, err)
		}
		if r.vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("vectorstore: corrupt vector for %s: %w: %w", r.id, rag.ErrBackend, err)
		}
		if len(r.vector) != len(query) {
			return nil, fmt.Errorf("vectorstore: collection %q holds %d-dim vectors, query has %d: %w",
				collection, len(r.vector), len(query), rag.ErrConfiguration)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.BackendFailure("vectorstore: search rows", err)
	}
	return rankBySimilarity(query, recs, limit), nil
}

func (s *sqliteStore) drop(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
		return rag.BackendFailure("vectorstore: delete collection", err)
	}
	return nil
}

func (s *sqliteStore) count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, rag.BackendFailure("vectorstore: count", err)
	}
	return n, nil
}

func (s *sqliteStore) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return rag.BackendFailure("vectorstore: ping", err)
	}
	return nil
}

func (s *sqliteStore) location() string { return s.dir }

func (s *sqliteStore) close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("vectorstore: close: %w", err)
	}
	return nil
}

// encodeVector serialises v as little-endian float32.
func encodeVector(v []float32) []byte {
	var buf bytes.Buffer
	buf.Grow(4 * len(v))
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}
