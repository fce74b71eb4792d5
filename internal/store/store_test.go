package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_RecordAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Record(ctx, Upload{Filename: "a.pdf", Collection: "documents", NumDocs: 2, NumChunks: 5, UploadedAt: at}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 upload, got %d", len(got))
	}
	u := got[0]
	if u.Filename != "a.pdf" || u.Collection != "documents" || u.NumDocs != 2 || u.NumChunks != 5 || !u.UploadedAt.Equal(at) {
		t.Errorf("unexpected upload %+v", u)
	}
}

func Test_Store_NewestFirstAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.pdf", "second.pdf", "third.pdf"} {
		if err := s.Record(ctx, Upload{Filename: name, UploadedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Filename != "third.pdf" || got[1].Filename != "second.pdf" {
		t.Errorf("want [third second], got %+v", got)
	}
}

func Test_Store_ZeroTimeIsStamped(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := s.Record(ctx, Upload{Filename: "now.pdf"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Recent(ctx, 1)
	if len(got) != 1 || got[0].UploadedAt.Before(before) {
		t.Errorf("upload time not stamped: %+v", got)
	}
}

func Test_Store_EmptyReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 uploads, got %d", len(got))
	}
}

func Test_Store_PersistsToFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "uploads.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, Upload{Filename: "kept.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if err := reopened.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := reopened.Recent(ctx, 5)
	if len(got) != 1 || got[0].Filename != "kept.pdf" {
		t.Errorf("upload did not survive reopen: %+v", got)
	}
}
