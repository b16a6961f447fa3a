package chunkstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	const schema = `CREATE TABLE chunks (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		size INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create chunks table: %v", err)
	}
	return New(db)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	data := []byte("hello chunk store")
	hash, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Get returned different bytes than Put stored")
	}
}

func TestStore_DeduplicatesIdenticalContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("duplicate me"), 100)

	hash1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	hash2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put (again): %v", err)
	}
	if hash1 != hash2 {
		t.Fatalf("identical content produced different hashes: %s vs %s", hash1, hash2)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE hash = ?`, hash1).Scan(&count); err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one row for a deduplicated chunk, got %d", count)
	}
}

func TestStore_GetUnknownHash(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000")
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestStore_Exists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	data := make([]byte, 4096)
	rand.Read(data)
	hash, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	exists, err := s.Exists(ctx, hash)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("Exists should report true for a stored chunk")
	}

	exists, err = s.Exists(ctx, "not-a-real-hash")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("Exists should report false for an unknown hash")
	}
}

func TestNewTx_WritesCommitAndRollBackTogetherWithTheCaller(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE chunks (hash TEXT PRIMARY KEY, data BLOB NOT NULL, size INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create chunks table: %v", err)
	}

	ctx := context.Background()
	data := []byte("chunk written inside a caller-owned transaction")

	t.Run("rollback discards the chunk write", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx: %v", err)
		}
		store := NewTx(tx)
		hash, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("Rollback: %v", err)
		}

		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE hash = ?`, hash).Scan(&count); err != nil {
			t.Fatalf("count chunks: %v", err)
		}
		if count != 0 {
			t.Errorf("expected rollback to discard the chunk write, found %d rows", count)
		}
	})

	t.Run("commit persists the chunk write", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx: %v", err)
		}
		store := NewTx(tx)
		hash, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE hash = ?`, hash).Scan(&count); err != nil {
			t.Fatalf("count chunks: %v", err)
		}
		if count != 1 {
			t.Errorf("expected commit to persist the chunk write, found %d rows", count)
		}
	})
}
