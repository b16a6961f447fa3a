// Package chunkstore is the content-addressed chunk table: every chunk is
// hashed, compressed and written with INSERT OR IGNORE, so a chunk with a
// hash already on disk is never stored twice regardless of which asset
// referenced it first.
//
// This generalizes the Deduplicator/DedupStore shape from the storage
// package into a SQLite-backed store, matching the INSERT OR IGNORE INTO
// chunks (hash, data) pattern CompactVaultManager.create_asset_from_chunks
// uses in the Python original.
package chunkstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/smolfiddle/compactvault/internal/crypto"
)

// conn is satisfied by both *sql.DB and *sql.Tx, letting a Store run
// against either a pooled connection or an in-flight transaction.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a content-addressed, deduplicated, zstd-compressed chunk
// table over an open vault database.
type Store struct {
	db         conn
	compressor *crypto.ZstdCompressor
}

// New wraps db (already opened and migrated by internal/vault) as a
// chunk store.
func New(db *sql.DB) *Store {
	return &Store{db: db, compressor: crypto.NewZstdCompressor()}
}

// NewTx wraps an in-flight transaction as a chunk store, letting a
// caller fold chunk writes into a larger atomic operation such as the
// legacy-schema migration internal/vault runs on Open.
func NewTx(tx *sql.Tx) *Store {
	return &Store{db: tx, compressor: crypto.NewZstdCompressor()}
}

// Put compresses and stores data, returning its BLAKE2b-512 hex digest.
// If a chunk with that hash already exists, the insert is a no-op and
// the existing row is left untouched (content-addressing guarantees the
// bytes are identical).
func (s *Store) Put(ctx context.Context, data []byte) (hash string, err error) {
	hash = crypto.HashBytes(data)

	compressed, err := s.compressor.Compress(data)
	if err != nil {
		return "", fmt.Errorf("compress chunk: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chunks (hash, data, size) VALUES (?, ?, ?)`,
		hash, compressed, len(data))
	if err != nil {
		return "", fmt.Errorf("store chunk %s: %w", hash, err)
	}
	return hash, nil
}

// Get reads and decompresses the chunk stored under hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE hash = ?`, hash).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", hash, ErrChunkNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", hash, err)
	}

	data, err := s.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk %s: %w", hash, err)
	}
	return data, nil
}

// Exists reports whether a chunk with hash is already stored, letting
// callers skip recompressing data they already have on disk.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check chunk %s: %w", hash, err)
	}
	return true, nil
}

// ErrChunkNotFound is returned by Get when no chunk with the given hash
// is stored.
var ErrChunkNotFound = fmt.Errorf("chunk not found")
