// Package vault owns the embedded SQLite database's lifecycle: opening
// and pragma-tuning the connection, creating the schema, and checking
// the vault password. It plays the role CompactVaultManager.__init__,
// create_database_schema and set_password/check_password play in the
// Python original, and the pooled-connection shape internal/database's
// Postgres wrapper uses, rebuilt on mattn/go-sqlite3 for a single
// embedded file rather than a client/server database.
package vault

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/pbkdf2"

	"github.com/smolfiddle/compactvault/internal/chunkstore"
	"github.com/smolfiddle/compactvault/internal/crypto"
	"github.com/smolfiddle/compactvault/internal/manifest"
)

const (
	pbkdf2Iterations = 100000
	saltSize         = 16
)

// Vault wraps the open database connection for one CompactVault file.
type Vault struct {
	DB   *sql.DB
	Path string
}

// Open opens (creating if necessary) the SQLite file at path, applies
// the pragmas the original sets on every connection, and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Vault, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", path, err)
	}

	// SQLite allows only one writer at a time; a single connection
	// avoids SQLITE_BUSY from Go's connection pool fighting itself.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	v := &Vault{DB: db, Path: path}
	if err := v.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := v.migrateLegacySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

// Close flushes the write-ahead log into the main database file and
// closes the connection, matching the PRAGMA wal_checkpoint(FULL) the
// original issues on shutdown so the vault file is self-contained.
func (v *Vault) Close() error {
	_, _ = v.DB.Exec("PRAGMA wal_checkpoint(FULL)")
	return v.DB.Close()
}

func (v *Vault) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS vault_properties (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			order_index INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS collections (
			id INTEGER PRIMARY KEY,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			parent_id INTEGER REFERENCES collections(id),
			name TEXT,
			type TEXT,
			order_index INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id INTEGER PRIMARY KEY,
			collection_id INTEGER REFERENCES collections(id),
			type TEXT NOT NULL,
			format TEXT,
			manifest TEXT,
			order_index INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			id INTEGER PRIMARY KEY,
			asset_id INTEGER REFERENCES assets(id),
			key TEXT NOT NULL,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			hash TEXT PRIMARY KEY,
			data BLOB,
			size INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_asset ON metadata(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_key ON metadata(key)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_asset_key ON metadata(asset_id, key)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_value ON metadata(value)`,
		`CREATE INDEX IF NOT EXISTS idx_collections_project ON collections(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_collections_parent ON collections(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_collection ON assets(collection_id)`,
	}

	for _, stmt := range statements {
		if _, err := v.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// migrateLegacySchema detects the pre-chunked schema (an assets.data
// blob column, the marker _ensure_schema_extensions checks for in the
// original) and, if present, rebuilds the assets table by streaming
// every legacy blob through the sentinel chunker and chunk store and
// replacing it with a hash-chain manifest. The whole rebuild runs
// inside one transaction that rolls back if any row fails to migrate.
func (v *Vault) migrateLegacySchema(ctx context.Context) error {
	hasData, err := v.hasColumn(ctx, "assets", "data")
	if err != nil {
		return fmt.Errorf("detect legacy schema: %w", err)
	}
	if !hasData {
		return nil
	}
	hasCompression, err := v.hasColumn(ctx, "assets", "compression")
	if err != nil {
		return fmt.Errorf("detect legacy schema: %w", err)
	}
	hasOrderIndex, err := v.hasColumn(ctx, "assets", "order_index")
	if err != nil {
		return fmt.Errorf("detect legacy schema: %w", err)
	}

	tx, err := v.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate legacy schema: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT PRIMARY KEY,
		data BLOB,
		size INTEGER
	)`); err != nil {
		return fmt.Errorf("migrate legacy schema: create chunks table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE assets_new (
		id INTEGER PRIMARY KEY,
		collection_id INTEGER REFERENCES collections(id),
		type TEXT NOT NULL,
		format TEXT,
		manifest TEXT,
		order_index INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("migrate legacy schema: create assets_new: %w", err)
	}

	query := "SELECT id, collection_id, type, format, created_at, data"
	if hasOrderIndex {
		query += ", order_index"
	}
	if hasCompression {
		query += ", compression"
	}
	query += " FROM assets"

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("migrate legacy schema: read legacy assets: %w", err)
	}

	type legacyAsset struct {
		id           int64
		collectionID sql.NullInt64
		assetType    string
		format       sql.NullString
		orderIndex   sql.NullInt64
		createdAt    interface{}
		data         []byte
		compression  sql.NullString
	}

	var legacy []legacyAsset
	for rows.Next() {
		var a legacyAsset
		scanArgs := []interface{}{&a.id, &a.collectionID, &a.assetType, &a.format, &a.createdAt, &a.data}
		if hasOrderIndex {
			scanArgs = append(scanArgs, &a.orderIndex)
		}
		if hasCompression {
			scanArgs = append(scanArgs, &a.compression)
		}
		if err := rows.Scan(scanArgs...); err != nil {
			rows.Close()
			return fmt.Errorf("migrate legacy schema: scan asset: %w", err)
		}
		legacy = append(legacy, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("migrate legacy schema: iterate assets: %w", err)
	}
	rows.Close()

	chunker, err := crypto.DefaultSentinelChunker()
	if err != nil {
		return fmt.Errorf("migrate legacy schema: build chunker: %w", err)
	}
	chunks := chunkstore.NewTx(tx)

	for _, a := range legacy {
		raw := a.data
		if a.compression.Valid && a.compression.String == "zlib" {
			zr, err := zlib.NewReader(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("migrate legacy schema: decompress asset %d: %w", a.id, err)
			}
			raw, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return fmt.Errorf("migrate legacy schema: decompress asset %d: %w", a.id, err)
			}
		}

		filename := fmt.Sprintf("asset_%d", a.id)
		man := manifest.New(filename)
		parts, err := chunker.ChunkBytes(raw)
		if err != nil {
			return fmt.Errorf("migrate legacy schema: chunk asset %d: %w", a.id, err)
		}

		var previousBlockHash *string
		for _, part := range parts {
			chunkHash, err := chunks.Put(ctx, part.Data)
			if err != nil {
				return fmt.Errorf("migrate legacy schema: store chunk for asset %d: %w", a.id, err)
			}
			hash, err := man.Append(chunkHash, int64(part.Size), previousBlockHash)
			if err != nil {
				return fmt.Errorf("migrate legacy schema: extend manifest for asset %d: %w", a.id, err)
			}
			previousBlockHash = &hash
		}

		manifestJSON, err := man.Marshal()
		if err != nil {
			return fmt.Errorf("migrate legacy schema: marshal manifest for asset %d: %w", a.id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets_new (id, collection_id, type, format, manifest, order_index, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.id, a.collectionID, a.assetType, a.format, manifestJSON, a.orderIndex, a.createdAt); err != nil {
			return fmt.Errorf("migrate legacy schema: insert migrated asset %d: %w", a.id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (asset_id, key, value) VALUES (?, 'filename', ?)`,
			a.id, filename); err != nil {
			return fmt.Errorf("migrate legacy schema: store filename for asset %d: %w", a.id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE assets`); err != nil {
		return fmt.Errorf("migrate legacy schema: drop legacy assets table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE assets_new RENAME TO assets`); err != nil {
		return fmt.Errorf("migrate legacy schema: rename assets_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_assets_collection ON assets(collection_id)`); err != nil {
		return fmt.Errorf("migrate legacy schema: recreate asset index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate legacy schema: commit: %w", err)
	}
	return nil
}

// hasColumn reports whether table declares column, consulting
// PRAGMA table_info the way the original's _ensure_schema_extensions
// does before deciding whether to migrate or ALTER TABLE.
func (v *Vault) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := v.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notNull, pk int
		var name, ctype string
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SetPassword derives a PBKDF2-HMAC-SHA256 hash (100,000 iterations, a
// fresh 16-byte salt) and stores both in vault_properties, replacing any
// previously set password.
func (v *Vault) SetPassword(ctx context.Context, password string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, sha256.Size, sha256.New)

	tx, err := v.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO vault_properties (key, value) VALUES ('password_salt', ?)`,
		hex.EncodeToString(salt)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO vault_properties (key, value) VALUES ('password_hash', ?)`,
		hex.EncodeToString(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return tx.Commit()
}

// CheckPassword reports whether password matches the stored vault
// password. A vault with no password set (fresh, uninitialized) accepts
// any password, matching the original's initial-setup allowance.
func (v *Vault) CheckPassword(ctx context.Context, password string) (bool, error) {
	var saltHex, hashHex string

	err := v.DB.QueryRowContext(ctx, `SELECT value FROM vault_properties WHERE key = 'password_salt'`).Scan(&saltHex)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check password: %w", err)
	}
	if err := v.DB.QueryRowContext(ctx, `SELECT value FROM vault_properties WHERE key = 'password_hash'`).Scan(&hashHex); err != nil {
		return false, fmt.Errorf("check password: %w", err)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, fmt.Errorf("check password: corrupt salt: %w", err)
	}
	storedHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("check password: corrupt hash: %w", err)
	}

	computed := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, sha256.Size, sha256.New)
	return subtle.ConstantTimeCompare(computed, storedHash) == 1, nil
}

// HasPassword reports whether a password has ever been set on this
// vault.
func (v *Vault) HasPassword(ctx context.Context) (bool, error) {
	var one int
	err := v.DB.QueryRowContext(ctx, `SELECT 1 FROM vault_properties WHERE key = 'password_hash'`).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has password: %w", err)
	}
	return true, nil
}

// Vacuum reclaims space freed by deleted rows, the maintenance endpoint
// operation from spec §6.
func (v *Vault) Vacuum(ctx context.Context) error {
	_, err := v.DB.ExecContext(ctx, "VACUUM")
	return err
}
