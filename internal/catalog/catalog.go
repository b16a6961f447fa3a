// Package catalog is the relational side of a vault: projects,
// collections and the asset rows that reference a manifest chain rather
// than carrying bytes directly. It is the Go counterpart of
// CompactVaultManager's project/collection/asset methods in the Python
// original, rebuilt over database/sql + mattn/go-sqlite3 instead of the
// raw sqlite3 module, and over internal/database's Postgres wrapper
// shape from the teacher repo.
//
// SQLite allows one writer at a time; internal/vault opens the
// database with a single pooled connection, so database/sql itself
// serializes callers the way the original's threading.RLock did —
// catalog does not need its own mutex, only transactions where more
// than one statement must commit atomically.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Catalog is the relational store over an open vault database.
type Catalog struct {
	db *sql.DB
}

// New wraps db (already opened and migrated by internal/vault) as a
// catalog.
func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Project is a top-level grouping of collections.
type Project struct {
	ID          int64
	Name        string
	Type        string
	Description sql.NullString
	OrderIndex  sql.NullInt64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateProject inserts a new project and returns its id.
func (c *Catalog) CreateProject(ctx context.Context, name, typ, description string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO projects (name, type, description) VALUES (?, ?, ?)`,
		name, typ, description)
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	return res.LastInsertId()
}

// ListProjects returns every project, ordered the way the UI expects:
// explicit order_index first, then name.
func (c *Catalog) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, type, description, order_index, created_at, updated_at
		 FROM projects ORDER BY order_index ASC, name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Description, &p.OrderIndex, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject fetches one project by id, or ErrNotFound.
func (c *Catalog) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, type, description, order_index, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Type, &p.Description, &p.OrderIndex, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

// Collection is a named grouping of assets, optionally nested under
// another collection (spec §3: the filesystem-like hierarchy chunked
// path-prefix uploads materialize into).
type Collection struct {
	ID        int64
	ProjectID int64
	ParentID  sql.NullInt64
	Name      sql.NullString
	Type      sql.NullString
	OrderIndex sql.NullInt64
	CreatedAt time.Time
}

// CreateCollection inserts a new collection and returns its id.
func (c *Catalog) CreateCollection(ctx context.Context, projectID int64, name, typ string, parentID *int64) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO collections (project_id, name, type, parent_id) VALUES (?, ?, ?, ?)`,
		projectID, name, typ, nullableInt64(parentID))
	if err != nil {
		return 0, fmt.Errorf("create collection: %w", err)
	}
	return res.LastInsertId()
}

// ListCollectionsForProject returns a project's collections.
func (c *Catalog) ListCollectionsForProject(ctx context.Context, projectID int64) ([]Collection, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, project_id, parent_id, name, type, order_index, created_at
		 FROM collections WHERE project_id = ? ORDER BY order_index ASC, name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var col Collection
		if err := rows.Scan(&col.ID, &col.ProjectID, &col.ParentID, &col.Name, &col.Type, &col.OrderIndex, &col.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, col)
	}
	return collections, rows.Err()
}

// GetCollection fetches one collection by id, or ErrNotFound.
func (c *Catalog) GetCollection(ctx context.Context, id int64) (*Collection, error) {
	var col Collection
	err := c.db.QueryRowContext(ctx,
		`SELECT id, project_id, parent_id, name, type, order_index, created_at FROM collections WHERE id = ?`, id,
	).Scan(&col.ID, &col.ProjectID, &col.ParentID, &col.Name, &col.Type, &col.OrderIndex, &col.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %d: %w", id, err)
	}
	return &col, nil
}

// GetOrCreateCollectionFromPath resolves a "/"-separated path prefix
// (the directory portion of a batch upload's relative path) to a
// collection id, creating any missing intermediate collections under
// baseCollectionID. Matches get_or_create_collection_from_path in the
// Python original.
func (c *Catalog) GetOrCreateCollectionFromPath(ctx context.Context, baseCollectionID int64, pathPrefix string) (int64, error) {
	if pathPrefix == "" {
		return baseCollectionID, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("resolve path: %w", err)
	}
	defer tx.Rollback()

	var projectID int64
	if err := tx.QueryRowContext(ctx, `SELECT project_id FROM collections WHERE id = ?`, baseCollectionID).Scan(&projectID); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("resolve path: collection %d: %w", baseCollectionID, ErrNotFound)
		}
		return 0, fmt.Errorf("resolve path: %w", err)
	}

	currentParent := baseCollectionID
	for _, part := range splitPath(pathPrefix) {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM collections WHERE project_id = ? AND parent_id = ? AND name = ?`,
			projectID, currentParent, part,
		).Scan(&existing)
		if err == nil {
			currentParent = existing
			continue
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("resolve path: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO collections (project_id, name, type, parent_id) VALUES (?, ?, 'collection', ?)`,
			projectID, part, currentParent)
		if err != nil {
			return 0, fmt.Errorf("resolve path: create %q: %w", part, err)
		}
		currentParent, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("resolve path: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("resolve path: %w", err)
	}
	return currentParent, nil
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	trimmed := trimSlashes(p)
	for i := 0; i <= len(trimmed); i++ {
		if i == len(trimmed) || trimmed[i] == '/' {
			if i > start {
				parts = append(parts, trimmed[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// ErrNotFound is returned by Get* lookups when no row matches.
var ErrNotFound = fmt.Errorf("catalog: not found")
