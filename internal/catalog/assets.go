package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// CreateAsset inserts an asset row plus its filename metadata entry in
// one transaction, mirroring the original's insert into assets followed
// by INSERT INTO metadata (asset_id, key, value) VALUES (?, 'filename', ?).
func (c *Catalog) CreateAsset(ctx context.Context, collectionID int64, assetType, format string, manifestJSON []byte, filename string) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create asset: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO assets (collection_id, type, format, manifest) VALUES (?, ?, ?, ?)`,
		collectionID, assetType, format, string(manifestJSON))
	if err != nil {
		return 0, fmt.Errorf("create asset: %w", err)
	}
	assetID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create asset: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (asset_id, key, value) VALUES (?, 'filename', ?)`, assetID, filename,
	); err != nil {
		return 0, fmt.Errorf("create asset: store filename: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create asset: %w", err)
	}
	return assetID, nil
}

// SetAssetMetadata records an arbitrary key/value pair against an asset
// (tags, custom fields), additive like the original's metadata table.
func (c *Catalog) SetAssetMetadata(ctx context.Context, assetID int64, key, value string) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO metadata (asset_id, key, value) VALUES (?, ?, ?)`, assetID, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// AssetManifestRow is the raw manifest row used by the read pipeline.
type AssetManifestRow struct {
	ID       int64
	Type     string
	Format   sql.NullString
	Manifest string
}

// GetAssetManifest fetches the manifest JSON and type/format for an
// asset, or ErrNotFound.
func (c *Catalog) GetAssetManifest(ctx context.Context, assetID int64) (*AssetManifestRow, error) {
	var row AssetManifestRow
	err := c.db.QueryRowContext(ctx,
		`SELECT id, type, format, manifest FROM assets WHERE id = ?`, assetID,
	).Scan(&row.ID, &row.Type, &row.Format, &row.Manifest)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", assetID, err)
	}
	return &row, nil
}

// AssetFilename returns the filename metadata entry for an asset, if
// any.
func (c *Catalog) AssetFilename(ctx context.Context, assetID int64) (string, error) {
	var filename sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE asset_id = ? AND key = 'filename' LIMIT 1`, assetID,
	).Scan(&filename)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get filename for asset %d: %w", assetID, err)
	}
	return filename.String, nil
}

// ListAssetsOptions controls ListAssets' pagination, filtering and
// sorting (spec §6's /collections/{id}/assets query parameters).
type ListAssetsOptions struct {
	CollectionID int64
	Offset       int
	Limit        int
	Tag          string
	Query        string
	FilterByType string
	SortBy       string // "filename" (default) or "size"
	SortOrder    string // "asc" (default) or "desc"
}

// AssetListItem is one row of a paginated asset listing.
type AssetListItem struct {
	ID           int64
	Type         string
	Format       sql.NullString
	Filename     string
	SizeOriginal int64
}

// ListAssets returns a page of assets for a collection, the total
// matching count, and the distinct set of formats present in that
// collection (for a filter dropdown), matching
// get_assets_for_collection in the Python original.
func (c *Catalog) ListAssets(ctx context.Context, opts ListAssetsOptions) (items []AssetListItem, total int, allFormats []string, err error) {
	where := []string{"a.collection_id = ?"}
	params := []interface{}{opts.CollectionID}

	if opts.Query != "" {
		where = append(where, `a.id IN (SELECT asset_id FROM metadata WHERE key = 'filename' AND LOWER(value) LIKE LOWER(?))`)
		params = append(params, "%"+opts.Query+"%")
	}
	if opts.FilterByType != "" {
		where = append(where, "a.format = ?")
		params = append(params, opts.FilterByType)
	}
	if opts.Tag != "" {
		where = append(where, `a.id IN (SELECT asset_id FROM metadata WHERE key = 'tags' AND value LIKE ?)`)
		params = append(params, "%"+opts.Tag+"%")
	}
	whereSQL := strings.Join(where, " AND ")

	if err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(a.id) FROM assets a WHERE %s`, whereSQL), params...,
	).Scan(&total); err != nil {
		return nil, 0, nil, fmt.Errorf("list assets: count: %w", err)
	}

	orderClause := `(SELECT value FROM metadata WHERE asset_id = a.id AND key = 'filename')`
	if opts.SortBy == "size" {
		orderClause = `json_extract(a.manifest, '$.total_size')`
	}
	direction := "ASC"
	if strings.EqualFold(opts.SortOrder, "desc") {
		direction = "DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	listSQL := fmt.Sprintf(
		`SELECT a.id, a.type, a.format, a.manifest,
		        (SELECT value FROM metadata WHERE asset_id = a.id AND key = 'filename') as filename
		 FROM assets a WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		whereSQL, orderClause, direction)

	listParams := append(append([]interface{}{}, params...), limit, opts.Offset)
	rows, err := c.db.QueryContext(ctx, listSQL, listParams...)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id           int64
			assetType    string
			format       sql.NullString
			manifestJSON sql.NullString
			filename     sql.NullString
		)
		if err := rows.Scan(&id, &assetType, &format, &manifestJSON, &filename); err != nil {
			return nil, 0, nil, fmt.Errorf("list assets: scan: %w", err)
		}
		item := AssetListItem{ID: id, Type: assetType, Format: format}
		sizeOriginal, manifestFilename := manifestSizeAndFilename(manifestJSON.String)
		item.SizeOriginal = sizeOriginal
		if filename.Valid && filename.String != "" {
			item.Filename = filename.String
		} else if manifestFilename != "" {
			item.Filename = manifestFilename
		} else {
			item.Filename = "Untitled"
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, nil, err
	}

	formatRows, err := c.db.QueryContext(ctx, `SELECT DISTINCT format FROM assets WHERE collection_id = ?`, opts.CollectionID)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("list assets: formats: %w", err)
	}
	defer formatRows.Close()
	for formatRows.Next() {
		var f sql.NullString
		if err := formatRows.Scan(&f); err != nil {
			return nil, 0, nil, err
		}
		if f.Valid && f.String != "" {
			allFormats = append(allFormats, f.String)
		}
	}

	return items, total, allFormats, formatRows.Err()
}

// AssetPath pairs an asset id with the path it should occupy inside a
// zip archive.
type AssetPath struct {
	ID   int64
	Path string
}

// AssetIDsWithPathsForCollection recursively walks a collection's
// subtree, returning every asset it (or its descendants) contains with
// a zip-relative path rooted at basePath, matching
// get_asset_ids_with_paths_for_collection.
func (c *Catalog) AssetIDsWithPathsForCollection(ctx context.Context, collectionID int64, basePath string) ([]AssetPath, error) {
	coll, err := c.GetCollection(ctx, collectionID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	name := coll.Name.String
	if name == "" {
		name = fmt.Sprintf("collection_%d", coll.ID)
	}
	currentPath := basePath + name + "/"

	var results []AssetPath
	items, _, _, err := c.ListAssets(ctx, ListAssetsOptions{CollectionID: collectionID, Limit: 999999})
	if err != nil {
		return nil, err
	}
	for _, a := range items {
		if a.Filename != "" {
			results = append(results, AssetPath{ID: a.ID, Path: currentPath + a.Filename})
		}
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id FROM collections WHERE parent_id = ?`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list subcollections of %d: %w", collectionID, err)
	}
	var subIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		subIDs = append(subIDs, id)
	}
	rows.Close()

	for _, sub := range subIDs {
		sub, err := c.AssetIDsWithPathsForCollection(ctx, sub, currentPath)
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
	}
	return results, nil
}

// AssetIDsWithPathsForProject returns every asset in a project, rooted
// under "<project name>/", matching get_asset_ids_with_paths_for_project.
func (c *Catalog) AssetIDsWithPathsForProject(ctx context.Context, projectID int64) ([]AssetPath, error) {
	proj, err := c.GetProject(ctx, projectID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	basePath := proj.Name + "/"

	rows, err := c.db.QueryContext(ctx, `SELECT id FROM collections WHERE project_id = ? AND parent_id IS NULL`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list top collections of project %d: %w", projectID, err)
	}
	var topIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		topIDs = append(topIDs, id)
	}
	rows.Close()

	var results []AssetPath
	for _, top := range topIDs {
		sub, err := c.AssetIDsWithPathsForCollection(ctx, top, basePath)
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
	}
	return results, nil
}

func manifestSizeAndFilename(manifestJSON string) (int64, string) {
	if manifestJSON == "" {
		return 0, ""
	}
	var partial struct {
		TotalSize int64  `json:"total_size"`
		Filename  string `json:"filename"`
	}
	if err := json.Unmarshal([]byte(manifestJSON), &partial); err != nil {
		return 0, ""
	}
	return partial.TotalSize, partial.Filename
}
