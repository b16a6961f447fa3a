// Package staging manages the on-disk resumable-upload area: one
// directory per upload_id holding integer-indexed part files, written
// as they arrive and concatenated once the client signals completion.
//
// Grounded on internal/drivers/resumable.go's UploadMetadata/temp-file
// shape from the teacher repo, generalized from a single-file resumable
// upload into the Python original's directory-of-numbered-chunks layout
// (api_upload_chunk / api_complete_upload).
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

// Area is the root directory holding every in-progress upload's parts.
type Area struct {
	root string
}

// New returns a staging area rooted at root, creating it if needed.
func New(root string) (*Area, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root %s: %w", root, err)
	}
	return &Area{root: root}, nil
}

func (a *Area) uploadDir(uploadID string) string {
	return filepath.Join(a.root, uploadID)
}

// WritePart streams one part's bytes to <root>/<upload_id>/<index>,
// creating the upload's directory on first use. Bounded buffered copy
// avoids holding the part fully in memory, matching the original's
// read-in-4096-byte-chunks loop.
func (a *Area) WritePart(uploadID string, index int, r io.Reader) error {
	if uploadID == "" || index < 0 {
		return vaulterr.ErrMalformed("upload_id and a non-negative chunk_index are required")
	}

	dir := a.uploadDir(uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vaulterr.ErrInternal("stage upload part", err)
	}

	path := filepath.Join(dir, strconv.Itoa(index))
	f, err := os.Create(path)
	if err != nil {
		return vaulterr.ErrInternal("stage upload part", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return vaulterr.ErrInternal("stage upload part", err)
	}
	return nil
}

// Parts returns the upload's part file paths in ascending index order,
// after validating every index from 0 up to the highest is present with
// no gaps. A gap is a malformed request rather than a silently
// truncated asset — a deliberate tightening of the original, which
// sorted numerically but never checked for missing indices.
func (a *Area) Parts(uploadID string) ([]string, error) {
	dir := a.uploadDir(uploadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.ErrMalformed(fmt.Sprintf("unknown upload_id %q", uploadID))
		}
		return nil, vaulterr.ErrInternal("list upload parts", err)
	}

	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for i, idx := range indices {
		if idx != i {
			return nil, vaulterr.ErrMalformed(fmt.Sprintf("upload %q is missing part %d", uploadID, i))
		}
	}

	paths := make([]string, len(indices))
	for i, idx := range indices {
		paths[i] = filepath.Join(dir, strconv.Itoa(idx))
	}
	return paths, nil
}

// Cleanup removes an upload's staging directory once its parts have
// been ingested, matching the original's temp-file removal in
// create_asset_from_chunks' finally block.
func (a *Area) Cleanup(uploadID string) error {
	if err := os.RemoveAll(a.uploadDir(uploadID)); err != nil {
		return vaulterr.ErrInternal("clean up upload staging dir", err)
	}
	return nil
}
