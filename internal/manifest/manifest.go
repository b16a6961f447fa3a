// Package manifest builds and validates the hash-chain manifest an asset's
// record stores instead of its bytes: an ordered list of chunk references,
// each block committing to the hash of the block before it.
//
// This mirrors CompactVaultManager.create_asset_from_chunks in the Python
// original: chunks are hashed and stored independently in the chunk store,
// then woven into a tamper-evident chain recorded alongside the asset.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/smolfiddle/compactvault/internal/crypto"
)

// Block is one link in the chain: a reference to a content-addressed
// chunk plus the hash of the previous block (nil for the first block).
type Block struct {
	ChunkHash    string  `json:"chunk_hash"`
	Size         int64   `json:"size"`
	PreviousHash *string `json:"previous_hash"`
}

// blockHash computes the BLAKE2b-512 digest of a block's canonical JSON
// form (map keys sorted alphabetically), the value chained into the next
// block's previous_hash.
func blockHash(b Block) (string, error) {
	canonical := map[string]interface{}{
		"chunk_hash":    b.ChunkHash,
		"size":          b.Size,
		"previous_hash": nilableString(b.PreviousHash),
	}
	buf, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("canonicalize block: %w", err)
	}
	return crypto.HashBytes(buf), nil
}

func nilableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Manifest is the JSON document stored in assets.manifest: the full
// chunk chain for one asset plus bookkeeping fields used at read time.
type Manifest struct {
	Chain     []Block `json:"chain"`
	TotalSize int64   `json:"total_size"`
	Filename  string  `json:"filename"`
}

// New starts an empty manifest for filename.
func New(filename string) *Manifest {
	return &Manifest{Chain: []Block{}, Filename: filename}
}

// Append adds a chunk reference to the end of the chain, linking it to
// the previous block's hash, and returns that new block's own hash so
// the caller can thread it into the next Append call.
func (m *Manifest) Append(chunkHash string, size int64, previousBlockHash *string) (string, error) {
	block := Block{ChunkHash: chunkHash, Size: size, PreviousHash: previousBlockHash}
	hash, err := blockHash(block)
	if err != nil {
		return "", err
	}
	m.Chain = append(m.Chain, block)
	m.TotalSize += size
	return hash, nil
}

// Marshal serializes the manifest for storage in assets.manifest.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses a manifest previously produced by Marshal.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Validate recomputes the chain's block hashes and confirms each block's
// previous_hash matches the hash actually produced by the block before
// it — the tamper-evidence check a maintenance pass runs.
func (m *Manifest) Validate() error {
	var previous *string
	for i, block := range m.Chain {
		if !equalHash(block.PreviousHash, previous) {
			return fmt.Errorf("chain broken at block %d: previous_hash does not match preceding block", i)
		}
		hash, err := blockHash(block)
		if err != nil {
			return fmt.Errorf("chain broken at block %d: %w", i, err)
		}
		previous = &hash
	}
	return nil
}

func equalHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ChunkHashes returns the ordered list of chunk hashes the chain
// references, the sequence the read pipeline reassembles in.
func (m *Manifest) ChunkHashes() []string {
	hashes := make([]string, len(m.Chain))
	for i, b := range m.Chain {
		hashes[i] = b.ChunkHash
	}
	return hashes
}
