package readpipe

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/smolfiddle/compactvault/internal/catalog"
	"github.com/smolfiddle/compactvault/internal/chunkstore"
	"github.com/smolfiddle/compactvault/internal/crypto"
	"github.com/smolfiddle/compactvault/internal/manifest"
	"github.com/smolfiddle/compactvault/internal/vault"
)

// storeAsset chunks data with the default sentinel chunker, commits every
// chunk, builds the hash-chain manifest and inserts the asset row,
// mirroring what internal/ingest's pipeline does for a completed upload.
func storeAsset(t *testing.T, cat *catalog.Catalog, chunks *chunkstore.Store, colID int64, filename string, data []byte) int64 {
	t.Helper()
	ctx := context.Background()

	chunker, err := crypto.NewSentinelChunker(256, 4096, []byte{0x42, 0xFE})
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}
	pieces, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}

	man := manifest.New(filename)
	var previous *string
	for _, piece := range pieces {
		hash, err := chunks.Put(ctx, piece.Data)
		if err != nil {
			t.Fatalf("chunks.Put: %v", err)
		}
		blockHash, err := man.Append(hash, int64(piece.Size), previous)
		if err != nil {
			t.Fatalf("manifest.Append: %v", err)
		}
		previous = &blockHash
	}

	manifestJSON, err := man.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	assetID, err := cat.CreateAsset(ctx, colID, "text", "txt", manifestJSON, filename)
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return assetID
}

func newTestReader(t *testing.T) (*Reader, *catalog.Catalog, *chunkstore.Store, int64) {
	t.Helper()
	v, err := vault.Open(context.Background(), filepath.Join(t.TempDir(), "test.vault"))
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })

	cat := catalog.New(v.DB)
	chunks := chunkstore.New(v.DB)

	projectID, err := cat.CreateProject(context.Background(), "P", "generic", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	colID, err := cat.CreateCollection(context.Background(), projectID, "root", "collection", nil)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	return New(cat, chunks), cat, chunks, colID
}

func TestReader_StreamAll_RoundTrip(t *testing.T) {
	reader, cat, chunks, colID := newTestReader(t)

	data := make([]byte, 200000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	assetID := storeAsset(t, cat, chunks, colID, "big.bin", data)

	_, man, err := reader.Info(context.Background(), assetID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	var buf bytes.Buffer
	if err := reader.StreamAll(context.Background(), man, &buf); err != nil {
		t.Fatalf("StreamAll: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("StreamAll did not reproduce the original bytes")
	}
}

func TestReader_StreamRange_ArbitraryWindow(t *testing.T) {
	reader, cat, chunks, colID := newTestReader(t)

	data := make([]byte, 200000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	assetID := storeAsset(t, cat, chunks, colID, "ranged.bin", data)

	_, man, err := reader.Info(context.Background(), assetID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	start, end := int64(50000), int64(150000)
	var buf bytes.Buffer
	if err := reader.StreamRange(context.Background(), man, start, end, &buf); err != nil {
		t.Fatalf("StreamRange: %v", err)
	}

	want := data[start : end+1]
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("StreamRange returned %d bytes, want %d matching window", buf.Len(), len(want))
	}
}

func TestReader_StreamRange_RejectsOutOfBounds(t *testing.T) {
	reader, cat, chunks, colID := newTestReader(t)
	data := []byte("short file")
	assetID := storeAsset(t, cat, chunks, colID, "short.txt", data)

	_, man, err := reader.Info(context.Background(), assetID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	var buf bytes.Buffer
	err = reader.StreamRange(context.Background(), man, 0, int64(len(data)+100), &buf)
	if err == nil {
		t.Error("expected StreamRange to reject a range exceeding the asset size")
	}
}

func TestReader_Info_UnknownAsset(t *testing.T) {
	reader, _, _, _ := newTestReader(t)
	_, _, err := reader.Info(context.Background(), 99999)
	if err == nil {
		t.Error("expected an error for an unknown asset id")
	}
}
