package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestSentinelChunker_Deterministic(t *testing.T) {
	chunker, err := NewSentinelChunker(512, 4096, []byte{0x42, 0xFE})
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}

	data := make([]byte, 64*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	chunks1, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}
	chunks2, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}

	if len(chunks1) != len(chunks2) {
		t.Fatalf("chunk count differs across runs: %d vs %d", len(chunks1), len(chunks2))
	}
	for i := range chunks1 {
		if !bytes.Equal(chunks1[i].Data, chunks2[i].Data) {
			t.Errorf("chunk %d differs across runs", i)
		}
		if chunks1[i].Offset != chunks2[i].Offset {
			t.Errorf("chunk %d offset differs: %d vs %d", i, chunks1[i].Offset, chunks2[i].Offset)
		}
	}
}

func TestSentinelChunker_CrossAssetDedup(t *testing.T) {
	// A shared trailing region, preceded by a different prefix in each
	// asset, should still yield some identical chunk boundaries once the
	// sentinel search resynchronizes, the property cross-asset
	// deduplication depends on. The region is 1MiB so that it holds
	// ~16 occurrences of the 2-byte sentinel (one per 64KiB on average).
	chunker, err := NewSentinelChunker(512, 4096, []byte{0x42, 0xFE})
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}

	shared := make([]byte, 1024*1024)
	if _, err := rand.Read(shared); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	prefixA := make([]byte, 1000)
	prefixB := make([]byte, 7000)
	rand.Read(prefixA)
	rand.Read(prefixB)

	assetA, err := chunker.ChunkBytes(append(append([]byte{}, prefixA...), shared...))
	if err != nil {
		t.Fatalf("ChunkBytes A: %v", err)
	}
	assetB, err := chunker.ChunkBytes(append(append([]byte{}, prefixB...), shared...))
	if err != nil {
		t.Fatalf("ChunkBytes B: %v", err)
	}

	hashesA := make(map[string]bool, len(assetA))
	for _, c := range assetA {
		hashesA[HashBytes(c.Data)] = true
	}
	sharedMatches := 0
	for _, c := range assetB {
		if hashesA[HashBytes(c.Data)] {
			sharedMatches++
		}
	}
	if sharedMatches == 0 {
		t.Error("expected at least one identical chunk between assets sharing a data region")
	}
}

func TestSentinelChunker_BoundsRespected(t *testing.T) {
	minSize, maxSize := 512, 2048
	chunker, err := NewSentinelChunker(minSize, maxSize, []byte{0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}

	// Sentinel never occurs naturally in this buffer; every internal
	// chunk must hit the max-size clamp.
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 4096)

	chunks, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if c.Size != maxSize {
			t.Errorf("chunk %d size = %d, want max %d", i, c.Size, maxSize)
		}
	}
	last := chunks[len(chunks)-1]
	if last.Size > maxSize {
		t.Errorf("last chunk size %d exceeds max %d", last.Size, maxSize)
	}
	if !last.IsFinal {
		t.Error("last chunk should be marked final")
	}
}

func TestSentinelChunker_MinSizeClamp(t *testing.T) {
	// Sentinel placed right at the start of the buffer must not cut a
	// chunk shorter than minSize.
	sentinel := []byte{0x42, 0xFE}
	chunker, err := NewSentinelChunker(100, 10000, sentinel)
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}

	data := append(append([]byte{}, sentinel...), bytes.Repeat([]byte{0xAB}, 500)...)
	chunks, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}
	if chunks[0].Size < 100 {
		t.Errorf("first chunk size %d is below min_size 100", chunks[0].Size)
	}
}

func TestSentinelChunker_EmptyData(t *testing.T) {
	chunker, err := DefaultSentinelChunker()
	if err != nil {
		t.Fatalf("DefaultSentinelChunker: %v", err)
	}
	chunks, err := chunker.ChunkBytes(nil)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks for empty input, got %d", len(chunks))
	}
}

func TestSentinelChunker_InvalidParams(t *testing.T) {
	if _, err := NewSentinelChunker(0, 1024, []byte{0x42}); err == nil {
		t.Error("expected error for zero min size")
	}
	if _, err := NewSentinelChunker(4096, 1024, []byte{0x42}); err == nil {
		t.Error("expected error for min > max")
	}
	if _, err := NewSentinelChunker(128, 1024, nil); err == nil {
		t.Error("expected error for empty sentinel")
	}
}

func TestSentinelChunker_StreamingMatchesChunkBytes(t *testing.T) {
	chunker, err := NewSentinelChunker(512, 4096, []byte{0x42, 0xFE})
	if err != nil {
		t.Fatalf("NewSentinelChunker: %v", err)
	}

	data := make([]byte, 50*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	synchronous, err := chunker.ChunkBytes(data)
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}

	resultCh, err := chunker.Chunk(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	var streamed []Chunk
	for r := range resultCh {
		if r.Err != nil {
			t.Fatalf("streaming chunk error: %v", r.Err)
		}
		streamed = append(streamed, r.Chunk)
	}

	if len(synchronous) != len(streamed) {
		t.Fatalf("chunk count differs: sync=%d stream=%d", len(synchronous), len(streamed))
	}
	for i := range synchronous {
		if !bytes.Equal(synchronous[i].Data, streamed[i].Data) {
			t.Errorf("chunk %d content differs between sync and streaming chunkers", i)
		}
	}
}
