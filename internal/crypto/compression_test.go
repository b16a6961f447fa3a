package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestZstdCompressor_RoundTrip(t *testing.T) {
	c := NewZstdCompressor()

	original := []byte("Hello, CompactVault. This chunk is compressible text data.")
	compressed, err := c.Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(original, decompressed) {
		t.Error("decompressed data doesn't match original")
	}
}

func TestZstdCompressor_EmptyData(t *testing.T) {
	c := NewZstdCompressor()

	compressed, err := c.Compress(nil)
	if err != nil || len(compressed) != 0 {
		t.Errorf("expected empty result for nil input, got %v (err %v)", compressed, err)
	}
}

func TestZstdCompressor_RandomDataRoundTrips(t *testing.T) {
	c := NewZstdCompressor()

	original := make([]byte, 128*1024)
	if _, err := rand.Read(original); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	compressed, err := c.Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(original, decompressed) {
		t.Error("decompressed random data doesn't match original")
	}
}

func TestZstdCompressor_StreamRoundTrip(t *testing.T) {
	c := NewZstdCompressor()

	original := bytes.Repeat([]byte("streamed chunk data "), 10000)

	var compressed bytes.Buffer
	if _, err := c.CompressStream(&compressed, bytes.NewReader(original)); err != nil {
		t.Fatalf("CompressStream: %v", err)
	}

	var decompressed bytes.Buffer
	if _, err := c.DecompressStream(&decompressed, &compressed); err != nil {
		t.Fatalf("DecompressStream: %v", err)
	}
	if !bytes.Equal(original, decompressed.Bytes()) {
		t.Error("streamed round trip doesn't match original")
	}
}
