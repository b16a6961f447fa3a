package crypto

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compressor is a lossless compressor used uniformly across every chunk
// (spec §4.2: "a lossless compressor at its maximum quality", no
// per-asset or per-bucket tuning).
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// ZstdCompressor implements Compressor at the zstd best-compression
// level. It lazily builds its encoder/decoder on first use and reuses
// them across calls.
type ZstdCompressor struct {
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	encoderOnce sync.Once
	decoderOnce sync.Once
	encoderErr  error
	decoderErr  error
}

// NewZstdCompressor creates the vault-wide compressor.
func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (c *ZstdCompressor) getEncoder() (*zstd.Encoder, error) {
	c.encoderOnce.Do(func() {
		c.encoder, c.encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return c.encoder, c.encoderErr
}

func (c *ZstdCompressor) getDecoder() (*zstd.Decoder, error) {
	c.decoderOnce.Do(func() {
		c.decoder, c.decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(256*1024*1024),
		)
	})
	return c.decoder, c.decoderErr
}

// Compress returns the zstd-compressed form of data. An empty input
// round-trips as an empty output.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	encoder, err := c.getEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoder: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// Decompress reverses Compress.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	decoder, err := c.getDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get decoder: %w", err)
	}
	return decoder.DecodeAll(data, nil)
}

// CompressStream compresses src to dst, for use when a chunk is staged
// on disk rather than held in memory.
func (c *ZstdCompressor) CompressStream(dst io.Writer, src io.Reader) (int64, error) {
	encoder, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return 0, fmt.Errorf("failed to create stream encoder: %w", err)
	}
	defer func() { _ = encoder.Close() }()

	written, err := io.Copy(encoder, src)
	if err != nil {
		return written, fmt.Errorf("compression failed: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return written, fmt.Errorf("failed to close encoder: %w", err)
	}
	return written, nil
}

// DecompressStream reverses CompressStream.
func (c *ZstdCompressor) DecompressStream(dst io.Writer, src io.Reader) (int64, error) {
	decoder, err := zstd.NewReader(src, zstd.WithDecoderMaxMemory(256*1024*1024))
	if err != nil {
		return 0, fmt.Errorf("failed to create stream decoder: %w", err)
	}
	defer decoder.Close()

	written, err := io.Copy(dst, decoder)
	if err != nil {
		return written, fmt.Errorf("decompression failed: %w", err)
	}
	return written, nil
}
