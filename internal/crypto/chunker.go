// Package crypto provides the content-defined chunking and compression
// primitives the chunk store builds on.
package crypto

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultMinChunkSize, DefaultMaxChunkSize and DefaultSentinel are the
// parameters from spec §4.1: expected chunk size is ~64KiB (1/65536
// sentinel probability) with hard min/max clamps.
var (
	DefaultMinChunkSize = 4096
	DefaultMaxChunkSize = 1048576
	DefaultSentinel     = []byte{0x42, 0xFE}
)

const readBufferSize = 4 * 1024 * 1024 // 4MiB reads, per spec §4.1 step 1

// Chunk is one content-defined segment of a byte stream.
type Chunk struct {
	Data    []byte
	Size    int
	Offset  int64
	Index   int
	IsFinal bool
}

// ChunkResult wraps a chunk or an error from async chunking.
type ChunkResult struct {
	Chunk Chunk
	Err   error
}

// Chunker splits a byte stream into content-defined chunks.
type Chunker interface {
	// Chunk splits a reader into content-defined chunks, yielded
	// asynchronously on the returned channel as they are produced.
	Chunk(r io.Reader) (<-chan ChunkResult, error)

	// ChunkBytes splits a byte slice into chunks synchronously.
	ChunkBytes(data []byte) ([]Chunk, error)
}

// SentinelChunker implements the sentinel-search CDC algorithm from spec
// §4.1: search a growable buffer for a 2-byte sentinel starting at
// min_size; cut there if found, at max_size if not, or at EOF.
//
// Identical inputs always produce identical chunk boundaries — the
// property cross-asset deduplication depends on.
type SentinelChunker struct {
	minSize  int
	maxSize  int
	sentinel []byte
}

// NewSentinelChunker creates a chunker with explicit parameters.
func NewSentinelChunker(minSize, maxSize int, sentinel []byte) (*SentinelChunker, error) {
	if minSize <= 0 || maxSize <= 0 {
		return nil, fmt.Errorf("chunk sizes must be positive")
	}
	if minSize > maxSize {
		return nil, fmt.Errorf("min_size must be <= max_size")
	}
	if len(sentinel) == 0 {
		return nil, fmt.Errorf("sentinel must be non-empty")
	}
	return &SentinelChunker{minSize: minSize, maxSize: maxSize, sentinel: sentinel}, nil
}

// DefaultSentinelChunker creates a chunker using the spec's default
// parameters (min=4096, max=1048576, sentinel=0x42 0xFE).
func DefaultSentinelChunker() (*SentinelChunker, error) {
	return NewSentinelChunker(DefaultMinChunkSize, DefaultMaxChunkSize, DefaultSentinel)
}

// Chunk splits a reader into content-defined chunks, streaming results on
// a buffered channel as the input is consumed.
func (c *SentinelChunker) Chunk(r io.Reader) (<-chan ChunkResult, error) {
	ch := make(chan ChunkResult, 10)

	go func() {
		defer close(ch)

		var buffer []byte
		readBuf := make([]byte, readBufferSize)
		var offset int64
		index := 0
		eof := false

		emit := func(n int) {
			data := make([]byte, n)
			copy(data, buffer[:n])
			ch <- ChunkResult{Chunk: Chunk{
				Data:   data,
				Size:   n,
				Offset: offset,
				Index:  index,
			}}
			offset += int64(n)
			index++
			buffer = buffer[n:]
		}

		for {
			if !eof && len(buffer) < c.maxSize {
				n, err := r.Read(readBuf)
				if n > 0 {
					buffer = append(buffer, readBuf[:n]...)
				}
				if err != nil {
					if err != io.EOF {
						ch <- ChunkResult{Err: fmt.Errorf("chunking failed at offset %d: %w", offset, err)}
						return
					}
					eof = true
				}
			}

			if len(buffer) == 0 {
				if eof {
					return
				}
				continue
			}

			searchFrom := c.minSize
			if searchFrom > len(buffer) {
				searchFrom = len(buffer)
			}
			searchEnd := len(buffer)
			if searchEnd > c.maxSize {
				searchEnd = c.maxSize
			}
			cut := bytes.Index(buffer[searchFrom:searchEnd], c.sentinel)

			if cut >= 0 {
				emit(searchFrom + cut + len(c.sentinel))
				continue
			}

			if len(buffer) >= c.maxSize {
				emit(c.maxSize)
				continue
			}

			if eof {
				emit(len(buffer))
				return
			}
			// Not enough data yet to decide; read more.
		}
	}()

	return ch, nil
}

// ChunkBytes splits an in-memory byte slice into chunks synchronously,
// applying the same boundary rule as Chunk.
func (c *SentinelChunker) ChunkBytes(data []byte) ([]Chunk, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	var offset int64
	index := 0
	remaining := data

	for len(remaining) > 0 {
		searchFrom := c.minSize
		if searchFrom > len(remaining) {
			searchFrom = len(remaining)
		}

		searchEnd := len(remaining)
		if searchEnd > c.maxSize {
			searchEnd = c.maxSize
		}

		var cutLen int
		if pos := bytes.Index(remaining[searchFrom:searchEnd], c.sentinel); pos >= 0 {
			cutLen = searchFrom + pos + len(c.sentinel)
		} else if len(remaining) >= c.maxSize {
			cutLen = c.maxSize
		} else {
			cutLen = len(remaining)
		}

		chunkData := make([]byte, cutLen)
		copy(chunkData, remaining[:cutLen])

		chunks = append(chunks, Chunk{
			Data:   chunkData,
			Size:   cutLen,
			Offset: offset,
			Index:  index,
		})

		offset += int64(cutLen)
		index++
		remaining = remaining[cutLen:]
	}

	if len(chunks) > 0 {
		chunks[len(chunks)-1].IsFinal = true
	}

	return chunks, nil
}
