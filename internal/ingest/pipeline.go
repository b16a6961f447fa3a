// Package ingest runs the fixed-size worker pool that turns a completed
// upload's staged parts into a stored asset: concatenate, chunk, hash,
// compress, commit chunks, build the hash-chain manifest, then commit
// the asset row.
//
// Grounded on _process_asset_creation_queue/create_asset_from_chunks in
// the Python original (a queue.Queue drained by os.cpu_count() worker
// threads) and on the bounded-channel worker-pool shape of
// internal/queue's Queue/QueueManager from the teacher repo, simplified
// from that package's SQS-style priority/visibility-timeout machinery
// down to the original's plain FIFO-with-N-workers model.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/smolfiddle/compactvault/internal/catalog"
	"github.com/smolfiddle/compactvault/internal/chunkstore"
	"github.com/smolfiddle/compactvault/internal/crypto"
	"github.com/smolfiddle/compactvault/internal/manifest"
	"github.com/smolfiddle/compactvault/internal/staging"
)

// Task describes one completed upload ready for chunking and commit.
type Task struct {
	UploadID     string
	CollectionID int64
	PartPaths    []string
	Filename     string

	// Done, if non-nil, is closed (after Result/Err are set) once the
	// task finishes, letting callers that want to wait for their own
	// upload do so without blocking the whole pool.
	Done   chan struct{}
	Result int64
	Err    error
}

var assetTypeByExtension = map[string]string{
	"txt": "text", "html": "text", "css": "text", "js": "text", "md": "text",
	"json": "text", "csv": "text", "xml": "text", "py": "text", "go": "text",
	"png": "image", "jpg": "image", "jpeg": "image", "gif": "image", "svg": "image", "webp": "image",
	"mp3": "audio", "wav": "audio", "ogg": "audio", "m4a": "audio", "flac": "audio",
	"mp4": "video", "mov": "video", "webm": "video", "mkv": "video", "avi": "video", "flv": "video",
	"gltf": "3d", "glb": "3d",
	"epub": "binary", "pdf": "binary", "zip": "binary", "rar": "binary", "7z": "binary",
}

func classify(filename string) (assetType, extension string) {
	extension = "binary"
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			extension = toLower(filename[i+1:])
			break
		}
	}
	assetType, ok := assetTypeByExtension[extension]
	if !ok {
		assetType = "binary"
	}
	return assetType, extension
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Pipeline owns the bounded task channel and the fixed pool of workers
// draining it.
type Pipeline struct {
	chunker *crypto.SentinelChunker
	chunks  *chunkstore.Store
	catalog *catalog.Catalog
	staging *staging.Area
	logger  *zap.Logger

	tasks chan Task
	wg    sync.WaitGroup
}

// New starts a pipeline with the given number of worker goroutines
// (runtime.NumCPU() when workers <= 0, and never fewer than 4), each
// consuming from a channel buffered to workers*queueFactor — backpressure
// once the buffer fills, rather than an unbounded queue.
func New(chunker *crypto.SentinelChunker, chunks *chunkstore.Store, cat *catalog.Catalog, stage *staging.Area, workers, queueFactor int, logger *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 4 {
		workers = 4
	}
	if queueFactor <= 0 {
		queueFactor = 2
	}

	p := &Pipeline{
		chunker: chunker,
		chunks:  chunks,
		catalog: cat,
		staging: stage,
		logger:  logger,
		tasks:   make(chan Task, workers*queueFactor),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task, blocking if the channel is full (the
// backpressure signal an overloaded vault gives its HTTP layer).
func (p *Pipeline) Submit(t Task) {
	p.tasks <- t
}

// Close stops accepting new tasks and waits for in-flight ones to
// finish.
func (p *Pipeline) Close() {
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		assetID, err := p.process(context.Background(), task)
		if err != nil {
			p.logger.Error("asset creation failed",
				zap.Int("worker", id), zap.String("filename", task.Filename), zap.Error(err))
		} else {
			p.logger.Info("asset created",
				zap.Int("worker", id), zap.String("filename", task.Filename), zap.Int64("asset_id", assetID))
			if task.UploadID != "" {
				if cerr := p.staging.Cleanup(task.UploadID); cerr != nil {
					p.logger.Warn("staging cleanup failed", zap.String("upload_id", task.UploadID), zap.Error(cerr))
				}
			}
		}
		task.Result, task.Err = assetID, err
		if task.Done != nil {
			close(task.Done)
		}
	}
}

// process concatenates a task's staged parts, runs them through the
// chunker, commits each chunk before any manifest references it (so a
// crash mid-ingest never leaves a manifest pointing at a missing
// chunk), then commits the asset row in one transaction.
func (p *Pipeline) process(ctx context.Context, task Task) (int64, error) {
	concatenated, cleanup, err := p.concatenate(task.PartPaths)
	if err != nil {
		return 0, fmt.Errorf("concatenate parts: %w", err)
	}
	defer cleanup()

	f, err := os.Open(concatenated)
	if err != nil {
		return 0, fmt.Errorf("open concatenated upload: %w", err)
	}
	defer f.Close()

	assetType, extension := classify(task.Filename)
	man := manifest.New(task.Filename)

	resultCh, err := p.chunker.Chunk(f)
	if err != nil {
		return 0, fmt.Errorf("start chunking: %w", err)
	}

	var previousBlockHash *string
	for result := range resultCh {
		if result.Err != nil {
			return 0, fmt.Errorf("chunk %s: %w", task.Filename, result.Err)
		}
		chunkHash, err := p.chunks.Put(ctx, result.Chunk.Data)
		if err != nil {
			return 0, fmt.Errorf("store chunk: %w", err)
		}
		hash, err := man.Append(chunkHash, int64(result.Chunk.Size), previousBlockHash)
		if err != nil {
			return 0, fmt.Errorf("extend manifest: %w", err)
		}
		previousBlockHash = &hash
	}

	manifestJSON, err := man.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal manifest: %w", err)
	}

	assetID, err := p.catalog.CreateAsset(ctx, task.CollectionID, assetType, extension, manifestJSON, task.Filename)
	if err != nil {
		return 0, fmt.Errorf("commit asset: %w", err)
	}
	return assetID, nil
}

// concatenate streams every part in order into one temp file, returning
// its path and a cleanup func that removes the temp file. The upload's
// staging directory is left in place; the worker removes it through
// staging.Area.Cleanup once the asset has been committed.
func (p *Pipeline) concatenate(partPaths []string) (path string, cleanup func(), err error) {
	if len(partPaths) == 0 {
		return "", func() {}, fmt.Errorf("no parts to ingest")
	}

	dir := parentDir(partPaths[0])
	out, err := os.CreateTemp(dir, "concat-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	for _, p := range partPaths {
		in, err := os.Open(p)
		if err != nil {
			out.Close()
			os.Remove(out.Name())
			return "", nil, fmt.Errorf("open part %s: %w", p, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(out.Name())
			return "", nil, fmt.Errorf("copy part %s: %w", p, copyErr)
		}
	}
	if err := out.Close(); err != nil {
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	tempPath := out.Name()
	return tempPath, func() { os.Remove(tempPath) }, nil
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
