// Package api is CompactVault's HTTP surface: a single chi router in
// front of whichever vault is currently unlocked, translating the 17
// routes of spec §6 into calls against internal/catalog, internal/ingest
// and internal/readpipe.
//
// Grounded on the teacher repo's internal/api/server.go Server-struct
// shape (router, httpServer, logger held on one struct; NewServer wiring
// middleware then routes then the http.Server), adapted from a
// multi-tenant object-storage gateway down to a single-host,
// single-open-vault server the way api_unlock_vault/api_create_vault
// swap one "manager" slot in the Python original's app_state.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/smolfiddle/compactvault/internal/archive"
	"github.com/smolfiddle/compactvault/internal/catalog"
	"github.com/smolfiddle/compactvault/internal/chunkstore"
	"github.com/smolfiddle/compactvault/internal/config"
	"github.com/smolfiddle/compactvault/internal/crypto"
	"github.com/smolfiddle/compactvault/internal/ingest"
	"github.com/smolfiddle/compactvault/internal/readpipe"
	"github.com/smolfiddle/compactvault/internal/staging"
	"github.com/smolfiddle/compactvault/internal/vault"
	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

// vaultSession bundles every component that depends on one open vault
// file. The server holds at most one; create_vault/unlock_vault replace
// it atomically, matching the single "manager" slot api_unlock_vault
// swaps into app_state.
type vaultSession struct {
	path     string
	vault    *vault.Vault
	catalog  *catalog.Catalog
	chunks   *chunkstore.Store
	pipeline *ingest.Pipeline
	reader   *readpipe.Reader
	archiver *archive.Muxer
}

func (vs *vaultSession) close() {
	vs.pipeline.Close()
	_ = vs.vault.Close()
}

// Server is CompactVault's HTTP server: one chi router over whichever
// vault is currently open.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	router  chi.Router
	http    *http.Server
	staging *staging.Area

	mu      sync.RWMutex
	session *vaultSession
}

// NewServer builds the router, wires middleware and routes, and
// prepares (but does not start) the HTTP listener. stage is the
// process-wide upload staging area, recreated empty by main at startup
// per spec §6.
func NewServer(cfg *config.Config, logger *zap.Logger, stage *staging.Area) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  chi.NewRouter(),
		staging: stage,
	}

	s.router.Use(corsMiddleware)
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware(logger))

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  0, // uploads can run long; spec places no request-size cap
		WriteTimeout: 0, // streamed downloads can run long
	}
	return s
}

// currentSession returns the open vault session, or AuthFailed if none
// is open.
func (s *Server) currentSession() (*vaultSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, vaulterr.ErrAuth("no vault is open")
	}
	return s.session, nil
}

// openSession opens (or creates) the vault file at path and builds every
// component that depends on it. When create is true, password is set as
// the vault's new password; otherwise it must match the vault's existing
// password (or the vault must have none yet).
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, stage *staging.Area, path string, create bool, password string) (*vaultSession, error) {
	v, err := vault.Open(ctx, path)
	if err != nil {
		return nil, vaulterr.ErrInternal("open vault", err)
	}

	if create {
		if err := v.SetPassword(ctx, password); err != nil {
			_ = v.Close()
			return nil, vaulterr.ErrInternal("set vault password", err)
		}
	} else {
		ok, err := v.CheckPassword(ctx, password)
		if err != nil {
			_ = v.Close()
			return nil, vaulterr.ErrInternal("check vault password", err)
		}
		if !ok {
			_ = v.Close()
			return nil, vaulterr.ErrAuth("invalid password")
		}
	}

	minSize, maxSize := cfg.Ingest.MinChunkSize, cfg.Ingest.MaxChunkSize
	if minSize <= 0 {
		minSize = crypto.DefaultMinChunkSize
	}
	if maxSize <= 0 {
		maxSize = crypto.DefaultMaxChunkSize
	}
	chunker, err := crypto.NewSentinelChunker(minSize, maxSize, crypto.DefaultSentinel)
	if err != nil {
		_ = v.Close()
		return nil, vaulterr.ErrInternal("build chunker", err)
	}

	cat := catalog.New(v.DB)
	chunks := chunkstore.New(v.DB)
	pipeline := ingest.New(chunker, chunks, cat, stage, cfg.Ingest.Workers, cfg.Ingest.QueueFactor, logger)
	reader := readpipe.New(cat, chunks)
	archiver := archive.New(cat, reader)

	return &vaultSession{
		path:     path,
		vault:    v,
		catalog:  cat,
		chunks:   chunks,
		pipeline: pipeline,
		reader:   reader,
		archiver: archiver,
	}, nil
}

// swapSession installs a newly opened session, closing whichever one was
// previously active. The old session is closed outside the lock so a
// slow WAL checkpoint never blocks a concurrent request from seeing the
// new session.
func (s *Server) swapSession(next *vaultSession) {
	s.mu.Lock()
	old := s.session
	s.session = next
	s.mu.Unlock()

	if old != nil {
		old.close()
	}
}

// Start begins serving HTTP requests; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("compactvault listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// ListenAndServeWithRetry binds the configured port, incrementing it on
// EADDRINUSE until a free one is found (up to maxAttempts), matching
// spec §6's "HTTP port defaults to 8000 and auto-increments on
// EADDRINUSE until a free port binds." It blocks until the server stops.
func (s *Server) ListenAndServeWithRetry(maxAttempts int) error {
	port := s.cfg.Server.Port
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				s.logger.Warn("port in use, retrying with next port", zap.Int("port", port))
				lastErr = err
				port++
				continue
			}
			return err
		}

		s.http.Addr = addr
		s.logger.Info("compactvault listening", zap.String("addr", addr))
		return s.http.Serve(ln)
	}
	return fmt.Errorf("no free port found after %d attempts: %w", maxAttempts, lastErr)
}

// Shutdown gracefully stops the HTTP listener and closes the open vault,
// if any, flushing its write-ahead log.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session != nil {
		session.close()
	}
	return err
}

// GetRouter exposes the router, primarily for tests.
func (s *Server) GetRouter() chi.Router {
	return s.router
}
