package api

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes registers every endpoint from spec §6. create_vault,
// unlock_vault and upload/chunk are the only routes reachable with no
// vault open; every other route sits behind requireSession.
func (s *Server) setupRoutes() {
	s.router.Post("/api/create_vault", s.handleCreateVault)
	s.router.Post("/api/unlock_vault", s.handleUnlockVault)

	// Chunk staging writes to a process-wide directory independent of
	// which vault is open, matching api_upload_chunk in the Python
	// original, which never calls require_manager.
	s.router.Post("/api/upload/chunk", s.handleUploadChunk)

	s.router.Group(func(r chi.Router) {
		r.Use(requireSession(s, s.logger))

		r.Get("/api/projects", s.handleListProjects)
		r.Post("/api/projects", s.handleCreateProject)
		r.Get("/api/projects/{id}", s.handleGetProject)
		r.Get("/api/projects/{id}/collections", s.handleListCollectionsForProject)
		r.Get("/api/projects/{id}/download", s.handleDownloadProject)

		r.Post("/api/collections", s.handleCreateCollection)
		r.Get("/api/collections/{id}", s.handleGetCollection)
		r.Get("/api/collections/{id}/assets", s.handleListAssets)
		r.Post("/api/collections/{id}/assets/download", s.handleDownloadSelection)
		r.Get("/api/collections/{id}/download", s.handleDownloadCollection)

		r.Post("/api/upload/complete", s.handleUploadComplete)

		r.Get("/api/assets/{id}", s.handleGetAsset)
		r.Get("/api/assets/{id}/preview", s.handleGetAssetPreview)

		r.Post("/api/maintenance/vacuum", s.handleVacuum)
	})
}
