package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/smolfiddle/compactvault/internal/ingest"
	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

// handleUploadChunk implements POST /api/upload/chunk?upload_id&chunk_index,
// matching api_upload_chunk: stages one part file, independent of which
// vault (if any) is currently open.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uploadID := q.Get("upload_id")
	chunkIndex, err := strconv.Atoi(q.Get("chunk_index"))
	if uploadID == "" || err != nil || chunkIndex < 0 {
		writeError(w, r, s.logger, vaulterr.ErrMalformed("missing upload_id or chunk_index"))
		return
	}

	if err := s.staging.WritePart(uploadID, chunkIndex, r.Body); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeMessage(w, r, http.StatusOK, "Chunk received")
}

type completeUploadRequest struct {
	UploadID     string `json:"upload_id"`
	Filename     string `json:"filename"`
	CollectionID int64  `json:"collection_id"`
	PathPrefix   string `json:"path_prefix"`
}

// handleUploadComplete implements POST /api/upload/complete, matching
// api_complete_upload: resolves the destination collection, validates
// the staged parts, and hands the task to the ingestion pool without
// waiting for it to finish.
func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	var req completeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UploadID == "" || req.Filename == "" || req.CollectionID == 0 {
		writeError(w, r, s.logger, vaulterr.ErrMalformed("upload_id, filename and collection_id are required"))
		return
	}

	finalCollectionID, err := session.catalog.GetOrCreateCollectionFromPath(r.Context(), req.CollectionID, req.PathPrefix)
	if err != nil {
		writeError(w, r, s.logger, toVaultErr(err, "collection", req.CollectionID))
		return
	}

	parts, err := s.staging.Parts(req.UploadID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	session.pipeline.Submit(ingest.Task{
		UploadID:     req.UploadID,
		CollectionID: finalCollectionID,
		PartPaths:    parts,
		Filename:     req.Filename,
	})

	writeMessage(w, r, http.StatusOK, "Upload accepted, processing in background")
}
