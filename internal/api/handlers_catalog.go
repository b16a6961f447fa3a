package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smolfiddle/compactvault/internal/catalog"
	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return 0, vaulterr.ErrMalformed("invalid " + param)
	}
	return id, nil
}

// handleListProjects implements GET /api/projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	projects, err := session.catalog.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("list projects", err))
		return
	}
	writeJSON(w, r, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// handleCreateProject implements POST /api/projects.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, r, s.logger, vaulterr.ErrMalformed("name is required"))
		return
	}
	if req.Type == "" {
		req.Type = "generic"
	}

	id, err := session.catalog.CreateProject(r.Context(), req.Name, req.Type, req.Description)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("create project", err))
		return
	}

	project, err := session.catalog.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("load created project", err))
		return
	}
	writeJSON(w, r, http.StatusCreated, project)
}

// handleGetProject implements GET /api/projects/{id}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	project, err := session.catalog.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, toVaultErr(err, "project", id))
		return
	}
	writeJSON(w, r, http.StatusOK, project)
}

// handleListCollectionsForProject implements
// GET /api/projects/{id}/collections.
func (s *Server) handleListCollectionsForProject(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	collections, err := session.catalog.ListCollectionsForProject(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("list collections", err))
		return
	}
	writeJSON(w, r, http.StatusOK, collections)
}

type createCollectionRequest struct {
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ParentID  *int64 `json:"parent_id"`
}

// handleCreateCollection implements POST /api/collections.
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == 0 || req.Name == "" {
		writeError(w, r, s.logger, vaulterr.ErrMalformed("project_id and name are required"))
		return
	}
	if req.Type == "" {
		req.Type = "collection"
	}

	id, err := session.catalog.CreateCollection(r.Context(), req.ProjectID, req.Name, req.Type, req.ParentID)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("create collection", err))
		return
	}

	col, err := session.catalog.GetCollection(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("load created collection", err))
		return
	}
	writeJSON(w, r, http.StatusCreated, col)
}

// handleGetCollection implements GET /api/collections/{id}.
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	col, err := session.catalog.GetCollection(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, toVaultErr(err, "collection", id))
		return
	}
	writeJSON(w, r, http.StatusOK, col)
}

type assetListResponse struct {
	Assets     []catalog.AssetListItem `json:"assets"`
	Total      int                     `json:"total"`
	AllFormats []string                `json:"all_formats"`
}

// handleListAssets implements GET /api/collections/{id}/assets.
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	q := r.URL.Query()
	opts := catalog.ListAssetsOptions{
		CollectionID: id,
		Offset:       atoiDefault(q.Get("offset"), 0),
		Limit:        atoiDefault(q.Get("limit"), 50),
		Tag:          q.Get("tag"),
		Query:        q.Get("query"),
		FilterByType: q.Get("filter_by_type"),
		SortBy:       q.Get("sort_by"),
		SortOrder:    q.Get("sort_order"),
	}

	items, total, formats, err := session.catalog.ListAssets(r.Context(), opts)
	if err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("list assets", err))
		return
	}
	if items == nil {
		items = []catalog.AssetListItem{}
	}
	if formats == nil {
		formats = []string{}
	}
	writeJSON(w, r, http.StatusOK, assetListResponse{Assets: items, Total: total, AllFormats: formats})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// toVaultErr translates catalog.ErrNotFound into the typed vaulterr
// NotFoundError a writeError call needs; other errors pass through as
// Internal.
func toVaultErr(err error, kind string, id int64) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return vaulterr.ErrNotFound(kind, id)
	}
	return vaulterr.ErrInternal("load "+kind, err)
}
