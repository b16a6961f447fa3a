package api

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/smolfiddle/compactvault/internal/readpipe"
	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

var rangeHeaderPattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// parseRange parses a Range header of the form "bytes=start-end" (end
// optional, meaning "to EOF"), matching the regex handle_asset_download
// uses in the Python original.
func parseRange(header string, totalSize int64) (start, end int64, err error) {
	m := rangeHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, vaulterr.ErrMalformed("invalid Range header")
	}

	start, _ = strconv.ParseInt(m[1], 10, 64)
	if m[2] == "" {
		end = totalSize - 1
	} else {
		end, _ = strconv.ParseInt(m[2], 10, 64)
	}

	if start >= totalSize || end >= totalSize || start > end {
		return 0, 0, vaulterr.ErrRange(start, end, totalSize)
	}
	return start, end, nil
}

// handleGetAsset implements GET /api/assets/{id}, serving either the
// whole asset (200) or a byte range (206) depending on the Range header,
// matching handle_asset_download.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
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

	info, man, err := session.reader.Info(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Type", info.Mime)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
		if err := session.reader.StreamAll(r.Context(), man, w); err != nil {
			s.logger.Error("stream asset failed", zap.Error(err))
		}
		return
	}

	start, end, err := parseRange(rangeHeader, info.Size)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", info.Mime)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	if err := session.reader.StreamRange(r.Context(), man, start, end, w); err != nil {
		s.logger.Error("stream asset range failed", zap.Error(err))
	}
}

// handleGetAssetPreview implements GET /api/assets/{id}/preview, matching
// get_asset_preview: non-text assets get a metadata-only preview, text
// assets (and json/xml formats within it) get pretty-printed content.
func (s *Server) handleGetAssetPreview(w http.ResponseWriter, r *http.Request) {
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

	info, man, err := session.reader.Info(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if info.Type != "text" {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"id":            info.ID,
			"type":          info.Type,
			"format":        info.Format,
			"filename":      info.Filename,
			"size_original": info.Size,
		})
		return
	}

	raw, err := session.reader.ReadAll(r.Context(), man)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, readpipe.BuildPreview(info, raw))
}
