package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

// writeJSON encodes obj as the response body, gzip-compressing it when
// the client's Accept-Encoding permits and the encoded body is large
// enough to be worth it, matching _send_compressed in the Python
// original. CORS headers are applied by corsMiddleware, not here.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, obj interface{}) {
	data, err := json.Marshal(obj)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip") && len(data) > 200 {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err == nil && gz.Close() == nil {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Vary", "Accept-Encoding")
			data = buf.Bytes()
		}
	}

	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// messageBody is the {"message": ...} shape every CompactVault JSON
// response uses, success or failure alike, matching _send_json in the
// Python original.
type messageBody struct {
	Message string `json:"message"`
}

// writeMessage writes a plain {"message": ...} response, the common case
// for handlers that only confirm an action succeeded.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, messageBody{Message: message})
}

// writeError translates err into its spec §7 status code and a JSON
// {message} body, logging 500s since those indicate a bug rather than a
// client mistake.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := vaulterr.Code(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeMessage(w, r, status, err.Error())
}
