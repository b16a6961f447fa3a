package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/smolfiddle/compactvault/internal/vaulterr"
)

type vaultRequest struct {
	DB       string `json:"db"`
	Password string `json:"password"`
}

func decodeVaultRequest(r *http.Request) (vaultRequest, error) {
	var req vaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return vaultRequest{}, vaulterr.ErrMalformed("invalid JSON body")
	}
	if req.DB == "" || req.Password == "" || !strings.HasSuffix(req.DB, ".vault") {
		return vaultRequest{}, vaulterr.ErrMalformed("db and password are required; db must end in .vault")
	}
	return req, nil
}

// handleCreateVault implements POST /api/create_vault, matching
// api_create_vault: refuses to overwrite an existing file, otherwise
// creates and auto-unlocks the new vault.
func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	req, err := decodeVaultRequest(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if _, statErr := os.Stat(req.DB); statErr == nil {
		writeError(w, r, s.logger, vaulterr.ErrMalformed("vault already exists"))
		return
	}

	session, err := openSession(r.Context(), s.cfg, s.logger, s.staging, req.DB, true, req.Password)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.swapSession(session)

	writeMessage(w, r, http.StatusCreated, "Created and unlocked "+req.DB)
}

// handleUnlockVault implements POST /api/unlock_vault, matching
// api_unlock_vault.
func (s *Server) handleUnlockVault(w http.ResponseWriter, r *http.Request) {
	req, err := decodeVaultRequest(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	session, err := openSession(r.Context(), s.cfg, s.logger, s.staging, req.DB, false, req.Password)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.swapSession(session)

	writeMessage(w, r, http.StatusOK, "Unlocked "+req.DB)
}

// handleVacuum implements POST /api/maintenance/vacuum.
func (s *Server) handleVacuum(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := session.vault.Vacuum(r.Context()); err != nil {
		writeError(w, r, s.logger, vaulterr.ErrInternal("vacuum", err))
		return
	}
	writeMessage(w, r, http.StatusOK, "VACUUM complete")
}
