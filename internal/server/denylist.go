package server

import (
	"encoding/json"
	"net/http"

	"github.com/aceteam-ai/conduit/internal/ids"
	"github.com/aceteam-ai/conduit/internal/models"
)

// handleListDenylist implements GET /admin/denylist.
func (s *Server) handleListDenylist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Denylist.ListDenylistEntries(r.Context())
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// denylistRequest is the create payload for POST /admin/denylist.
type denylistRequest struct {
	Type      string `json:"type"`
	DiscordID string `json:"discordId"`
	Scope     string `json:"scope"`
	ScopeID   string `json:"scopeId"`
	Reason    string `json:"reason"`
	AddedBy   string `json:"addedBy"`
}

// handleCreateDenylist implements POST /admin/denylist. The invariants
// from spec §3 (type=GUILD implies scope=BOT; scope=BOT iff scopeId="*")
// are enforced by models.DenylistEntry.Validate, which the store calls
// before writing.
func (s *Server) handleCreateDenylist(w http.ResponseWriter, r *http.Request) {
	var req denylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errValidation("malformed request body: "+err.Error()))
		return
	}
	if req.DiscordID == "" {
		writeError(w, errValidation("discordId is required"))
		return
	}

	entry := models.DenylistEntry{
		ID:        ids.NewUUID(),
		Type:      models.DenylistType(req.Type),
		DiscordID: req.DiscordID,
		Scope:     models.DenylistScope(req.Scope),
		ScopeID:   req.ScopeID,
		Reason:    req.Reason,
		AddedBy:   req.AddedBy,
	}
	if err := entry.Validate(); err != nil {
		writeError(w, errValidation(err.Error()))
		return
	}

	if err := s.deps.Denylist.CreateDenylistEntry(r.Context(), entry); err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleDeleteDenylist implements DELETE /admin/denylist/:id.
func (s *Server) handleDeleteDenylist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Denylist.DeleteDenylistEntry(r.Context(), id); err != nil {
		writeError(w, errUnknown(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
