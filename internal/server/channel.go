package server

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// maxChannelListLimit enforces spec §6's "bounded to 500".
const maxChannelListLimit = 500

// handleListChannels implements GET /user/channel/list?guildId=….
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Query().Get("guildId")
	if guildID == "" {
		writeError(w, errValidation("guildId query parameter is required"))
		return
	}
	limit := maxChannelListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < maxChannelListLimit {
			limit = n
		}
	}

	channels, err := s.deps.Channels.ListActivatedChannelsByGuild(r.Context(), guildID, limit)
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// handlePatchChannelOverrides implements PATCH
// /user/channel/:id/config-overrides: a merge where a JSON null value
// clears the corresponding key and any other value is stored as sent.
// Keys and value types are not checked against a schema.
func (s *Server) handlePatchChannelOverrides(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, errValidation("malformed request body: "+err.Error()))
		return
	}

	existing, err := s.deps.Channels.GetActivatedChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	if existing == nil {
		writeError(w, errNotFound("no activated channel with id "+channelID))
		return
	}

	overrides := existing.ConfigOverrides
	if overrides == nil {
		overrides = make(map[string]any)
	}
	for key, raw := range patch {
		if string(raw) == "null" {
			delete(overrides, key)
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			writeError(w, errValidation("invalid value for "+key+": "+err.Error()))
			return
		}
		overrides[key] = value
	}
	existing.ConfigOverrides = overrides

	if err := s.deps.Channels.UpsertActivatedChannel(r.Context(), *existing); err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channelId": channelID, "configOverrides": overrides})
}

// handleDeleteChannelOverrides implements DELETE
// /user/channel/:id/config-overrides: clears all overrides without
// deactivating the channel.
func (s *Server) handleDeleteChannelOverrides(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")

	existing, err := s.deps.Channels.GetActivatedChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	if existing == nil {
		writeError(w, errNotFound("no activated channel with id "+channelID))
		return
	}

	existing.ConfigOverrides = map[string]any{}
	if err := s.deps.Channels.UpsertActivatedChannel(r.Context(), *existing); err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channelId": channelID, "configOverrides": map[string]any{}})
}
