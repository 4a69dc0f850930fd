package server

import "net/http"

// handleStopSequences implements GET /admin/stop-sequences: aggregated
// stop-sequence telemetry from the shared KV, per spec §6.
func (s *Server) handleStopSequences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Telemetry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"counts": map[string]int64{}})
		return
	}
	counts, err := s.deps.Telemetry.Aggregate(r.Context())
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
