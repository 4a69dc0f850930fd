package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/aceteam-ai/conduit/internal/store/postgres"
)

// handleGetJob implements GET /ai/job/:jobId — spec §6's "fetch job
// state/progress", backed by internal/queue.Client's status hash.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	fields, err := s.deps.Queue.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, errServiceUnavailable("queue unreachable: "+err.Error()))
		return
	}
	if fields == nil {
		writeError(w, errNotFound("no job with id "+jobID))
		return
	}
	body := map[string]any{"jobId": jobID}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// handleConfirmDelivery implements POST /ai/job/:jobId/confirm-delivery:
// idempotently transition a result to DELIVERED. A missing row is the
// only 404 case; an already-DELIVERED row is a successful no-op (spec §6,
// §9's codified open-question decision).
func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if s.deps.Delivery == nil {
		writeError(w, errServiceUnavailable("delivery store not configured"))
		return
	}
	err := s.deps.Delivery.ConfirmDelivery(r.Context(), jobID)
	if errors.Is(err, postgres.ErrJobResultNotFound) {
		writeError(w, errNotFound("no job result with id "+jobID))
		return
	}
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}
	writeSuccess(w, http.StatusOK, jobID, "", "delivered")
}

// handleJobStream upgrades to a websocket and pushes one terminal event
// for jobID, then closes. Additive to spec §6's polling contract — the
// same internal/queue.Events.WaitUntilFinished backs both.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if s.deps.Events == nil {
		http.Error(w, "job event stream not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "jobId", jobID, "error", err)
		return
	}
	defer conn.Close()

	timeout := s.deps.WaitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ev, err := s.deps.Events.WaitUntilFinished(r.Context(), jobID, timeout)
	if err != nil {
		conn.WriteJSON(map[string]any{"type": "timeout", "jobId": jobID})
		return
	}
	conn.WriteJSON(ev)
}
