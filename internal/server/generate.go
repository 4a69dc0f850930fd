package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aceteam-ai/conduit/internal/ids"
	"github.com/aceteam-ai/conduit/internal/jobs"
	"github.com/aceteam-ai/conduit/internal/queue"
)

// generateRequest is submitGenerate's payload, spec §4.1.
type generateRequest struct {
	UserID              string                    `json:"userId"`
	DisplayName         string                    `json:"displayName"`
	Handle              string                    `json:"handle,omitempty"`
	ChannelID           string                    `json:"channelId,omitempty"`
	GuildID             string                    `json:"guildId,omitempty"`
	PersonalityID       string                    `json:"personalityId"`
	ActivePersonaID     string                    `json:"activePersonaId"`
	ActivePersonaName   string                    `json:"activePersonaName,omitempty"`
	MessageText         string                    `json:"messageText"`
	ConversationHistory []jobs.ConversationMessage `json:"conversationHistory,omitempty"`
	ReferencedMessages  []jobs.ReferencedMessage   `json:"referencedMessages,omitempty"`
	// ReferencedMessageIDs feeds the dedup fingerprint (spec §4.1); kept
	// separate from ReferencedMessages because that slice carries content,
	// not ids, on the wire.
	ReferencedMessageIDs []string `json:"referencedMessageIds,omitempty"`
	Attachments          []struct {
		URL  string `json:"url"`
		Name string `json:"name,omitempty"`
	} `json:"attachments,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	ChannelActivated bool   `json:"channelActivated,omitempty"`
	JobID            string `json:"jobId,omitempty"` // caller-supplied idempotency key, optional
}

func (req generateRequest) validate() error {
	if req.UserID == "" {
		return errValidation("userId is required")
	}
	if req.PersonalityID == "" {
		return errValidation("personalityId is required")
	}
	if req.MessageText == "" {
		return errValidation("messageText is required")
	}
	return nil
}

// handleGenerate implements spec §4.1's submitGenerate: validate, stage
// attachments, deduplicate, enqueue an LLMGeneration job, and either
// return the queued handle (202) or, with ?wait=true, block for the
// result.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errValidation("malformed request body: "+err.Error()))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	if s.deps.RateLimiter != nil {
		allowed, retryAfter, err := s.deps.RateLimiter.Allow(r.Context(), req.UserID)
		if err != nil {
			writeError(w, errServiceUnavailable("rate limiter unreachable: "+err.Error()))
			return
		}
		if !allowed {
			writeError(w, errRateLimited(retryAfter))
			return
		}
	}

	requestID := ids.NewULID()

	staged := make([]jobs.Attachment, 0, len(req.Attachments))
	attachmentHashes := make([]string, 0, len(req.Attachments))
	if s.deps.Attachments != nil {
		for i, a := range req.Attachments {
			result, err := s.deps.Attachments.StageAttachment(r.Context(), requestID, i, a.URL, a.Name)
			if err != nil {
				writeError(w, errValidation(fmt.Sprintf("attachment %d could not be staged: %v", i, err)))
				return
			}
			staged = append(staged, jobs.Attachment{URL: result.URL, ContentHash: result.ContentHash, Name: a.Name})
			attachmentHashes = append(attachmentHashes, result.ContentHash)
		}
	}

	fingerprint := ids.Fingerprint(req.UserID, req.PersonalityID, req.MessageText, req.ReferencedMessageIDs, attachmentHashes)

	payload := jobs.GenerationPayload{
		UserID:               req.UserID,
		DisplayName:          req.DisplayName,
		Handle:               req.Handle,
		ChannelID:            req.ChannelID,
		GuildID:              req.GuildID,
		PersonalityID:        req.PersonalityID,
		ActivePersonaID:      req.ActivePersonaID,
		ActivePersonaName:    req.ActivePersonaName,
		MessageText:          req.MessageText,
		ConversationHistory:  req.ConversationHistory,
		ReferencedMessages:   req.ReferencedMessages,
		Attachments:          staged,
		SessionID:            req.SessionID,
		ChannelActivated:     req.ChannelActivated,
	}
	encoded, err := jobs.EncodeGenerationPayload(payload)
	if err != nil {
		writeError(w, errUnknown(err))
		return
	}

	jobID, isDuplicate, err := s.reserveAndEnqueue(r, fingerprint, queue.TypeLLMGeneration, encoded, req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = isDuplicate

	if r.URL.Query().Get("wait") == "true" {
		s.waitAndRespond(w, r, jobID, requestID)
		return
	}

	writeSuccess(w, http.StatusAccepted, jobID, requestID, string(queue.StateQueued))
}

// transcribeRequest is the payload for POST /ai/transcribe.
type transcribeRequest struct {
	AudioURL string `json:"audioUrl"`
	Language string `json:"language,omitempty"`
	JobID    string `json:"jobId,omitempty"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errValidation("malformed request body: "+err.Error()))
		return
	}
	if req.AudioURL == "" {
		writeError(w, errValidation("audioUrl is required"))
		return
	}

	requestID := ids.NewULID()
	payload := map[string]any{"audioUrl": req.AudioURL}
	if req.Language != "" {
		payload["language"] = req.Language
	}

	jobID, err := s.deps.Queue.Enqueue(r.Context(), queue.TypeAudioTranscription, payload, queue.EnqueueOptions{JobID: req.JobID})
	if err != nil {
		writeError(w, errServiceUnavailable("queue unreachable: "+err.Error()))
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		s.waitAndRespond(w, r, jobID, requestID)
		return
	}
	writeSuccess(w, http.StatusAccepted, jobID, requestID, string(queue.StateQueued))
}

// reserveAndEnqueue applies spec §4.1's dedup contract: Reserve wins the
// race for fingerprint, or hands back the winner's job id if we lost it.
// On a fresh win it enqueues the job; on a collision it trusts the
// already-enqueued job rather than enqueuing a second time.
func (s *Server) reserveAndEnqueue(r *http.Request, fingerprint, jobType string, payload map[string]any, callerJobID string) (jobID string, isDuplicate bool, err error) {
	if s.deps.Dedup == nil {
		id, enqErr := s.deps.Queue.Enqueue(r.Context(), jobType, payload, queue.EnqueueOptions{JobID: callerJobID})
		if enqErr != nil {
			return "", false, errServiceUnavailable("queue unreachable: " + enqErr.Error())
		}
		return id, false, nil
	}

	candidate := callerJobID
	if candidate == "" {
		candidate = ids.NewULID()
	}

	winner, duplicate, reserveErr := s.deps.Dedup.Reserve(r.Context(), fingerprint, candidate)
	if reserveErr != nil {
		return "", false, errServiceUnavailable("dedup cache unreachable: " + reserveErr.Error())
	}
	if duplicate {
		return winner, true, nil
	}

	id, enqErr := s.deps.Queue.Enqueue(r.Context(), jobType, payload, queue.EnqueueOptions{JobID: winner})
	if enqErr != nil {
		return "", false, errServiceUnavailable("queue unreachable: " + enqErr.Error())
	}
	return id, false, nil
}

// waitAndRespond implements ?wait=true: block on the job's completion
// event and translate it into the success/failure envelope.
func (s *Server) waitAndRespond(w http.ResponseWriter, r *http.Request, jobID, requestID string) {
	if s.deps.Events == nil {
		writeSuccess(w, http.StatusAccepted, jobID, requestID, string(queue.StateQueued))
		return
	}
	timeout := s.deps.WaitTimeout
	if v := r.URL.Query().Get("timeoutSeconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	ev, err := s.deps.Events.WaitUntilFinished(r.Context(), jobID, timeout)
	if err != nil {
		// Timed out or the wait itself failed; the job is still running,
		// so report it as queued rather than as a server error.
		writeSuccess(w, http.StatusAccepted, jobID, requestID, string(queue.StateQueued))
		return
	}
	if ev.Type == "failed" {
		msg := "generation failed"
		if errVal, ok := ev.Data["error"].(string); ok && errVal != "" {
			msg = errVal
		}
		writeError(w, &apiError{Code: "GENERATION_FAILED", Message: msg, HTTPStatus: http.StatusOK, RequestID: requestID})
		return
	}
	writeSuccess(w, http.StatusOK, jobID, requestID, string(queue.StateCompleted))
}
