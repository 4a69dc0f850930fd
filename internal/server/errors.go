package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aceteam-ai/conduit/internal/ids"
)

func fmtDuration(d time.Duration) string {
	return fmt.Sprintf("%.0f", d.Seconds())
}

// apiError is the typed failure every handler returns, mapping directly to
// spec §6's "{ error: <CODE>, message, requestId?, timestamp }" response
// shape and §7's category-to-status table.
type apiError struct {
	Code       string
	Message    string
	HTTPStatus int
	RequestID  string
	RetryAfter time.Duration
}

func (e *apiError) Error() string { return e.Message }

func errValidation(msg string) *apiError {
	return &apiError{Code: "VALIDATION_ERROR", Message: msg, HTTPStatus: http.StatusBadRequest}
}

func errUnauthorized(msg string) *apiError {
	return &apiError{Code: "UNAUTHORIZED", Message: msg, HTTPStatus: http.StatusUnauthorized}
}

func errRateLimited(retryAfter time.Duration) *apiError {
	return &apiError{
		Code: "RATE_LIMITED", Message: "too many requests", HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func errServiceUnavailable(msg string) *apiError {
	return &apiError{Code: "SERVICE_UNAVAILABLE", Message: msg, HTTPStatus: http.StatusServiceUnavailable}
}

func errNotFound(msg string) *apiError {
	return &apiError{Code: "NOT_FOUND", Message: msg, HTTPStatus: http.StatusNotFound}
}

// errUnknown wraps an unclassified error with a support reference id, per
// spec §7's "every terminal error returns ... a 12-char reference id".
func errUnknown(err error) *apiError {
	return &apiError{
		Code: "INTERNAL", Message: err.Error(), HTTPStatus: http.StatusInternalServerError,
		RequestID: ids.ReferenceID(),
	}
}

// writeError classifies err into an apiError (defaulting to errUnknown) and
// writes the standard failure envelope.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = errUnknown(err)
	}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmtDuration(apiErr.RetryAfter))
	}
	writeJSON(w, apiErr.HTTPStatus, map[string]any{
		"error":     apiErr.Code,
		"message":   apiErr.Message,
		"requestId": apiErr.RequestID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeSuccess writes spec §6's "{ jobId, requestId?, status }" success
// envelope.
func writeSuccess(w http.ResponseWriter, status int, jobID, requestID, jobStatus string) {
	body := map[string]any{"jobId": jobID, "status": jobStatus}
	if requestID != "" {
		body["requestId"] = requestID
	}
	writeJSON(w, status, body)
}
