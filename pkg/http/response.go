package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Envelope is the response shape surfaced to every caller.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// RateLimitMeta carries rate-limit metadata attached as response headers
// when a gate rejects (or budgets) a request.
type RateLimitMeta struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// WriteJSON writes a success envelope with the given payload.
func WriteJSON(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteErrorWithDetails(w, statusCode, message, nil)
}

// WriteErrorWithDetails writes a failure envelope with field-level errors.
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message string, errs interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

// SetRateLimitHeaders attaches rate-limit metadata to the response.
func SetRateLimitHeaders(w http.ResponseWriter, meta RateLimitMeta) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(meta.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(meta.Remaining))
	if !meta.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(meta.ResetAt.Unix(), 10))
	}
	if meta.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(meta.RetryAfter)))
	}
}

// WriteTooManyRequests writes a 429 failure envelope with rate-limit headers.
func WriteTooManyRequests(w http.ResponseWriter, message string, meta RateLimitMeta) {
	SetRateLimitHeaders(w, meta)
	WriteError(w, http.StatusTooManyRequests, message)
}

// retryAfterSeconds rounds up so a caller who waits the advertised time is
// always past the window boundary.
func retryAfterSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
