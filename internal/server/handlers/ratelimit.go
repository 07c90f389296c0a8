package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/core"
	apperrors "github.com/sellerdesk/sellerdesk/internal/errors"
)

// RateLimitResponse reports the budget snapshot with a human-readable reset.
type RateLimitResponse struct {
	RateLimit   core.RateLimitInfo `json:"rate_limit"`
	ResetInMs   int64              `json:"reset_in_ms"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// QueueResponse reports the wait queue snapshot.
type QueueResponse struct {
	Queue       core.QueueStats `json:"queue"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// RateLimitHandler reports remaining per-second and per-day quota.
func RateLimitHandler(w http.ResponseWriter, r *http.Request) {
	if dispatcher == nil {
		respondWithError(w, r, apperrors.NewInternalError("marketplace client not initialized"))
		return
	}

	now := time.Now().UTC()
	info := dispatcher.RateLimitInfo()

	resetIn := info.NextResetAt.Sub(now).Milliseconds()
	if resetIn < 0 {
		resetIn = 0
	}

	response := RateLimitResponse{
		RateLimit:   info,
		ResetInMs:   resetIn,
		GeneratedAt: now,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// QueueHandler reports the number of parked calls and the oldest wait.
func QueueHandler(w http.ResponseWriter, r *http.Request) {
	if dispatcher == nil {
		respondWithError(w, r, apperrors.NewInternalError("marketplace client not initialized"))
		return
	}

	response := QueueResponse{
		Queue:       dispatcher.QueueStats(),
		GeneratedAt: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
