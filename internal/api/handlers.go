// Package api exposes the HTTP trigger surface for the sync engine.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"example.com/coachsync/internal/sync"
)

const (
	secretHeader    = "X-Sync-Secret"
	maxLookbackDays = 30
)

// Runner executes one pass over the sync-intent queue.
type Runner interface {
	Run(ctx context.Context, opts sync.RunOptions) (sync.Summary, error)
}

// Handler coordinates HTTP requests with the queue runner.
type Handler struct {
	runner Runner
	secret string
}

// NewHandler builds a Handler. The secret guards the internal trigger
// endpoint; an empty secret rejects every caller.
func NewHandler(runner Runner, secret string) *Handler {
	return &Handler{runner: runner, secret: secret}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/internal/sync/run", h.runSync)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RunRequest is the payload for POST /internal/sync/run. All fields are
// optional; an empty body drains the queue with defaults.
type RunRequest struct {
	AccountID    string `json:"account_id"`
	Mode         string `json:"mode"`
	LookbackDays int    `json:"lookback_days"`
}

// RunResponse wraps the run summary. Error carries aggregated
// infrastructure failures; partial progress is still reported.
type RunResponse struct {
	sync.Summary
	Error string `json:"error,omitempty"`
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid sync secret")
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	opts, err := req.toOptions()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	summary, runErr := h.runner.Run(r.Context(), opts)

	// The trigger is a cron hook: per-intent failures and even partial
	// infrastructure errors come back in the summary, not as an HTTP
	// failure, so the scheduler does not re-fire a half-done run.
	resp := RunResponse{Summary: summary}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	provided := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

func (r RunRequest) toOptions() (sync.RunOptions, error) {
	mode := sync.ModeDrain
	switch strings.TrimSpace(r.Mode) {
	case "", string(sync.ModeDrain):
	case string(sync.ModeBackfill):
		mode = sync.ModeBackfill
	default:
		return sync.RunOptions{}, errors.New("mode must be drain or backfill")
	}

	if r.LookbackDays < 0 || r.LookbackDays > maxLookbackDays {
		return sync.RunOptions{}, errors.New("lookback_days must be between 0 and 30")
	}

	return sync.RunOptions{
		Mode:         mode,
		AccountID:    strings.TrimSpace(r.AccountID),
		LookbackDays: r.LookbackDays,
	}, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
