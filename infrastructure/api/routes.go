package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/codecompass/codecompass/domain/indexing"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// StatusSource reports the indexing run snapshot. *service.Indexer
// implements it.
type StatusSource interface {
	Status() indexing.Status
}

// UpdateTrigger starts a background re-index. *service.Indexer
// implements it.
type UpdateTrigger interface {
	Trigger(ctx context.Context) error
}

// Handlers serves the utility endpoints.
type Handlers struct {
	version string
	status  StatusSource
	trigger UpdateTrigger
	logger  *slog.Logger
}

// NewHandlers creates the utility endpoint handlers.
func NewHandlers(version string, status StatusSource, trigger UpdateTrigger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		version: version,
		status:  status,
		trigger: trigger,
		logger:  logger,
	}
}

// Mount wires the utility endpoints onto the router. mcpHandler, when
// non-nil, is mounted at /mcp outside the timeout group because MCP
// streams responses.
func (h *Handlers) Mount(router chi.Router, mcpHandler http.Handler) {
	router.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Get("/ping", h.ping)
		r.Get("/indexing-status", h.indexingStatus)
		r.Post("/repository/notify-update", h.notifyUpdate)
	})

	if mcpHandler != nil {
		router.Handle("/mcp", mcpHandler)
		router.Handle("/mcp/*", mcpHandler)
	}
}

// pingResponse identifies this instance to peers and monitors.
type pingResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *Handlers) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pingResponse{
		Service: ServiceName,
		Status:  "ok",
		Version: h.version,
	})
}

// statusResponse mirrors the indexing snapshot for HTTP clients.
type statusResponse struct {
	State          string `json:"state"`
	Progress       int    `json:"progress"`
	Message        string `json:"message"`
	CurrentFile    string `json:"current_file,omitempty"`
	CurrentCommit  string `json:"current_commit,omitempty"`
	FilesIndexed   int    `json:"files_indexed"`
	TotalFiles     int    `json:"total_files"`
	CommitsIndexed int    `json:"commits_indexed"`
	TotalCommits   int    `json:"total_commits"`
	Error          string `json:"error,omitempty"`
	LastUpdatedAt  string `json:"last_updated_at"`
}

func statusPayload(status indexing.Status) statusResponse {
	return statusResponse{
		State:          string(status.State()),
		Progress:       status.Progress(),
		Message:        status.Message(),
		CurrentFile:    status.CurrentFile(),
		CurrentCommit:  status.CurrentCommit(),
		FilesIndexed:   status.FilesIndexed(),
		TotalFiles:     status.TotalFiles(),
		CommitsIndexed: status.CommitsIndexed(),
		TotalCommits:   status.TotalCommits(),
		Error:          status.ErrorDetails(),
		LastUpdatedAt:  status.LastUpdatedAt().UTC().Format(time.RFC3339),
	}
}

func (h *Handlers) indexingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusPayload(h.status.Status()))
}

// errorResponse carries a failure reason.
type errorResponse struct {
	Error string `json:"error"`
}

// acceptedResponse acknowledges a trigger.
type acceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handlers) notifyUpdate(w http.ResponseWriter, r *http.Request) {
	if err := h.trigger.Trigger(r.Context()); err != nil {
		if errors.Is(err, indexing.ErrIndexingInProgress) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("re-index trigger failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Status:  "accepted",
		Message: "re-indexing started; poll /api/indexing-status for progress",
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
