package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mytodos/internal/reconcile"
	"mytodos/internal/store"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	engine *reconcile.Engine
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(e *reconcile.Engine, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine: e,
		logger: logger,
	}
}

// parseID extracts a todo id from URL parameters.
func parseID(r *http.Request, param string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, param))
	if id == "" {
		return "", errors.New("missing id")
	}
	return id, nil
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, code int, message string) {
	w.WriteHeader(code)
	w.Write([]byte(message))
}

func (h *Handlers) respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("err", err))
	}
}

// respondStoreError maps a failed engine operation to a status. The
// engine has already rolled the list back by the time it returns.
func (h *Handlers) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "todo not found")
	case errors.Is(err, reconcile.ErrConflict):
		respondError(w, http.StatusConflict, "todo list changed, please retry")
	default:
		respondError(w, http.StatusBadGateway, "todo store unavailable")
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
