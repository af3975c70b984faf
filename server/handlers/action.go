package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nomis52/specdriver/gateway"
)

// ActionRequest defines the request body for POST /api/action.
type ActionRequest struct {
	Signal string `json:"signal"`
	Args   []any  `json:"args"`
}

// ActionResponse carries the listener or collaborator results.
type ActionResponse struct {
	Results []any `json:"results"`
}

// ActionHandler dispatches a signal into the driver.
type ActionHandler struct {
	logger     *slog.Logger
	dispatcher ActionDispatcher
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(logger *slog.Logger, dispatcher ActionDispatcher) *ActionHandler {
	return &ActionHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

// ServeHTTP implements http.Handler.
func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	if _, ok := gateway.ParseSignal(req.Signal); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("unknown signal %q", req.Signal),
		})
		return
	}

	results, err := h.dispatcher.ActionName(r.Context(), req.Signal, req.Args...)
	if err != nil {
		h.logger.Warn("action failed", "signal", req.Signal, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, gateway.ErrNoRunner) || errors.Is(err, gateway.ErrNoCommands) {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	if results == nil {
		results = []any{}
	}
	writeJSON(w, http.StatusOK, ActionResponse{Results: results})
}
