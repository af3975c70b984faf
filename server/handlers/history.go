package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HistoryHandler handles requests for the retained test history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Tests())
}

// TestHandler handles requests for one test's record. The test id is read
// from the "testID" route parameter.
type TestHandler struct {
	provider HistoryProvider
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(provider HistoryProvider) *TestHandler {
	return &TestHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *TestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "testID")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing test id"})
		return
	}

	record, ok := h.provider.Test(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("test %q not in history", id),
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}
