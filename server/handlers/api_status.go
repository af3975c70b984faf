package handlers

import (
	"net/http"
	"time"
)

// NextRunResponse is the JSON response for the next maintenance run.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	HostConnected bool            `json:"host_connected"`
	Resumed       bool            `json:"resumed"`
	RetainedTests int             `json:"retained_tests"`
	NextRun       NextRunResponse `json:"next_run"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider StatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider StatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	next := h.provider.NextRun()
	writeJSON(w, http.StatusOK, APIStatusResponse{
		HostConnected: h.provider.HostConnected(),
		Resumed:       h.provider.Resumed(),
		RetainedTests: h.provider.RetainedTests(),
		NextRun: NextRunResponse{
			Scheduled: next != nil,
			NextRun:   next,
		},
	})
}
