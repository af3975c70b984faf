package handlers

import (
	"net/http"

	"github.com/nomis52/specdriver/config"
)

// StateResponse is the JSON response for GET /api/state.
type StateResponse struct {
	Config map[string]any `json:"config"`
	State  map[string]any `json:"state"`
	Env    map[string]any `json:"env"`
}

// StateHandler reports the contents of the driver's stores. Env values are
// masked the same way GET /api/config masks them.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		Config: h.provider.Config().All(),
		State:  h.provider.State().All(),
		Env:    config.RedactEnv(h.provider.Env().All()),
	})
}
