package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler rereads the config file and reconfigures the driver. On
// failure the driver keeps running with its previous configuration.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reconfiguring driver from disk", "remote_addr", r.RemoteAddr)

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("reload rejected, keeping previous driver config", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "reload rejected, previous configuration kept: " + err.Error(),
		})
		return
	}

	h.logger.Info("driver reconfigured")
	w.WriteHeader(http.StatusNoContent)
}
