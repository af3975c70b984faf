package handlers

import (
	"io"
	"net/http"
)

// HandleHealth reports liveness of the daemon. It does not depend on a host
// being connected; GET /api/status reports that.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
