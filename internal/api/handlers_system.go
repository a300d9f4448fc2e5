package api

import (
	"net/http"

	"github.com/midideck/midideck-go/internal/models"
)

// infoResponse is the build/runtime info plus live SSE listener count.
type infoResponse struct {
	models.Info
	Subscribers int `json:"sse_subscribers"`
}

// getInfo returns build and runtime info.
func (h *Handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Info:        h.ctrl.State().Info,
		Subscribers: h.events.SubscriberCount(),
	})
}

// resync triggers an immediate reconciliation pass against the backend and
// returns the refreshed state, observed side included.
func (h *Handlers) resync(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Resync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.State())
}
