package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/midideck/midideck-go/internal/models"
)

// getSessions returns all saved sessions.
func (h *Handlers) getSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

// getSession returns one session by id.
func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	session, appErr := h.sessions.Get(chi.URLParam(r, "sid"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// sessionRequest is the body for create and rename.
type sessionRequest struct {
	Name string `json:"name"`
}

// createSession creates a new empty session.
func (h *Handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, appErr := h.sessions.Create(req.Name)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// renameSession changes a session's name.
func (h *Handlers) renameSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, appErr := h.sessions.Rename(chi.URLParam(r, "sid"), req.Name)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// deleteSession removes a session. The current session is rejected with 409.
func (h *Handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if appErr := h.sessions.Delete(chi.URLParam(r, "sid")); appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// saveSession snapshots the current desired state into the session.
func (h *Handlers) saveSession(w http.ResponseWriter, r *http.Request) {
	session, appErr := h.sessions.Save(chi.URLParam(r, "sid"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// activateResponse reports the outcome of a session restore, including
// warnings about rows that referenced sinks or outputs that no longer exist.
type activateResponse struct {
	State    models.State `json:"state"`
	Warnings []string     `json:"warnings,omitempty"`
}

// activateSession makes the session current and restores its snapshot.
func (h *Handlers) activateSession(w http.ResponseWriter, r *http.Request) {
	warnings, appErr := h.sessions.Activate(r.Context(), chi.URLParam(r, "sid"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, activateResponse{State: h.ctrl.State(), Warnings: warnings})
}
