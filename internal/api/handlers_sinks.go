package api

import (
	"net/http"

	"github.com/midideck/midideck-go/internal/models"
)

// getState returns the full system state.
func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

// sinkStatus is the per-sink view assembled from the state rows.
type sinkStatus struct {
	models.VirtualSink
	Volume      float64             `json:"volume"`
	Muted       bool                `json:"muted"`
	Connections []models.Connection `json:"connections"`
}

func sinkStatusOf(state *models.State, sink models.VirtualSink) sinkStatus {
	st := sinkStatus{VirtualSink: sink}
	for _, v := range state.Volumes {
		if v.SinkID == sink.ID {
			st.Volume = v.Volume
		}
	}
	for _, m := range state.Mutes {
		if m.SinkID == sink.ID {
			st.Muted = m.Muted
		}
	}
	for _, c := range state.Connections {
		if c.SinkID == sink.ID {
			st.Connections = append(st.Connections, c)
		}
	}
	return st
}

// getSinks returns all virtual sinks with their volume, mute and routing.
func (h *Handlers) getSinks(w http.ResponseWriter, r *http.Request) {
	state := h.ctrl.State()
	out := make([]sinkStatus, 0, len(state.Sinks))
	for _, sink := range state.Sinks {
		out = append(out, sinkStatusOf(&state, sink))
	}
	writeJSON(w, http.StatusOK, out)
}

// getSink returns one sink with its volume, mute and routing.
func (h *Handlers) getSink(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	state := h.ctrl.State()
	for _, sink := range state.Sinks {
		if sink.ID == id {
			writeJSON(w, http.StatusOK, sinkStatusOf(&state, sink))
			return
		}
	}
	writeError(w, models.ErrNotFound("sink not found"))
}

// sinkUpdate is the PATCH body for a sink. Absent fields are untouched.
type sinkUpdate struct {
	Volume *float64 `json:"volume,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
}

// setSink updates a sink's volume and/or mute flag.
func (h *Handlers) setSink(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	var upd sinkUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	if upd.Volume == nil && upd.Muted == nil {
		writeError(w, models.ErrBadRequest("nothing to update: provide volume and/or muted"))
		return
	}

	var state models.State
	if upd.Volume != nil {
		var appErr *models.AppError
		state, appErr = h.ctrl.SetVolume(r.Context(), id, *upd.Volume)
		if appErr != nil {
			writeError(w, appErr)
			return
		}
	}
	if upd.Muted != nil {
		var appErr *models.AppError
		state, appErr = h.ctrl.SetMute(r.Context(), id, *upd.Muted)
		if appErr != nil {
			writeError(w, appErr)
			return
		}
	}
	writeJSON(w, http.StatusOK, state)
}

// toggleMute flips a sink's mute flag.
func (h *Handlers) toggleMute(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	state, appErr := h.ctrl.ToggleMute(r.Context(), id)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// deactivateSink tears down a sink's backend objects and marks it inactive.
func (h *Handlers) deactivateSink(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	state, appErr := h.ctrl.DeactivateSink(r.Context(), id)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// connectionUpdate is the PATCH body for a (sink, output) pair.
type connectionUpdate struct {
	Connected bool `json:"connected"`
}

// setConnection sets whether a sink is routed to an output.
func (h *Handlers) setConnection(w http.ResponseWriter, r *http.Request) {
	sid, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	oid, err := intParam(r, "oid")
	if err != nil {
		writeError(w, err)
		return
	}
	var upd connectionUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	state, appErr := h.ctrl.SetConnection(r.Context(), sid, oid, upd.Connected)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// toggleOutput flips whether a sink is routed to an output.
func (h *Handlers) toggleOutput(w http.ResponseWriter, r *http.Request) {
	sid, err := intParam(r, "sid")
	if err != nil {
		writeError(w, err)
		return
	}
	oid, err := intParam(r, "oid")
	if err != nil {
		writeError(w, err)
		return
	}
	state, appErr := h.ctrl.ToggleOutput(r.Context(), sid, oid)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
