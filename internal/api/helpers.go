// Package api implements the HTTP REST API for MIDI Deck.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/midideck/midideck-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl     Controller
	sessions Sessions
	events   EventBus
}

// Controller is the interface the handlers use to interact with the system state.
type Controller interface {
	State() models.State
	SetVolume(ctx context.Context, sinkID int, vol float64) (models.State, *models.AppError)
	SetMute(ctx context.Context, sinkID int, muted bool) (models.State, *models.AppError)
	ToggleMute(ctx context.Context, sinkID int) (models.State, *models.AppError)
	SetConnection(ctx context.Context, sinkID, outputID int, connected bool) (models.State, *models.AppError)
	ToggleOutput(ctx context.Context, sinkID, outputID int) (models.State, *models.AppError)
	DeactivateSink(ctx context.Context, sinkID int) (models.State, *models.AppError)
	Resync(ctx context.Context) error
}

// Sessions is the interface for the named-snapshot store.
type Sessions interface {
	List() []models.Session
	Get(id string) (models.Session, *models.AppError)
	Create(name string) (models.Session, *models.AppError)
	Save(id string) (models.Session, *models.AppError)
	Activate(ctx context.Context, id string) ([]string, *models.AppError)
	Rename(id, name string) (models.Session, *models.AppError)
	Delete(id string) *models.AppError
}

// EventBus is the interface for subscribing to state change events.
type EventBus interface {
	Subscribe(id string) <-chan models.State
	Unsubscribe(id string)
	SubscriberCount() int
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if appErr, ok := err.(*models.AppError); ok {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, error) {
	s := chi.URLParam(r, name)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.ErrBadRequest("invalid " + name + " parameter")
	}
	return n, nil
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrBadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
