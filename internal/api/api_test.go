package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/midideck/midideck-go/internal/api"
	"github.com/midideck/midideck-go/internal/backend"
	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/controller"
	"github.com/midideck/midideck-go/internal/events"
	"github.com/midideck/midideck-go/internal/models"
	"github.com/midideck/midideck-go/internal/sessions"
)

const speakerDev = "alsa_output.test-speakers"

func testConfig() *config.Config {
	return &config.Config{
		DeviceName:      "Test Deck",
		JitterThreshold: 2,
		Sinks: []models.VirtualSink{
			{ID: 1, ChannelNumber: 1, Name: "MainSink", Active: true},
			{ID: 2, ChannelNumber: 2, Name: "WebSink", Active: true},
		},
		Outputs: []models.HardwareOutput{
			{ID: 1, Name: "SpeakerOut", DeviceName: speakerDev, Role: models.RoleSpeaker, Active: true},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *backend.Mock) {
	t.Helper()
	mock := backend.NewMock(speakerDev)
	bus := events.NewBus()
	ctrl := controller.New(mock, testConfig(), bus, models.Info{Version: "test", Mock: true})
	if err := ctrl.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	mgr, err := sessions.NewManager(sessions.NewMemStore(), ctrl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv := httptest.NewServer(api.NewRouter(ctrl, mgr, bus))
	t.Cleanup(srv.Close)
	return srv, mock
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestGetState(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	state := decode[models.State](t, resp)
	if len(state.Sinks) != 2 || len(state.Volumes) != 2 {
		t.Errorf("state = %+v", state)
	}
	if state.Info.Version != "test" {
		t.Errorf("info = %+v", state.Info)
	}
}

func TestPatchSinkVolume(t *testing.T) {
	srv, mock := newTestServer(t)

	resp := do(t, http.MethodPatch, srv.URL+"/api/sinks/1", map[string]any{"volume": 0.5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	state := decode[models.State](t, resp)
	for _, v := range state.Volumes {
		if v.SinkID == 1 && v.Volume != 0.5 {
			t.Errorf("volume = %v", v.Volume)
		}
	}
	if vol, _, _ := mock.SinkState("MainSink"); vol != 0.5 {
		t.Errorf("backend volume = %v", vol)
	}
}

func TestPatchSinkRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPatch, srv.URL+"/api/sinks/1", map[string]any{"volume": 1.5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range volume: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPatch, srv.URL+"/api/sinks/1", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty patch: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPatch, srv.URL+"/api/sinks/99", map[string]any{"muted": true})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown sink: status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestToggleMuteEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/sinks/1/mute/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if _, muted, _ := mock.SinkState("MainSink"); !muted {
		t.Error("backend not muted after toggle")
	}
}

func TestConnectionEndpoints(t *testing.T) {
	srv, mock := newTestServer(t)

	resp := do(t, http.MethodPatch, srv.URL+"/api/sinks/1/outputs/1", map[string]any{"connected": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if !mock.IsConnected("MainSink", speakerDev) {
		t.Error("loopback missing after PATCH")
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/sinks/1/outputs/1/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if mock.IsConnected("MainSink", speakerDev) {
		t.Error("loopback survived toggle off")
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// Create
	resp := do(t, http.MethodPost, srv.URL+"/api/session", map[string]any{"name": "gaming"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[models.Session](t, resp)
	if !created.IsCurrent {
		t.Error("first session not current")
	}

	// Save
	resp = do(t, http.MethodPost, srv.URL+"/api/sessions/"+created.ID+"/save", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	saved := decode[models.Session](t, resp)
	if saved.Snapshot == nil {
		t.Error("save did not record a snapshot")
	}

	// Deleting the current session is a conflict.
	resp = do(t, http.MethodDelete, srv.URL+"/api/sessions/"+created.ID, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete current status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Activate restores the snapshot.
	resp = do(t, http.MethodPost, srv.URL+"/api/sessions/"+created.ID+"/activate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// List
	resp = do(t, http.MethodGet, srv.URL+"/api/sessions", nil)
	list := decode[[]models.Session](t, resp)
	if len(list) != 1 {
		t.Errorf("list = %+v", list)
	}

	// Unknown session
	resp = do(t, http.MethodPost, srv.URL+"/api/sessions/nope/activate", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestResyncEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)

	// Drift: the backend loses a sink; POST /api/resync repairs it.
	mock.DropSink("MainSink")
	resp := do(t, http.MethodPost, srv.URL+"/api/resync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	state := decode[models.State](t, resp)
	if !mock.HasSink("MainSink") {
		t.Error("resync did not recreate the sink")
	}
	if state.Observed == nil {
		t.Error("resync response missing observed state")
	}
}

func TestGetInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/info", nil)
	info := decode[struct {
		models.Info
		Subscribers int `json:"sse_subscribers"`
	}](t, resp)
	if info.Version != "test" || !info.Mock {
		t.Errorf("info = %+v", info)
	}
	if info.Subscribers != 0 {
		t.Errorf("sse_subscribers = %d with no stream open", info.Subscribers)
	}
}

func TestGetSinks(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/sinks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var sinks []struct {
		models.VirtualSink
		Volume      float64             `json:"volume"`
		Connections []models.Connection `json:"connections"`
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&sinks); err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 2 {
		t.Fatalf("got %d sinks", len(sinks))
	}
	if sinks[0].Volume != 1.0 || len(sinks[0].Connections) != 1 {
		t.Errorf("sink 0 = %+v", sinks[0])
	}
}
