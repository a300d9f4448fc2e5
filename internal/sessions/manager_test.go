package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/midideck/midideck-go/internal/backend"
	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/controller"
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

func newTestManager(t *testing.T, store sessions.Store) (*sessions.Manager, *controller.Controller) {
	t.Helper()
	mock := backend.NewMock(speakerDev)
	ctrl := controller.New(mock, testConfig(), nil, models.Info{Mock: true})
	if err := ctrl.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	mgr, err := sessions.NewManager(store, ctrl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, ctrl
}

func TestFirstSessionBecomesCurrent(t *testing.T) {
	mgr, _ := newTestManager(t, sessions.NewMemStore())

	first, appErr := mgr.Create("gaming")
	if appErr != nil {
		t.Fatalf("Create: %v", appErr)
	}
	if !first.IsCurrent {
		t.Error("first session should be current")
	}

	second, appErr := mgr.Create("streaming")
	if appErr != nil {
		t.Fatalf("Create: %v", appErr)
	}
	if second.IsCurrent {
		t.Error("second session must not steal currency")
	}

	cur, ok := mgr.Current()
	if !ok || cur.ID != first.ID {
		t.Errorf("current = %+v, want %q", cur, first.ID)
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	mgr, _ := newTestManager(t, sessions.NewMemStore())
	if _, appErr := mgr.Create("gaming"); appErr != nil {
		t.Fatalf("Create: %v", appErr)
	}
	if _, appErr := mgr.Create("gaming"); appErr == nil {
		t.Error("duplicate name accepted")
	}
	if _, appErr := mgr.Create(""); appErr == nil {
		t.Error("empty name accepted")
	}
}

func TestSaveActivateRoundTrip(t *testing.T) {
	mgr, ctrl := newTestManager(t, sessions.NewMemStore())
	ctx := context.Background()

	if _, appErr := ctrl.SetVolume(ctx, 1, 0.25); appErr != nil {
		t.Fatalf("SetVolume: %v", appErr)
	}
	if _, appErr := ctrl.SetMute(ctx, 2, true); appErr != nil {
		t.Fatalf("SetMute: %v", appErr)
	}
	if _, appErr := ctrl.SetConnection(ctx, 1, 1, true); appErr != nil {
		t.Fatalf("SetConnection: %v", appErr)
	}

	session, appErr := mgr.Create("gaming")
	if appErr != nil {
		t.Fatalf("Create: %v", appErr)
	}
	saved, appErr := mgr.Save(session.ID)
	if appErr != nil {
		t.Fatalf("Save: %v", appErr)
	}
	if saved.Snapshot == nil || saved.SavedAt.IsZero() {
		t.Fatal("save did not record a snapshot")
	}

	// Wreck the live state, then restore.
	if _, appErr := ctrl.SetVolume(ctx, 1, 1.0); appErr != nil {
		t.Fatalf("SetVolume: %v", appErr)
	}
	if _, appErr := ctrl.SetMute(ctx, 2, false); appErr != nil {
		t.Fatalf("SetMute: %v", appErr)
	}
	if _, appErr := ctrl.SetConnection(ctx, 1, 1, false); appErr != nil {
		t.Fatalf("SetConnection: %v", appErr)
	}

	warnings, appErr := mgr.Activate(ctx, session.ID)
	if appErr != nil {
		t.Fatalf("Activate: %v", appErr)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	state := ctrl.State()
	for _, v := range state.Volumes {
		if v.SinkID == 1 && v.Volume != 0.25 {
			t.Errorf("restored volume = %v, want 0.25", v.Volume)
		}
	}
	for _, m := range state.Mutes {
		if m.SinkID == 2 && !m.Muted {
			t.Error("restored mute flag lost")
		}
	}
	for _, c := range state.Connections {
		if c.SinkID == 1 && c.OutputID == 1 && !c.Connected {
			t.Error("restored connection lost")
		}
	}
}

func TestActivateSkipsStaleReferences(t *testing.T) {
	store := sessions.NewMemStore()
	stale := models.Session{
		ID:        "stale-id",
		Name:      "old-layout",
		IsCurrent: true,
		SavedAt:   time.Now(),
		Snapshot: &models.Snapshot{
			Volumes: []models.VolumeState{
				{SinkID: 1, Volume: 0.5},
				{SinkID: 99, Volume: 0.5}, // sink no longer exists
			},
			Mutes: []models.MuteState{{SinkID: 1, Muted: true}},
			Connections: []models.Connection{
				{SinkID: 1, OutputID: 42, Connected: true}, // output gone
			},
		},
	}
	if err := store.Save([]models.Session{stale}); err != nil {
		t.Fatal(err)
	}

	mgr, ctrl := newTestManager(t, store)
	warnings, appErr := mgr.Activate(context.Background(), "stale-id")
	if appErr != nil {
		t.Fatalf("Activate: %v", appErr)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings (stale sink, stale output), got %v", warnings)
	}

	// The valid rows still applied.
	state := ctrl.State()
	for _, v := range state.Volumes {
		if v.SinkID == 1 && v.Volume != 0.5 {
			t.Errorf("valid volume row not applied: %v", v.Volume)
		}
	}
	for _, m := range state.Mutes {
		if m.SinkID == 1 && !m.Muted {
			t.Error("valid mute row not applied")
		}
	}
}

func TestDeleteCurrentRejected(t *testing.T) {
	mgr, _ := newTestManager(t, sessions.NewMemStore())

	first, _ := mgr.Create("gaming")
	second, _ := mgr.Create("streaming")

	if appErr := mgr.Delete(first.ID); appErr == nil {
		t.Fatal("deleting the current session must be rejected")
	}
	if appErr := mgr.Delete(second.ID); appErr != nil {
		t.Fatalf("deleting a non-current session failed: %v", appErr)
	}
	if len(mgr.List()) != 1 {
		t.Errorf("expected 1 session left, got %d", len(mgr.List()))
	}
}

func TestActivateSwitchesCurrency(t *testing.T) {
	mgr, _ := newTestManager(t, sessions.NewMemStore())

	first, _ := mgr.Create("gaming")
	second, _ := mgr.Create("streaming")

	if _, appErr := mgr.Activate(context.Background(), second.ID); appErr != nil {
		t.Fatalf("Activate: %v", appErr)
	}

	currents := 0
	for _, s := range mgr.List() {
		if s.IsCurrent {
			currents++
			if s.ID != second.ID {
				t.Errorf("wrong session current: %q", s.Name)
			}
		}
	}
	if currents != 1 {
		t.Fatalf("%d sessions current, want exactly 1", currents)
	}

	// Old current can now be deleted.
	if appErr := mgr.Delete(first.ID); appErr != nil {
		t.Errorf("Delete: %v", appErr)
	}
}

func TestRename(t *testing.T) {
	mgr, _ := newTestManager(t, sessions.NewMemStore())
	s, _ := mgr.Create("gaming")
	mgr.Create("streaming")

	if _, appErr := mgr.Rename(s.ID, "streaming"); appErr == nil {
		t.Error("rename to an existing name accepted")
	}
	renamed, appErr := mgr.Rename(s.ID, "couch-gaming")
	if appErr != nil {
		t.Fatalf("Rename: %v", appErr)
	}
	if renamed.Name != "couch-gaming" || !renamed.IsCurrent {
		t.Errorf("renamed = %+v", renamed)
	}
}

func TestLoadRepairsCorruptCurrency(t *testing.T) {
	store := sessions.NewMemStore()
	err := store.Save([]models.Session{
		{ID: "a", Name: "one", IsCurrent: true},
		{ID: "b", Name: "two", IsCurrent: true}, // hand-edited store
	})
	if err != nil {
		t.Fatal(err)
	}

	mgr, _ := newTestManager(t, store)
	currents := 0
	for _, s := range mgr.List() {
		if s.IsCurrent {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("%d sessions current after load, want 1", currents)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := sessions.NewJSONStore(dir)

	want := []models.Session{{
		ID: "a", Name: "one", IsCurrent: true,
		Snapshot: &models.Snapshot{
			Volumes: []models.VolumeState{{SinkID: 1, Volume: 0.5}},
		},
	}}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := sessions.NewJSONStore(dir).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" || got[0].Snapshot == nil {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if got[0].Snapshot.Volumes[0].Volume != 0.5 {
		t.Errorf("snapshot volume = %v", got[0].Snapshot.Volumes[0].Volume)
	}
}

func TestJSONStoreMissingFile(t *testing.T) {
	got, err := sessions.NewJSONStore(t.TempDir()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}
