package orchestrator

import (
	"path/filepath"
	"testing"
)

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	state := newRunState("run-abc", "jetson-1")
	state.TotalSessions = 3
	state.SessionsCompleted = 2
	state.Errors = append(state.Errors, "catalog_unavailable: timed out")

	if err := store.Save(state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load("run-abc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.TotalSessions != 3 || loaded.SessionsCompleted != 2 {
		t.Fatalf("Load() = %+v, want matching counters", loaded)
	}
	if len(loaded.Errors) != 1 {
		t.Fatalf("Load() errors = %v, want 1 entry", loaded.Errors)
	}
}

func TestStoreSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	state := newRunState("run-xyz", "jetson-1")
	if err := store.Save(state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("leftover temp files after Save(): %v", matches)
	}
}

func TestNewRunStateInitialisesEmptyMaps(t *testing.T) {
	state := newRunState("run-1", "jetson-1")
	if state.SessionUploads == nil || state.Games == nil {
		t.Fatal("newRunState() left nil maps, want initialised empty maps")
	}
	if state.Status != RunStarted {
		t.Fatalf("Status = %v, want %v", state.Status, RunStarted)
	}
}
