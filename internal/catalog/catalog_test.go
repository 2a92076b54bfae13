package catalog

import (
	"testing"
	"time"
)

func TestEndedAtOrFarFutureTreatsNilAsOpenEnded(t *testing.T) {
	got := endedAtOrFarFuture(nil)
	cutoff := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.After(cutoff) {
		t.Fatalf("endedAtOrFarFuture(nil) = %v, want a time far in the future", got)
	}
}

func TestEndedAtOrFarFutureReturnsValueWhenSet(t *testing.T) {
	want := time.Date(2026, 1, 20, 20, 15, 30, 0, time.UTC)
	got := endedAtOrFarFuture(&want)
	if !got.Equal(want) {
		t.Fatalf("endedAtOrFarFuture() = %v, want %v", got, want)
	}
}

func TestSessionStateConstantsAreDistinct(t *testing.T) {
	states := []SessionState{SessionRecording, SessionStopped, SessionProcessing, SessionUploaded}
	seen := make(map[SessionState]bool)
	for _, s := range states {
		if seen[s] {
			t.Fatalf("duplicate SessionState value %q", s)
		}
		seen[s] = true
	}
}
