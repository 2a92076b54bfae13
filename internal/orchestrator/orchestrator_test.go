package orchestrator

import (
	"testing"
	"time"

	"github.com/hoopcam/edgectl/internal/catalog"
)

func TestNormaliseSkipsUnkAngleSessions(t *testing.T) {
	o := &Orchestrator{}
	state := newRunState("run-1", "jetson-1")

	t0 := time.Date(2026, 1, 20, 19, 50, 30, 0, time.UTC)
	sessions := []catalog.Session{
		{ID: "a", Angle: "FL", StartedAt: t0},
		{ID: "b", Angle: "UNK", StartedAt: t0.Add(time.Minute)},
	}

	_, _, kept := o.normalise(state, sessions)
	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("normalise() kept = %+v, want only session a", kept)
	}
	if state.SessionsSkippedUnk != 1 {
		t.Fatalf("SessionsSkippedUnk = %d, want 1", state.SessionsSkippedUnk)
	}
}

func TestNormaliseComputesRecordingWindowAcrossSessions(t *testing.T) {
	o := &Orchestrator{}
	state := newRunState("run-2", "jetson-1")

	start1 := time.Date(2026, 1, 20, 19, 50, 0, 0, time.UTC)
	end1 := start1.Add(90 * time.Minute)
	start2 := start1.Add(5 * time.Minute)
	end2 := start2.Add(120 * time.Minute)

	sessions := []catalog.Session{
		{ID: "a", Angle: "FL", StartedAt: start1, EndedAt: &end1},
		{ID: "b", Angle: "FR", StartedAt: start2, EndedAt: &end2},
	}

	recStart, recEnd, kept := o.normalise(state, sessions)
	if len(kept) != 2 {
		t.Fatalf("normalise() kept %d sessions, want 2", len(kept))
	}
	if !recStart.Equal(start1) {
		t.Fatalf("recStart = %v, want %v", recStart, start1)
	}
	if !recEnd.Equal(end2) {
		t.Fatalf("recEnd = %v, want %v (the later of the two ends)", recEnd, end2)
	}
}

func TestLatestUploadedSessionSkipsSessionsWithoutS3Prefix(t *testing.T) {
	t0 := time.Date(2026, 1, 20, 19, 50, 0, 0, time.UTC)
	sessions := []catalog.Session{
		{ID: "older", StartedAt: t0, S3Prefix: "raw-chapters/older"},
		{ID: "no-prefix", StartedAt: t0.Add(time.Hour)},
	}

	got := latestUploadedSession(sessions)
	if got == nil || got.ID != "older" {
		t.Fatalf("latestUploadedSession() = %+v, want the only session with an S3 prefix", got)
	}
}

func TestLatestUploadedSessionPrefersMostRecentStart(t *testing.T) {
	t0 := time.Date(2026, 1, 20, 19, 50, 0, 0, time.UTC)
	sessions := []catalog.Session{
		{ID: "earlier", StartedAt: t0, S3Prefix: "raw-chapters/earlier"},
		{ID: "later", StartedAt: t0.Add(time.Hour), S3Prefix: "raw-chapters/later"},
	}

	got := latestUploadedSession(sessions)
	if got == nil || got.ID != "later" {
		t.Fatalf("latestUploadedSession() = %+v, want the later session", got)
	}
}

func TestFinalStatusReflectsAggregateOutcome(t *testing.T) {
	o := &Orchestrator{}

	clean := newRunState("run-3", "jetson-1")
	if got := o.finalStatus(clean); got != RunCompleted {
		t.Fatalf("finalStatus(clean) = %v, want %v", got, RunCompleted)
	}

	withErrors := newRunState("run-4", "jetson-1")
	withErrors.Errors = append(withErrors.Errors, "catalog_unavailable: boom")
	if got := o.finalStatus(withErrors); got != RunCompletedWithErrors {
		t.Fatalf("finalStatus(withErrors) = %v, want %v", got, RunCompletedWithErrors)
	}

	withSkips := newRunState("run-5", "jetson-1")
	withSkips.SessionsSkippedUnk = 1
	if got := o.finalStatus(withSkips); got != RunCompletedWithErrors {
		t.Fatalf("finalStatus(withSkips) = %v, want %v", got, RunCompletedWithErrors)
	}
}
