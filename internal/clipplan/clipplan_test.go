package clipplan

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}

func TestPlanSingleChapterSimpleExtract(t *testing.T) {
	recStart := mustParse(t, "2026-01-20T19:50:30Z")
	gameStart := mustParse(t, "2026-01-20T19:55:30Z")
	gameEnd := mustParse(t, "2026-01-20T20:15:30Z")

	chapters := []Chapter{{Key: "chapter_001_GX018471.MP4", Duration: 0}}

	plan, err := Plan(gameStart, gameEnd, recStart, chapters)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Chapters) != 1 {
		t.Fatalf("len(Chapters) = %d, want 1", len(plan.Chapters))
	}
	wantOffset := 300 * time.Second
	if plan.RelativeOffset != wantOffset {
		t.Fatalf("RelativeOffset = %v, want %v", plan.RelativeOffset, wantOffset)
	}
	wantDuration := 1200 * time.Second
	if plan.Duration != wantDuration {
		t.Fatalf("Duration = %v, want %v", plan.Duration, wantDuration)
	}
}

func TestPlanGameStraddlingTwoChapters(t *testing.T) {
	recStart := mustParse(t, "2026-01-20T19:50:30Z")
	gameStart := mustParse(t, "2026-01-20T20:15:30Z")
	gameEnd := mustParse(t, "2026-01-20T20:45:30Z")

	chapters := []Chapter{
		{Key: "chapter_001", Duration: 35 * time.Minute},
		{Key: "chapter_002", Duration: 35 * time.Minute},
		{Key: "chapter_003", Duration: 35 * time.Minute},
	}

	plan, err := Plan(gameStart, gameEnd, recStart, chapters)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2 (chapters 1 and 2)", len(plan.Chapters))
	}
	if plan.Chapters[0].Key != "chapter_001" || plan.Chapters[1].Key != "chapter_002" {
		t.Fatalf("unexpected chapter selection: %+v", plan.Chapters)
	}
}

func TestPlanGameStartBeforeRecordingStartClipsToZero(t *testing.T) {
	recStart := mustParse(t, "2026-01-20T19:50:30Z")
	gameStart := mustParse(t, "2026-01-20T19:40:00Z")
	gameEnd := mustParse(t, "2026-01-20T19:55:00Z")

	chapters := []Chapter{{Key: "chapter_001", Duration: 30 * time.Minute}}

	plan, err := Plan(gameStart, gameEnd, recStart, chapters)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	wantDuration := gameEnd.Sub(gameStart)
	if plan.Duration != wantDuration {
		t.Fatalf("Duration = %v, want %v (duration unchanged, only offset clipped)", plan.Duration, wantDuration)
	}
	if plan.RelativeOffset != 0 {
		t.Fatalf("RelativeOffset = %v, want 0 (offset clipped to recording start)", plan.RelativeOffset)
	}
}

func TestPlanSingleChapterSessionReturnsThatChapterOnly(t *testing.T) {
	recStart := mustParse(t, "2026-01-20T00:00:00Z")
	gameStart := mustParse(t, "2026-01-20T00:05:00Z")
	gameEnd := mustParse(t, "2026-01-20T00:10:00Z")

	chapters := []Chapter{{Key: "only", Duration: time.Hour}}

	plan, err := Plan(gameStart, gameEnd, recStart, chapters)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Chapters) != 1 || plan.Chapters[0].Key != "only" {
		t.Fatalf("plan.Chapters = %+v, want exactly [only]", plan.Chapters)
	}
}

func TestPlanReturnsErrNoOverlapWhenGameOutsideRecording(t *testing.T) {
	recStart := mustParse(t, "2026-01-20T00:00:00Z")
	gameStart := mustParse(t, "2026-01-21T00:00:00Z")
	gameEnd := mustParse(t, "2026-01-21T00:30:00Z")

	chapters := []Chapter{{Key: "only", Duration: time.Hour}}

	_, err := Plan(gameStart, gameEnd, recStart, chapters)
	if err == nil {
		t.Fatal("expected ErrNoOverlap")
	}
	if _, ok := err.(ErrNoOverlap); !ok {
		t.Fatalf("error type = %T, want ErrNoOverlap", err)
	}
}

func TestGameFolderTakesFirstFourSegments(t *testing.T) {
	got := GameFolder("a1b2-c3d4-e5f6-g7h8-i9j0-extra")
	want := "a1b2-c3d4-e5f6-g7h8"
	if got != want {
		t.Fatalf("GameFolder() = %q, want %q", got, want)
	}
}

func TestDeliverableKeyFormat(t *testing.T) {
	day := mustParse(t, "2026-01-20T00:00:00Z")
	got := DeliverableKey("court-7", day, "a1b2-c3d4-e5f6-g7h8-i9j0", "FL")
	want := "court-7/2026-01-20/a1b2-c3d4-e5f6-g7h8/2026-01-20_a1b2-c3d4-e5f6-g7h8_FL.mp4"
	if got != want {
		t.Fatalf("DeliverableKey() = %q, want %q", got, want)
	}
}

func TestRawDeliverableKeyAddsRawPrefix(t *testing.T) {
	day := mustParse(t, "2026-01-20T00:00:00Z")
	got := RawDeliverableKey("court-7", day, "a1b2-c3d4-e5f6-g7h8-i9j0", "FL")
	if got[:4] != "raw/" {
		t.Fatalf("RawDeliverableKey() = %q, want raw/ prefix", got)
	}
}
