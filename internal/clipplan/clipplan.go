// Package clipplan maps a game's time window onto the chapter subset, offset,
// and duration a remote encoder needs to extract that game from a session's
// continuous recording.
package clipplan

import (
	"fmt"
	"time"
)

// DefaultChapterDuration is substituted for a chapter with unknown duration.
// It only influences which chapters are considered candidates; the remote
// encoder re-seeks accurately against the real file.
const DefaultChapterDuration = 15 * time.Minute

// ClipBuffer is added symmetrically around the computed clip to absorb clock
// skew between the catalog and the camera.
const ClipBuffer = 30 * time.Second

// Chapter is the subset of chapter metadata the planner needs, independent
// of where the chapter list came from.
type Chapter struct {
	Key      string
	Duration time.Duration
}

func (c Chapter) effectiveDuration() time.Duration {
	if c.Duration <= 0 {
		return DefaultChapterDuration
	}
	return c.Duration
}

// Result is the result of planning one game against one session's chapters.
type Result struct {
	Chapters       []Chapter
	RelativeOffset time.Duration
	Duration       time.Duration
}

// ErrNoOverlap is returned when no chapter intersects the game window at all.
type ErrNoOverlap struct {
	GameStart time.Time
	GameEnd   time.Time
}

func (e ErrNoOverlap) Error() string {
	return fmt.Sprintf("no chapter overlaps game window [%s, %s]", e.GameStart, e.GameEnd)
}

// Plan computes the chapter subset, intra-chapter offset, and clip duration
// needed to extract a game from a session's recording.
//
// chapters must be in recording order. recStart is the session's own start
// time (not the game's).
func Plan(gameStart, gameEnd, recStart time.Time, chapters []Chapter) (Result, error) {
	offsetInRecording := gameStart.Sub(recStart)
	if offsetInRecording < 0 {
		offsetInRecording = 0
	}
	duration := gameEnd.Sub(gameStart)
	windowEnd := offsetInRecording + duration

	var cursor time.Duration
	var cursor0 time.Duration
	started := false
	var selected []Chapter

	for _, ch := range chapters {
		chDur := ch.effectiveDuration()
		chStart := cursor
		chEnd := cursor + chDur

		intersects := chStart < windowEnd && chEnd > offsetInRecording
		if intersects {
			if !started {
				cursor0 = chStart
				started = true
			}
			selected = append(selected, ch)
		} else if started {
			break
		}
		cursor = chEnd
	}

	if !started {
		return Result{}, ErrNoOverlap{GameStart: gameStart, GameEnd: gameEnd}
	}

	relativeOffset := offsetInRecording - cursor0
	if relativeOffset < 0 {
		relativeOffset = 0
	}

	// The ClipBuffer is applied once, remotely, by the encode job
	// (AddBufferSeconds); baking it in here too would double it.
	return Result{
		Chapters:       selected,
		RelativeOffset: relativeOffset,
		Duration:       duration,
	}, nil
}

// GameFolder derives the shortened, globally-unique-in-practice folder name
// from a catalog-assigned game id: its first four hyphen-delimited segments.
func GameFolder(gameID string) string {
	segments := make([]byte, 0, len(gameID))
	hyphens := 0
	for i := 0; i < len(gameID); i++ {
		if gameID[i] == '-' {
			hyphens++
			if hyphens == 4 {
				return string(segments)
			}
		}
		segments = append(segments, gameID[i])
	}
	return string(segments)
}

// DeliverableKey derives the 1080p deliverable's object key.
func DeliverableKey(court string, gameDay time.Time, gameID, angle string) string {
	folder := GameFolder(gameID)
	day := gameDay.UTC().Format("2006-01-02")
	return fmt.Sprintf("%s/%s/%s/%s_%s_%s.mp4", court, day, folder, day, folder, angle)
}

// RawDeliverableKey is the ordered-enqueuing variant of DeliverableKey, used
// before the encode job has produced the final artefact.
func RawDeliverableKey(court string, gameDay time.Time, gameID, angle string) string {
	return "raw/" + DeliverableKey(court, gameDay, gameID, angle)
}
