// Package catalog adapts the pipeline's session and game bookkeeping onto an
// external document database.
package catalog

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/logging"
)

var log = logging.L("catalog")

const (
	sessionsCollection = "recording-sessions"
	gamesCollection    = "basketball-games"
)

// SessionState mirrors the recording session lifecycle.
type SessionState string

const (
	SessionRecording SessionState = "recording"
	SessionStopped   SessionState = "stopped"
	SessionProcessing SessionState = "processing"
	SessionUploaded  SessionState = "uploaded"
)

// ProcessedGame is a back-pointer a session accumulates as its games finish
// processing.
type ProcessedGame struct {
	GameID     string `firestore:"gameId"`
	GameNumber int    `firestore:"gameNumber"`
	Filename   string `firestore:"filename"`
	Key        string `firestore:"key"`
}

// ChapterRef is the on-camera location of one chapter a session produced,
// captured at Stop time so ingest can locate it without re-listing the
// camera's filesystem.
type ChapterRef struct {
	Directory string `firestore:"directory"`
	Filename  string `firestore:"filename"`
	SizeBytes int64  `firestore:"sizeBytes"`
}

// Session is the document shape of one recording-sessions entry.
type Session struct {
	ID             string          `firestore:"-"`
	DeviceID       string          `firestore:"deviceId"`
	Angle          string          `firestore:"angle"`
	SegmentSession string          `firestore:"segmentSession"`
	InterfaceID    string          `firestore:"interfaceId"`
	CameraIP       string          `firestore:"cameraIp"`
	State          SessionState    `firestore:"state"`
	StartedAt      time.Time       `firestore:"startedAt"`
	EndedAt        *time.Time      `firestore:"endedAt"`
	Chapters       []ChapterRef    `firestore:"chapters"`
	TotalChapters  int             `firestore:"totalChapters"`
	TotalBytes     int64           `firestore:"totalBytes"`
	S3Prefix       string          `firestore:"s3Prefix,omitempty"`
	ProcessedGames []ProcessedGame `firestore:"processedGames"`
}

// Game is the document shape of one basketball-games entry.
type Game struct {
	ID         string     `firestore:"-"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	EndedAt    *time.Time `firestore:"endedAt"`
	HomeTeam   string     `firestore:"homeTeam"`
	AwayTeam   string     `firestore:"awayTeam"`
	HomeScore  int        `firestore:"homeScore"`
	AwayScore  int        `firestore:"awayScore"`
	RegistryID string     `firestore:"registryId,omitempty"`
}

// endedAtOrFarFuture treats an open-ended game/session as extending forever
// for overlap purposes, per spec.
func endedAtOrFarFuture(t *time.Time) time.Time {
	if t == nil {
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return *t
}

// Adapter is the Firestore-backed catalog client.
type Adapter struct {
	client    *firestore.Client
	projectID string
}

// New constructs an Adapter authenticated from the given service-account
// credentials file, matching the GCP credential chain the teacher already
// exercises for its object-storage client.
func New(ctx context.Context, projectID, credentialsFile string) (*Adapter, error) {
	client, err := firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, corerr.Fatal("catalog.new", err)
	}
	return &Adapter{client: client, projectID: projectID}, nil
}

// Close releases the underlying Firestore client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// CreateSession writes an initial recording-sessions document with
// state=recording and no end timestamp.
func (a *Adapter) CreateSession(ctx context.Context, deviceID, angle, segmentSession, interfaceID, cameraIP string) (string, error) {
	ref := a.client.Collection(sessionsCollection).NewDoc()
	session := Session{
		DeviceID:       deviceID,
		Angle:          angle,
		SegmentSession: segmentSession,
		InterfaceID:    interfaceID,
		CameraIP:       cameraIP,
		State:          SessionRecording,
		StartedAt:      time.Now().UTC(),
		ProcessedGames: []ProcessedGame{},
	}
	if _, err := ref.Set(ctx, session); err != nil {
		return "", corerr.CatalogUnavailable("catalog.createSession", err)
	}
	log.Info("session created", "sessionId", ref.ID, "segmentSession", segmentSession)
	return ref.ID, nil
}

// FinalizeSession transitions a session to stopped, recording the chapters
// it produced so ingest can locate them without re-listing the camera.
func (a *Adapter) FinalizeSession(ctx context.Context, sessionID string, endedAt time.Time, chapters []ChapterRef) error {
	var totalBytes int64
	for _, c := range chapters {
		totalBytes += c.SizeBytes
	}
	ref := a.client.Collection(sessionsCollection).Doc(sessionID)
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "state", Value: SessionStopped},
		{Path: "endedAt", Value: endedAt.UTC()},
		{Path: "chapters", Value: chapters},
		{Path: "totalChapters", Value: len(chapters)},
		{Path: "totalBytes", Value: totalBytes},
	})
	if err != nil {
		return corerr.CatalogUnavailable("catalog.finalizeSession", err)
	}
	return nil
}

// UpdateSessionState sets a session's lifecycle state.
func (a *Adapter) UpdateSessionState(ctx context.Context, sessionID string, state SessionState) error {
	ref := a.client.Collection(sessionsCollection).Doc(sessionID)
	_, err := ref.Update(ctx, []firestore.Update{{Path: "state", Value: state}})
	if err != nil {
		return corerr.CatalogUnavailable("catalog.updateSessionState", err)
	}
	return nil
}

// SetSessionS3Prefix sets s3Prefix exactly once; subsequent calls are a
// no-op success, preserving the "set at most once" invariant.
func (a *Adapter) SetSessionS3Prefix(ctx context.Context, sessionID, prefix string) error {
	ref := a.client.Collection(sessionsCollection).Doc(sessionID)
	snap, err := ref.Get(ctx)
	if err != nil {
		return corerr.CatalogUnavailable("catalog.setSessionS3Prefix", err)
	}
	var existing Session
	if err := snap.DataTo(&existing); err != nil {
		return corerr.CatalogUnavailable("catalog.setSessionS3Prefix", err)
	}
	if existing.S3Prefix != "" {
		return nil
	}
	if _, err := ref.Update(ctx, []firestore.Update{{Path: "s3Prefix", Value: prefix}}); err != nil {
		return corerr.CatalogUnavailable("catalog.setSessionS3Prefix", err)
	}
	return nil
}

// AppendProcessedGame records a processed-game back-pointer using
// ArrayUnion, which guarantees no duplicate entries accumulate on retry.
func (a *Adapter) AppendProcessedGame(ctx context.Context, sessionID string, pg ProcessedGame) error {
	ref := a.client.Collection(sessionsCollection).Doc(sessionID)
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "processedGames", Value: firestore.ArrayUnion(pg)},
	})
	if err != nil {
		return corerr.CatalogUnavailable("catalog.appendProcessedGame", err)
	}
	return nil
}

// PendingUpload returns sessions for deviceID that are stopped, have no
// s3Prefix yet, and have at least one chapter.
func (a *Adapter) PendingUpload(ctx context.Context, deviceID string) ([]Session, error) {
	iter := a.client.Collection(sessionsCollection).
		Where("deviceId", "==", deviceID).
		Where("state", "==", string(SessionStopped)).
		Documents(ctx)
	defer iter.Stop()

	var out []Session
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, corerr.CatalogUnavailable("catalog.pendingUpload", err)
		}
		var s Session
		if err := doc.DataTo(&s); err != nil {
			return nil, corerr.CatalogUnavailable("catalog.pendingUpload", err)
		}
		if s.S3Prefix != "" || s.TotalChapters <= 0 {
			continue
		}
		s.ID = doc.Ref.ID
		out = append(out, s)
	}
	return out, nil
}

// GamesInTimeRange returns games overlapping [start, end], treating an
// unended game as open-ended.
func (a *Adapter) GamesInTimeRange(ctx context.Context, start, end time.Time) ([]Game, error) {
	iter := a.client.Collection(gamesCollection).
		Where("createdAt", "<=", end.UTC()).
		Documents(ctx)
	defer iter.Stop()

	var out []Game
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, corerr.CatalogUnavailable("catalog.gamesInTimeRange", err)
		}
		var g Game
		if err := doc.DataTo(&g); err != nil {
			return nil, corerr.CatalogUnavailable("catalog.gamesInTimeRange", err)
		}
		if endedAtOrFarFuture(g.EndedAt).Before(start.UTC()) {
			continue
		}
		g.ID = doc.Ref.ID
		out = append(out, g)
	}
	return out, nil
}

// MarkGameSynced records the registry id a game was registered under.
func (a *Adapter) MarkGameSynced(ctx context.Context, gameID, registryID string) error {
	ref := a.client.Collection(gamesCollection).Doc(gameID)
	_, err := ref.Update(ctx, []firestore.Update{{Path: "registryId", Value: registryID}})
	if err != nil {
		return corerr.CatalogUnavailable("catalog.markGameSynced", err)
	}
	return nil
}

// FindBySegmentSession looks up a session document by its segmentSession
// field, so a caller can check for an existing session before creating one.
func (a *Adapter) FindBySegmentSession(ctx context.Context, segmentSession string) (*Session, error) {
	iter := a.client.Collection(sessionsCollection).
		Where("segmentSession", "==", segmentSession).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, corerr.CatalogUnavailable("catalog.findBySegmentSession", err)
	}
	var s Session
	if err := doc.DataTo(&s); err != nil {
		return nil, corerr.CatalogUnavailable("catalog.findBySegmentSession", err)
	}
	s.ID = doc.Ref.ID
	return &s, nil
}
