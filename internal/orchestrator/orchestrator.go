// Package orchestrator drives the five-phase pipeline run that turns raw
// on-camera chapters into registered, game-aligned deliverables: normalise
// inputs, ingest chapters, discover games, plan and submit encode jobs, then
// await, register, and clean up.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hoopcam/edgectl/internal/camera"
	"github.com/hoopcam/edgectl/internal/catalog"
	"github.com/hoopcam/edgectl/internal/clipplan"
	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/encode"
	"github.com/hoopcam/edgectl/internal/health"
	"github.com/hoopcam/edgectl/internal/ingest"
	"github.com/hoopcam/edgectl/internal/logging"
	"github.com/hoopcam/edgectl/internal/registry"
	"github.com/hoopcam/edgectl/internal/workerpool"
)

var log = logging.L("orchestrator")

// progress milestones, carried literally from the design the pipeline was
// specified against: normalise 0-5, ingest 5-40, discover 40-45, process
// 50-90, await 90-95, cleanup 95-100. The 45-50 gap is intentional; nothing
// runs during the window between discovery completing and per-game
// submission starting its own bookkeeping.
const (
	progressStart          = 0
	progressNormalisedDone = 5
	progressIngestDone     = 40
	progressDiscoverDone   = 45
	progressProcessDone    = 90
	progressAwaitDone      = 95
	progressDone           = 100
)

// Options configures one orchestrator instance.
type Options struct {
	JetsonID             string
	DeviceID             string
	Court                string
	MaxConcurrentIngests int
	DownloadConfig       ingest.DownloadConfig
	AutoDeleteSD         bool
	OutputBucket         string
	AwaitTimeout         time.Duration
	AwaitPollInterval    time.Duration
}

// Orchestrator wires every adapter the pipeline touches and drives one run
// at a time to completion.
type Orchestrator struct {
	opts     Options
	store    *Store
	catalog  *catalog.Adapter
	camera   *camera.Adapter
	engine   *ingest.Engine
	encode   *encode.Adapter
	registry *registry.Adapter
	health   *health.Monitor
}

// New builds an Orchestrator from its already-constructed adapters.
func New(opts Options, store *Store, catalogAdapter *catalog.Adapter, cameraAdapter *camera.Adapter, engine *ingest.Engine, encodeAdapter *encode.Adapter, registryAdapter *registry.Adapter) *Orchestrator {
	if opts.AwaitTimeout == 0 {
		opts.AwaitTimeout = 2 * time.Hour
	}
	if opts.AwaitPollInterval == 0 {
		opts.AwaitPollInterval = 30 * time.Second
	}
	if opts.MaxConcurrentIngests == 0 {
		opts.MaxConcurrentIngests = 4
	}
	return &Orchestrator{
		opts:     opts,
		store:    store,
		catalog:  catalogAdapter,
		camera:   cameraAdapter,
		engine:   engine,
		encode:   encodeAdapter,
		registry: registryAdapter,
		health:   health.NewMonitor(),
	}
}

// Health returns the orchestrator's component health monitor, queried by
// the operator-facing HTTP surface this package doesn't itself expose.
func (o *Orchestrator) Health() *health.Monitor {
	return o.health
}

// Run executes the full pipeline for one run id against whatever sessions
// are currently pending upload for the configured device.
func (o *Orchestrator) Run(ctx context.Context, runID string) (*RunState, error) {
	runLog := logging.WithRun(log, runID)
	state := newRunState(runID, o.opts.JetsonID)
	o.save(state)
	o.health.Update("pipeline_run", health.Healthy, "run started")

	defer func() {
		if r := recover(); r != nil {
			state.Status = RunFailed
			state.Errors = append(state.Errors, fmt.Sprintf("fatal: %v", r))
			o.health.Update("pipeline_run", health.Unhealthy, fmt.Sprintf("fatal: %v", r))
			o.save(state)
		}
	}()

	sessions, err := o.catalog.PendingUpload(ctx, o.opts.DeviceID)
	if err != nil {
		state.Status = RunFailed
		state.Errors = append(state.Errors, err.Error())
		o.health.Update("catalog", health.Degraded, err.Error())
		o.save(state)
		return state, err
	}
	runLog.Info("pending sessions fetched", "count", len(sessions))

	recStart, recEnd, normalised := o.normalise(state, sessions)
	state.TotalSessions = len(normalised)
	state.Phase = "ingest"
	state.ProgressPercent = progressNormalisedDone
	o.save(state)

	if len(normalised) == 0 {
		state.Status = o.finalStatus(state)
		state.ProgressPercent = progressDone
		o.save(state)
		return state, nil
	}

	o.ingestSessions(ctx, state, normalised)
	state.ProgressPercent = progressIngestDone
	o.save(state)

	state.Phase = "discover"
	games, err := o.catalog.GamesInTimeRange(ctx, recStart, recEnd)
	if err != nil {
		state.Errors = append(state.Errors, corerr.CatalogUnavailable("orchestrator.discover", err).Error())
		o.health.Update("catalog", health.Degraded, err.Error())
	}
	state.TotalGames = len(games)
	runLog.Info("games discovered", "count", len(games))
	state.ProgressPercent = progressDiscoverDone
	o.save(state)

	if len(games) == 0 {
		state.Status = o.finalStatus(state)
		state.ProgressPercent = progressDone
		o.save(state)
		return state, nil
	}

	state.Phase = "process"
	jobsByGame := o.processGames(ctx, state, games, normalised)
	state.ProgressPercent = progressProcessDone
	o.save(state)

	state.Phase = "await"
	o.awaitAndRegister(ctx, state, games, jobsByGame)
	state.ProgressPercent = progressAwaitDone
	o.save(state)

	state.Phase = "cleanup"
	if o.opts.AutoDeleteSD && state.GamesCompleted >= state.TotalGames {
		o.cleanupCameras(ctx, normalised)
	}

	state.Status = o.finalStatus(state)
	state.ProgressPercent = progressDone
	o.save(state)
	if state.Status == RunFailed {
		o.health.Update("pipeline_run", health.Unhealthy, "run failed")
	} else if state.Status == RunCompletedWithErrors {
		o.health.Update("pipeline_run", health.Degraded, "run completed with errors")
	} else {
		o.health.Update("pipeline_run", health.Healthy, "run completed")
	}
	runLog.Info("run finished", "status", state.Status, "sessionsCompleted", state.SessionsCompleted, "gamesCompleted", state.GamesCompleted)
	return state, nil
}

// RecoverPending re-scans the catalog for sessions left in pendingUpload
// state by a crash or restart and drives them through a fresh run, so an
// interrupted pipeline is not abandoned until an operator notices.
func (o *Orchestrator) RecoverPending(ctx context.Context) (*RunState, error) {
	runID := fmt.Sprintf("recovery-%s-%d", o.opts.JetsonID, time.Now().UTC().Unix())
	log.Info("recovering pending sessions into a fresh run", "runId", runID)
	return o.Run(ctx, runID)
}

func (o *Orchestrator) save(state *RunState) {
	if err := o.store.Save(state); err != nil {
		log.Error("failed to persist run state", "runId", state.PipelineID, "error", err)
	}
}

func (o *Orchestrator) finalStatus(state *RunState) RunStatus {
	if len(state.Errors) == 0 && state.SessionsSkippedUnk == 0 {
		return RunCompleted
	}
	return RunCompletedWithErrors
}

// normalise drops UNK-angle sessions and computes the recording window that
// bounds the rest of the run.
func (o *Orchestrator) normalise(state *RunState, sessions []catalog.Session) (time.Time, time.Time, []catalog.Session) {
	var recStart, recEnd time.Time
	var kept []catalog.Session

	for _, s := range sessions {
		if s.Angle == "" || s.Angle == "UNK" {
			log.Info("skipping session with unrecognised camera angle", "sessionId", s.ID, "interfaceId", s.InterfaceID)
			state.SessionsSkippedUnk++
			continue
		}
		kept = append(kept, s)
		if recStart.IsZero() || s.StartedAt.Before(recStart) {
			recStart = s.StartedAt
		}
		end := s.StartedAt
		if s.EndedAt != nil {
			end = *s.EndedAt
		}
		if end.After(recEnd) {
			recEnd = end
		}
	}
	return recStart, recEnd, kept
}

// ingestSessions transfers every session's chapters, bounding concurrency to
// one in-flight transfer per camera via a worker per distinct interface.
func (o *Orchestrator) ingestSessions(ctx context.Context, state *RunState, sessions []catalog.Session) {
	pools := make(map[string]*workerpool.Pool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	poolFor := func(interfaceID string) *workerpool.Pool {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := pools[interfaceID]; ok {
			return p
		}
		p := workerpool.New(1, len(sessions))
		pools[interfaceID] = p
		return p
	}

	for _, s := range sessions {
		s := s
		state.SessionUploads[s.ID] = &SessionUploadState{SessionID: s.ID, State: "pending"}
		wg.Add(1)
		poolFor(s.InterfaceID).Submit(func() {
			defer wg.Done()
			o.ingestOneSession(ctx, state, s)
		})
	}

	for _, p := range pools {
		p.StopAccepting()
	}
	wg.Wait()
	for _, p := range pools {
		p.Drain(ctx)
	}
}

func (o *Orchestrator) ingestOneSession(ctx context.Context, state *RunState, s catalog.Session) {
	upload := state.SessionUploads[s.ID]

	if s.S3Prefix != "" {
		upload.State = "skipped_already_uploaded"
		state.SessionsCompleted++
		return
	}

	prefix := fmt.Sprintf("raw-chapters/%s", s.SegmentSession)
	var totalBytes int64
	for i, chapter := range s.Chapters {
		key := ingest.ChapterKey(s.SegmentSession, i+1, chapter.Filename)
		sourceURL := fmt.Sprintf("http://%s:8080/videos/DCIM/%s/%s", s.CameraIP, chapter.Directory, chapter.Filename)

		err := o.engine.IngestChapter(ctx, sourceURL, key, chapter.SizeBytes, nil)
		if err != nil {
			category := corerr.CategoryOf(err)
			upload.Error = err.Error()
			upload.State = string(category)
			state.Errors = append(state.Errors, fmt.Sprintf("session %s chapter %s: %v", s.ID, chapter.Filename, err))
			if category == corerr.CategoryFatal {
				return
			}
			continue
		}
		totalBytes += chapter.SizeBytes
	}

	if err := o.catalog.SetSessionS3Prefix(ctx, s.ID, prefix); err != nil {
		upload.Error = err.Error()
		state.Errors = append(state.Errors, fmt.Sprintf("session %s: %v", s.ID, err))
		return
	}
	if err := o.catalog.UpdateSessionState(ctx, s.ID, catalog.SessionUploaded); err != nil {
		log.Warn("failed to mark session uploaded", "sessionId", s.ID, "error", err)
	}

	upload.State = "uploaded"
	state.SessionsCompleted++
}

// processGames plans and submits one encode job per angle per game. It
// returns the submitted job ids grouped by game id.
func (o *Orchestrator) processGames(ctx context.Context, state *RunState, games []catalog.Game, sessions []catalog.Session) map[string]map[string]string {
	byAngle := make(map[string][]catalog.Session)
	for _, s := range sessions {
		byAngle[s.Angle] = append(byAngle[s.Angle], s)
	}

	jobsByGame := make(map[string]map[string]string)

	for _, g := range games {
		gs := &GameState{GameID: g.ID, Status: "processing", Angles: make(map[string]*AngleState)}
		state.Games[g.ID] = gs
		jobsByGame[g.ID] = make(map[string]string)
		gameEnd := g.CreatedAt.Add(2 * time.Hour)
		if g.EndedAt != nil {
			gameEnd = *g.EndedAt
		}

		for angle, angleSessions := range byAngle {
			session := latestUploadedSession(angleSessions)
			if session == nil {
				continue
			}

			chapters := make([]clipplan.Chapter, 0, len(session.Chapters))
			for i, c := range session.Chapters {
				key := ingest.ChapterKey(session.SegmentSession, i+1, c.Filename)
				chapters = append(chapters, clipplan.Chapter{Key: key})
			}

			plan, err := clipplan.Plan(g.CreatedAt, gameEnd, session.StartedAt, chapters)
			if err != nil {
				gs.Angles[angle] = &AngleState{Status: "corrupted", Error: err.Error()}
				state.Errors = append(state.Errors, fmt.Sprintf("game %s angle %s: %v", g.ID, angle, err))
				continue
			}

			outputKey := clipplan.DeliverableKey(o.opts.Court, g.CreatedAt, g.ID, angle)
			outputURI := fmt.Sprintf("s3://%s/%s", o.opts.OutputBucket, outputKey)

			chapterKeys := make([]string, len(plan.Chapters))
			var inputSize int64
			for i, c := range plan.Chapters {
				chapterKeys[i] = c.Key
			}
			for _, c := range session.Chapters {
				inputSize += c.SizeBytes
			}

			jobID, err := o.encode.Submit(ctx, encode.SubmitInput{
				GameID:           g.ID,
				Angle:            angle,
				ChapterKeys:      chapterKeys,
				InputSizeBytes:   inputSize,
				OffsetSeconds:    int64(plan.RelativeOffset.Seconds()),
				DurationSeconds:  int64(plan.Duration.Seconds()),
				AddBufferSeconds: int64(clipplan.ClipBuffer.Seconds()),
				OutputS3URI:      outputURI,
			})
			if err != nil {
				gs.Angles[angle] = &AngleState{Status: "failed", Error: err.Error()}
				state.Errors = append(state.Errors, fmt.Sprintf("game %s angle %s submit: %v", g.ID, angle, err))
				continue
			}

			gs.Angles[angle] = &AngleState{JobID: jobID, SessionID: session.ID, Status: string(encode.StatusSubmitted)}
			jobsByGame[g.ID][angle] = jobID
		}
	}

	return jobsByGame
}

func latestUploadedSession(sessions []catalog.Session) *catalog.Session {
	var best *catalog.Session
	for i := range sessions {
		s := &sessions[i]
		if s.S3Prefix == "" {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	return best
}

// awaitAndRegister polls every submitted job to a terminal state, registers
// FL/FR successes in the video registry, and updates per-game status.
func (o *Orchestrator) awaitAndRegister(ctx context.Context, state *RunState, games []catalog.Game, jobsByGame map[string]map[string]string) {
	for i, g := range games {
		gameNumber := i + 1
		gs := state.Games[g.ID]
		succeeded := 0
		attempted := len(jobsByGame[g.ID])

		for angle, jobID := range jobsByGame[g.ID] {
			desc, err := o.encode.Wait(ctx, jobID, o.opts.AwaitTimeout, o.opts.AwaitPollInterval)
			angleState := gs.Angles[angle]
			if err != nil {
				angleState.Status = "failed"
				angleState.Error = err.Error()
				state.Errors = append(state.Errors, fmt.Sprintf("game %s angle %s await: %v", g.ID, angle, err))
				continue
			}
			angleState.Status = string(desc.Status)
			if desc.Status != encode.StatusSucceeded {
				angleState.Error = desc.Reason
				continue
			}

			succeeded++
			if err := o.registerIfRegistrable(ctx, g, angle, gameNumber, angleState.SessionID); err != nil {
				angleState.Error = err.Error()
				state.Errors = append(state.Errors, fmt.Sprintf("game %s angle %s register: %v", g.ID, angle, err))
			}
		}

		switch {
		case succeeded == 0 && attempted > 0:
			gs.Status = "corrupted"
		case succeeded < attempted:
			gs.Status = "partial"
		default:
			gs.Status = "completed"
		}
		if gs.Status == "completed" || gs.Status == "partial" {
			state.GamesCompleted++
		}
	}
}

// registerIfRegistrable registers a deliverable in the video registry for
// FL/FR angles only (NL/NR are never rendered in this fleet), then appends a
// processed-game back-pointer onto the session whose footage fed the clip.
func (o *Orchestrator) registerIfRegistrable(ctx context.Context, g catalog.Game, angle string, gameNumber int, sessionID string) error {
	regAngle, err := registry.AngleFor(angle)
	if err != nil {
		return nil
	}
	registryGameID, err := o.ensureRegistryGame(ctx, g)
	if err != nil {
		return err
	}
	key := clipplan.DeliverableKey(o.opts.Court, g.CreatedAt, g.ID, angle)
	filename := fmt.Sprintf("%s_%s_%s.mp4", g.CreatedAt.Format("2006-01-02"), clipplan.GameFolder(g.ID), angle)

	size, err := o.engine.Size(ctx, key)
	if err != nil {
		log.Warn("failed to look up deliverable size, registering with size 0", "key", key, "error", err)
	}

	if err := o.registry.RegisterVideo(ctx, registryGameID, key, regAngle, filename, size); err != nil {
		return err
	}

	if sessionID == "" {
		return nil
	}
	pg := catalog.ProcessedGame{GameID: g.ID, GameNumber: gameNumber, Filename: filename, Key: key}
	if err := o.catalog.AppendProcessedGame(ctx, sessionID, pg); err != nil {
		log.Warn("failed to append processed-game back-pointer", "sessionId", sessionID, "gameId", g.ID, "error", err)
	}
	return nil
}

// ensureRegistryGame resolves the registry's own game id for g, creating the
// registry-side game record on first reference and recording the link back
// in the catalog so later calls skip straight to the lookup.
func (o *Orchestrator) ensureRegistryGame(ctx context.Context, g catalog.Game) (string, error) {
	if g.RegistryID != "" {
		return g.RegistryID, nil
	}

	existing, err := o.registry.GetGameByCatalogID(ctx, g.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		o.markSynced(ctx, g.ID, existing.ID)
		return existing.ID, nil
	}

	created, err := o.registry.CreateGame(ctx, g.ID, g.HomeTeam, g.AwayTeam)
	if err != nil {
		return "", err
	}
	o.markSynced(ctx, g.ID, created.ID)
	return created.ID, nil
}

func (o *Orchestrator) markSynced(ctx context.Context, gameID, registryID string) {
	if err := o.catalog.MarkGameSynced(ctx, gameID, registryID); err != nil {
		log.Warn("failed to record registry sync back to catalog", "gameId", gameID, "error", err)
	}
}

// cleanupCameras bulk-deletes on-camera media for every camera that
// contributed a session, once every game has finished processing and no
// jobs remain pending.
func (o *Orchestrator) cleanupCameras(ctx context.Context, sessions []catalog.Session) {
	seen := make(map[string]bool)
	for _, s := range sessions {
		if seen[s.InterfaceID] {
			continue
		}
		seen[s.InterfaceID] = true
		cam := camera.Camera{Interface: s.InterfaceID, IPAddress: s.CameraIP}
		if err := o.camera.DeleteAll(ctx, cam); err != nil {
			log.Warn("sd card cleanup failed", "interface", s.InterfaceID, "error", err)
		}
	}
}
