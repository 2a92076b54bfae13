package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunStatus is the terminal-or-in-progress status of a pipeline run.
type RunStatus string

const (
	RunStarted              RunStatus = "started"
	RunCompleted            RunStatus = "completed"
	RunCompletedWithErrors  RunStatus = "completed_with_errors"
	RunFailed               RunStatus = "failed"
)

// SessionUploadState is one session's ingest progress within a run.
type SessionUploadState struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

// AngleState is one game-angle's encode progress within a run.
type AngleState struct {
	JobID     string `json:"jobId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// GameState is one game's processing progress within a run.
type GameState struct {
	GameID string                 `json:"gameId"`
	Status string                 `json:"status"`
	Angles map[string]*AngleState `json:"angles"`
}

// RunState is the persisted document describing a pipeline run. Store.Save
// writes it atomically (write-to-temp-then-rename); the orchestrator saves it
// at each phase boundary, not after every individual session or game update,
// so the file on disk can lag the in-memory state within a phase.
type RunState struct {
	PipelineID        string                          `json:"pipeline_id"`
	JetsonID          string                           `json:"jetson_id"`
	Status            RunStatus                       `json:"status"`
	Phase             string                           `json:"phase"`
	CreatedAt         time.Time                        `json:"created_at"`
	UpdatedAt         time.Time                        `json:"updated_at"`
	ProgressPercent   int                              `json:"progress_percent"`
	SessionUploads    map[string]*SessionUploadState   `json:"session_uploads"`
	Games             map[string]*GameState            `json:"games"`
	TotalSessions     int                              `json:"total_sessions"`
	SessionsCompleted int                              `json:"sessions_completed"`
	SessionsSkippedUnk int                             `json:"sessions_skipped_unk"`
	TotalGames        int                              `json:"total_games"`
	GamesCompleted    int                              `json:"games_completed"`
	Errors            []string                         `json:"errors"`
}

// Store persists RunState documents under a directory, one file per run id.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore builds a Store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Save writes state atomically: marshal, write to a temp file in the same
// directory, then rename over the target path.
func (s *Store) Save(state *RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	target := s.path(state.PipelineID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write run state temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename run state into place: %w", err)
	}
	return nil
}

// Load reads a run's persisted state.
func (s *Store) Load(runID string) (*RunState, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return nil, err
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &state, nil
}

// newRunState builds a fresh RunState for a new run.
func newRunState(runID, jetsonID string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		PipelineID:     runID,
		JetsonID:       jetsonID,
		Status:         RunStarted,
		Phase:          "normalize",
		CreatedAt:      now,
		UpdatedAt:      now,
		SessionUploads: make(map[string]*SessionUploadState),
		Games:          make(map[string]*GameState),
	}
}
