// Package registry is a token-authenticated REST client against the
// external video-metadata service where FL/FR deliverables are registered.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/httputil"
	"github.com/hoopcam/edgectl/internal/logging"
)

var log = logging.L("registry")

// refreshWindow is how far ahead of expiry a token is proactively refreshed,
// mirroring the teacher's websocket reconnect-before-drop idiom applied here
// to token refresh instead of socket reconnect.
const refreshWindow = 60 * time.Second

// Angle is the registry's own vocabulary for an FL/FR deliverable.
type Angle string

const (
	AngleLeft  Angle = "LEFT"
	AngleRight Angle = "RIGHT"
)

// AngleFor maps the camera's internal angle code to the registry's
// vocabulary. Only FL/FR deliverables are ever registered.
func AngleFor(cameraAngle string) (Angle, error) {
	switch cameraAngle {
	case "FL":
		return AngleLeft, nil
	case "FR":
		return AngleRight, nil
	default:
		return "", fmt.Errorf("angle %q is not registrable (only FL/FR deliverables are synced)", cameraAngle)
	}
}

type token struct {
	value  string
	expiry time.Time
}

// Team is one entry from the registry's team listing.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Game is the registry's own game record, distinct from the catalog's.
type Game struct {
	ID            string `json:"id"`
	CatalogGameID string `json:"firebase_game_id"`
	HomeTeamID    string `json:"home_team_id"`
	AwayTeamID    string `json:"away_team_id"`
}

// Adapter is the registry's REST client.
type Adapter struct {
	baseURL  string
	email    string
	password string
	client   *http.Client

	mu  sync.Mutex
	tok *token
}

// New constructs an Adapter. Authentication happens lazily on first use.
func New(baseURL, email, password string) *Adapter {
	return &Adapter{
		baseURL:  baseURL,
		email:    email,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

var retryConfig = httputil.DefaultRetryConfig()

// Authenticate exchanges credentials for a bearer token and its expiry.
func (a *Adapter) Authenticate(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(map[string]string{"email": a.email, "password": a.password})
	if err != nil {
		return "", time.Time{}, corerr.Fatal("registry.authenticate", err)
	}

	resp, err := httputil.Do(ctx, a.client, http.MethodPost, a.baseURL+"/api/v1/auth/login", body,
		http.Header{"Content-Type": []string{"application/json"}}, retryConfig)
	if err != nil {
		return "", time.Time{}, corerr.Transient("registry.authenticate", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", time.Time{}, corerr.Transient("registry.authenticate", err)
	}

	expiry := time.Now().Add(time.Duration(decoded.ExpiresIn) * time.Second)
	return decoded.Token, expiry, nil
}

// validToken returns a cached token, refreshing it if absent or within
// refreshWindow of expiry.
func (a *Adapter) validToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tok != nil && time.Until(a.tok.expiry) > refreshWindow {
		return a.tok.value, nil
	}

	value, expiry, err := a.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	a.tok = &token{value: value, expiry: expiry}
	log.Info("registry token refreshed", "expiresAt", expiry)
	return value, nil
}

func (a *Adapter) authed(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	tok, err := a.validToken(ctx)
	if err != nil {
		return nil, err
	}
	headers := http.Header{
		"Authorization": []string{"Bearer " + tok},
		"Content-Type":  []string{"application/json"},
	}
	return httputil.Do(ctx, a.client, method, a.baseURL+path, body, headers, retryConfig)
}

// GetGameByCatalogID looks up a registry game by its source-catalog id.
func (a *Adapter) GetGameByCatalogID(ctx context.Context, catalogGameID string) (*Game, error) {
	resp, err := a.authed(ctx, http.MethodGet, "/api/v1/games?firebase_game_id="+catalogGameID, nil)
	if err != nil {
		return nil, corerr.Transient("registry.getGameByCatalogId", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	var games []Game
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return nil, corerr.Transient("registry.getGameByCatalogId", err)
	}
	if len(games) == 0 {
		return nil, nil
	}
	return &games[0], nil
}

// CreateGame registers a new game in the registry.
func (a *Adapter) CreateGame(ctx context.Context, catalogGameID, homeTeamID, awayTeamID string) (*Game, error) {
	payload, err := json.Marshal(map[string]string{
		"firebase_game_id": catalogGameID,
		"home_team_id":     homeTeamID,
		"away_team_id":     awayTeamID,
	})
	if err != nil {
		return nil, corerr.Fatal("registry.createGame", err)
	}

	resp, err := a.authed(ctx, http.MethodPost, "/api/v1/games", payload)
	if err != nil {
		return nil, corerr.Transient("registry.createGame", err)
	}
	defer resp.Body.Close()

	var game Game
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return nil, corerr.Transient("registry.createGame", err)
	}
	return &game, nil
}

// ListTeams returns every team known to the registry.
func (a *Adapter) ListTeams(ctx context.Context) ([]Team, error) {
	resp, err := a.authed(ctx, http.MethodGet, "/api/v1/teams", nil)
	if err != nil {
		return nil, corerr.Transient("registry.listTeams", err)
	}
	defer resp.Body.Close()

	var teams []Team
	if err := json.NewDecoder(resp.Body).Decode(&teams); err != nil {
		return nil, corerr.Transient("registry.listTeams", err)
	}
	return teams, nil
}

// RegisterVideo records a completed deliverable against a registry game.
func (a *Adapter) RegisterVideo(ctx context.Context, gameID, s3Key string, angle Angle, filename string, fileSize int64) error {
	payload, err := json.Marshal(map[string]any{
		"game_id":   gameID,
		"s3_key":    s3Key,
		"angle":     angle,
		"filename":  filename,
		"file_size": fileSize,
	})
	if err != nil {
		return corerr.Fatal("registry.registerVideo", err)
	}

	resp, err := a.authed(ctx, http.MethodPost, "/api/v1/videos", payload)
	if err != nil {
		return corerr.Transient("registry.registerVideo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return corerr.Transient("registry.registerVideo", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}
	return nil
}
