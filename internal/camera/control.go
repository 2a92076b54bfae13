package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/httputil"
)

// controlRetryConfig is intentionally short: the camera is on a direct
// point-to-point link, so a failure after a couple of attempts means the
// camera refused or dropped off, not a transient network blip worth chasing.
var controlRetryConfig = httputil.RetryConfig{
	MaxRetries:    2,
	InitialDelay:  250 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	JitterFrac:    0.2,
}

type cameraState struct {
	Status map[string]json.RawMessage `json:"status"`
}

// friendlyName extracts the advertised SSID, held at status key "30".
func (s cameraState) friendlyName() string {
	raw, ok := s.Status["30"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}

func (a *Adapter) fetchState(ctx context.Context, ip string) (cameraState, error) {
	url := fmt.Sprintf("http://%s:%d/gopro/camera/state", ip, statePort)
	body, err := a.getJSON(ctx, url)
	if err != nil {
		return cameraState{}, err
	}
	var state cameraState
	if err := json.Unmarshal(body, &state); err != nil {
		return cameraState{}, fmt.Errorf("decode camera state: %w", err)
	}
	return state, nil
}

// GetFriendlyName re-reads the camera's advertised SSID.
func (a *Adapter) GetFriendlyName(ctx context.Context, cam Camera) (string, error) {
	state, err := a.fetchState(ctx, cam.IPAddress)
	if err != nil {
		return "", corerr.Transient("camera.getFriendlyName", err)
	}
	return state.friendlyName(), nil
}

// EnableControl enables USB wired control on the camera so subsequent
// control endpoints are accepted.
func (a *Adapter) EnableControl(ctx context.Context, cam Camera) error {
	url := fmt.Sprintf("http://%s:%d/gopro/camera/control/wired_usb?p=1", cam.IPAddress, statePort)
	if _, err := a.getJSON(ctx, url); err != nil {
		return corerr.CameraRefused("camera.enableControl", err)
	}
	return nil
}

// SetVideoPreset switches the camera to the video preset group, the only
// group this system ever arms.
func (a *Adapter) SetVideoPreset(ctx context.Context, cam Camera) error {
	url := fmt.Sprintf("http://%s:%d/gopro/camera/presets/set_group?id=1000", cam.IPAddress, statePort)
	if _, err := a.getJSON(ctx, url); err != nil {
		return corerr.CameraRefused("camera.setVideoPreset", err)
	}
	return nil
}

// StopRecording requests the camera stop its current recording.
func (a *Adapter) StopRecording(ctx context.Context, cam Camera) error {
	url := fmt.Sprintf("http://%s:%d/gopro/camera/shutter/stop", cam.IPAddress, statePort)
	if _, err := a.getJSON(ctx, url); err != nil {
		return corerr.CameraRefused("camera.stopRecording", err)
	}
	return nil
}

// KeepAlive pings the camera's liveness endpoint. Callers run this from a
// dedicated cooperative task every 30 seconds during an active transfer.
func (a *Adapter) KeepAlive(ctx context.Context, cam Camera) error {
	url := fmt.Sprintf("http://%s:%d/gopro/camera/keep_alive", cam.IPAddress, statePort)
	if _, err := a.getJSON(ctx, url); err != nil {
		return corerr.Transient("camera.keepAlive", err)
	}
	return nil
}

// DeleteAll bulk-deletes everything on the camera's storage. Called only
// after the orchestrator has confirmed a session's chapters are durably
// ingested.
func (a *Adapter) DeleteAll(ctx context.Context, cam Camera) error {
	url := fmt.Sprintf("http://%s:%d/gopro/media/delete/all", cam.IPAddress, statePort)
	if _, err := a.getJSON(ctx, url); err != nil {
		return corerr.Transient("camera.deleteAll", err)
	}
	return nil
}

type mediaListResponse struct {
	Media []mediaDirectory `json:"media"`
}

type mediaDirectory struct {
	Directory string     `json:"d"`
	Files     []mediaFile `json:"fs"`
}

type mediaFile struct {
	Name      string `json:"n"`
	SizeBytes string `json:"s"`
	CreatedAt string `json:"cre"`
	ModifiedAt string `json:"mod"`
}

// ListMedia enumerates every chapter currently on the camera's storage.
func (a *Adapter) ListMedia(ctx context.Context, cam Camera) ([]Chapter, error) {
	url := fmt.Sprintf("http://%s:%d/gopro/media/list", cam.IPAddress, statePort)
	body, err := a.getJSON(ctx, url)
	if err != nil {
		return nil, corerr.Transient("camera.listMedia", err)
	}

	var resp mediaListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, corerr.Transient("camera.listMedia", fmt.Errorf("decode media list: %w", err))
	}

	var chapters []Chapter
	for _, dir := range resp.Media {
		for _, f := range dir.Files {
			chapters = append(chapters, Chapter{
				Directory:  dir.Directory,
				Filename:   f.Name,
				SizeBytes:  parseCameraEpoch(f.SizeBytes),
				CreatedAt:  epochToTime(parseCameraEpoch(f.CreatedAt)),
				ModifiedAt: epochToTime(parseCameraEpoch(f.ModifiedAt)),
			})
		}
	}

	SortChapters(chapters)
	return chapters, nil
}

// DiffChapterSet returns the chapters present in after but not in before, by
// (directory, filename) identity, preserving after's order. It is the
// recording controller's mechanism for detecting the post-recording chapter
// set by pre/post directory diff.
func DiffChapterSet(before, after []Chapter) []Chapter {
	seen := make(map[string]bool, len(before))
	for _, c := range before {
		seen[c.Directory+"/"+c.Filename] = true
	}
	var added []Chapter
	for _, c := range after {
		if !seen[c.Directory+"/"+c.Filename] {
			added = append(added, c)
		}
	}
	return added
}

func (a *Adapter) getJSON(ctx context.Context, url string) ([]byte, error) {
	resp, err := httputil.Do(ctx, a.client, http.MethodGet, url, nil, nil, controlRetryConfig)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return body, nil
}

func parseCameraEpoch(s string) int64 {
	var n int64
	fmt.Sscanf(s, "%d", &n)
	return n
}

func epochToTime(epoch int64) time.Time {
	if epoch <= 0 {
		return time.Time{}
	}
	return time.Unix(epoch, 0).UTC()
}
