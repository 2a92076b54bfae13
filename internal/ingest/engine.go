package ingest

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hoopcam/edgectl/internal/corerr"
)

// ChapterStore is the subset of ObjectStore's behavior Engine depends on.
// *ObjectStore satisfies it; tests substitute an in-memory fake.
type ChapterStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key string, body io.Reader) error
	Size(ctx context.Context, key string) (int64, error)
}

// Engine runs a single chapter through the full ingest contract: download
// from the camera (or stream directly), corrupted-container detection, and
// upload to object storage, skipping work already durably present.
type Engine struct {
	store    ChapterStore
	client   *http.Client
	cfg      DownloadConfig
	stageDir string
}

// NewEngine builds an Engine staging chapters under stageDir before upload.
// client should be built with NewDownloadClient(cfg.ConnectTimeout) so the
// connect-timeout half of the download contract is enforced at dial time.
func NewEngine(store ChapterStore, client *http.Client, cfg DownloadConfig, stageDir string) *Engine {
	return &Engine{store: store, client: client, cfg: cfg, stageDir: stageDir}
}

// IngestChapter downloads sourceURL to local disk, verifies the container is
// intact, and uploads it to key, skipping the download entirely if key is
// already present in object storage. The staged file is removed once the
// upload succeeds or once the chapter is confirmed corrupted.
func (e *Engine) IngestChapter(ctx context.Context, sourceURL, key string, expectedSize int64, report ProgressFunc) error {
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return corerr.Transient("ingest.exists", err)
	}
	if exists {
		log.Info("chapter already present in object storage, skipping download", "key", key)
		return nil
	}

	if err := os.MkdirAll(e.stageDir, 0755); err != nil {
		return corerr.Fatal("ingest.mkdirStage", err)
	}
	stagePath := filepath.Join(e.stageDir, sanitizeStageName(key))
	tracker := &monotonicCounter{}

	if err := downloadToDisk(ctx, e.client, sourceURL, stagePath, expectedSize, e.cfg, report, tracker); err != nil {
		return corerr.Transient("ingest.download", err)
	}

	f, err := os.Open(stagePath)
	if err != nil {
		return corerr.Fatal("ingest.reopenStaged", err)
	}
	defer f.Close()

	if err := ProbeContainer(f); err != nil {
		if rmErr := os.Remove(stagePath); rmErr != nil {
			log.Warn("failed to remove corrupted staged chapter", "path", stagePath, "error", rmErr)
		}
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return corerr.Fatal("ingest.seekStaged", err)
	}

	if err := e.store.Upload(ctx, key, f); err != nil {
		return corerr.Transient("ingest.upload", err)
	}

	if err := os.Remove(stagePath); err != nil {
		log.Warn("failed to remove staged chapter after upload", "path", stagePath, "error", err)
	}
	return nil
}

// Size returns the content length of an already-uploaded chapter or
// deliverable object, for callers that need the real transferred size rather
// than an expected or requested one.
func (e *Engine) Size(ctx context.Context, key string) (int64, error) {
	size, err := e.store.Size(ctx, key)
	if err != nil {
		return 0, corerr.Transient("ingest.size", err)
	}
	return size, nil
}

// StreamChapter pipes sourceURL's body directly into object storage without
// staging to disk, for deployments where local scratch space is scarce.
// Unlike IngestChapter, this path never has the complete file on local
// disk, so it cannot run the container probe: GoPro-style ISO-BMFF files
// place the moov box at the end of the stream, and ProbeContainer has to
// walk box headers sequentially from byte 0 to find it. Corruption
// detection on camera footage only ever runs against a fully staged file,
// matching how the original extraction pipeline only ever probed a local
// path, never a live connection.
func (e *Engine) StreamChapter(ctx context.Context, sourceURL, key string) error {
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return corerr.Transient("ingest.exists", err)
	}
	if exists {
		log.Info("chapter already present in object storage, skipping stream", "key", key)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return corerr.Fatal("ingest.buildStreamRequest", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return corerr.Transient("ingest.streamConnect", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return corerr.CameraRefused("ingest.streamConnect", io.EOF)
	}

	if err := e.store.Upload(ctx, key, resp.Body); err != nil {
		return corerr.Transient("ingest.upload", err)
	}
	return nil
}

func sanitizeStageName(key string) string {
	name := filepath.Base(key)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "chapter.mp4"
	}
	return name
}
