package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDownloadConfig() DownloadConfig {
	return DownloadConfig{
		ChunkSizeBytes: 1024,
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
		MaxRetries:     3,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestDownloadToDiskFullTransferInOneAttempt(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "chapter.mp4")

	var lastProgress Progress
	err := downloadToDisk(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), testDownloadConfig(), func(p Progress) {
		lastProgress = p
	}, &monotonicCounter{})
	if err != nil {
		t.Fatalf("downloadToDisk() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(got), len(payload))
	}
	if lastProgress.BytesTransferred != int64(len(payload)) {
		t.Fatalf("lastProgress.BytesTransferred = %d, want %d", lastProgress.BytesTransferred, len(payload))
	}
}

// flakyRangeServer serves a Range request but drops the connection partway
// through the first attempt, forcing the client to resume from where it left
// off on the second attempt.
func newFlakyRangeServer(t *testing.T, payload []byte) *httptest.Server {
	attempt := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		start := 0
		rangeHeader := r.Header.Get("Range")
		if rangeHeader != "" {
			if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &start); err != nil {
				t.Fatalf("malformed range header %q", rangeHeader)
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		remaining := payload[start:]
		if attempt == 1 {
			half := len(remaining) / 2
			w.Write(remaining[:half])
			return
		}
		w.Write(remaining)
	}))
}

func TestDownloadToDiskResumesAfterPartialWrite(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 20000)
	srv := newFlakyRangeServer(t, payload)
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "chapter.mp4")

	err := downloadToDisk(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), testDownloadConfig(), nil, &monotonicCounter{})
	if err != nil {
		t.Fatalf("downloadToDisk() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("resumed download length = %d, want %d", len(got), len(payload))
	}
}

func TestDownloadToDiskPreservesPartialFileAcrossFailedAttempts(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 5000)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write(payload[:1000])
			return
		}
		start := 1000
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start:])
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "chapter.mp4")

	cfg := testDownloadConfig()
	cfg.MaxRetries = 1
	err := downloadToDisk(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload)), cfg, nil, &monotonicCounter{})
	if err != nil {
		t.Fatalf("downloadToDisk() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("final file length = %d, want %d (partial bytes should have been retained between attempts)", len(got), len(payload))
	}
}

func TestDownloadToDiskStopsAtRangeNotSatisfiableWhenAlreadyComplete(t *testing.T) {
	payload := []byte("complete-already")
	dir := t.TempDir()
	dest := filepath.Join(dir, "chapter.mp4")
	if err := os.WriteFile(dest, payload, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	err := downloadToDisk(context.Background(), srv.Client(), srv.URL, dest, int64(len(payload))+100, testDownloadConfig(), nil, &monotonicCounter{})
	if err != nil {
		t.Fatalf("downloadToDisk() error = %v, want nil (416 treated as already complete)", err)
	}
}

func TestBackoffDelayIsCappedAtMaxBackoff(t *testing.T) {
	max := 5 * time.Second
	if got := backoffDelay(10, max); got != max {
		t.Fatalf("backoffDelay(10) = %v, want capped at %v", got, max)
	}
	if got := backoffDelay(1, max); got != 1*time.Second {
		t.Fatalf("backoffDelay(1) = %v, want 1s", got)
	}
}
