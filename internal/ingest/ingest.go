// Package ingest moves a chapter's bytes from a camera's range-serving HTTP
// endpoint into object storage, either disk-staged or streamed directly,
// against one shared contract.
package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/logging"
)

var log = logging.L("ingest")

// partSize is the target multipart part size for both transfer paths.
const partSize = 25 * 1024 * 1024

// DownloadConfig controls the resumable download half of a transfer.
type DownloadConfig struct {
	ChunkSizeBytes int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     int
	MaxBackoff     time.Duration
}

// Progress reports transfer bytes for a single chapter. BytesTransferred is
// guaranteed monotonic non-decreasing across attempts for the same tracker.
type Progress struct {
	SegmentSession   string
	Chapter          string
	BytesTransferred int64
	TotalBytes       int64
}

// ProgressFunc receives progress updates; it must not block.
type ProgressFunc func(Progress)

// ChapterKey derives the deterministic raw-chapter object key.
// index is 1-based and formatted as a dense 3-digit field in chapter order.
func ChapterKey(segmentSession string, index int, originalFilename string) string {
	return fmt.Sprintf("raw-chapters/%s/chapter_%03d_%s", segmentSession, index, originalFilename)
}

// ObjectStore wraps the S3 multipart primitives this engine exercises.
type ObjectStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewObjectStore builds an ObjectStore targeting bucket, with the uploader
// configured to match the ~25 MiB multipart part size this system requires.
func NewObjectStore(client *s3.Client, bucket string) *ObjectStore {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	return &ObjectStore{client: client, uploader: uploader, bucket: bucket}
}

// Exists performs the idempotence HEAD check: true if key is already present.
func (o *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &o.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size returns the content length of an already-uploaded object, used to
// populate the registry's file_size field with the real deliverable size
// rather than the size the encode job was asked to produce.
func (o *ObjectStore) Size(ctx context.Context, key string) (int64, error) {
	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &o.bucket,
		Key:    &key,
	})
	if err != nil {
		return 0, err
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// Upload assembles body into a multipart object at key. The uploader aborts
// the multipart upload internally on any unrecoverable failure.
func (o *ObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := o.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &o.bucket,
		Key:    &key,
		Body:   body,
	})
	return err
}

// DeleteObject removes key, used by the encode adapter to free raw chapter
// storage once its deliverable has been verified.
func (o *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &o.bucket,
		Key:    &key,
	})
	return err
}

// monotonicCounter reports the high-water mark it has ever observed, so a
// transfer's reported progress never regresses across a retried attempt even
// when the underlying attempt restarted from zero internally.
type monotonicCounter struct {
	mu   sync.Mutex
	high int64
}

func (m *monotonicCounter) observe(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.high {
		m.high = n
	}
	return m.high
}

// ProbeContainer sniffs an MP4/ISO-BMFF stream for a moov box without fully
// decoding it. A chapter that survived a power loss mid-write typically has
// no moov box at all ("moov atom not found"); this catches that case cheaply
// before the clip planner or encode fleet ever sees the file.
func ProbeContainer(r io.Reader) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break
		}
		size := binary.BigEndian.Uint32(header[0:4])
		boxType := string(header[4:8])
		if boxType == "moov" {
			return nil
		}
		if size < 8 {
			break
		}
		if _, err := io.CopyN(io.Discard, r, int64(size-8)); err != nil {
			break
		}
	}
	return corerr.CorruptedSource("ingest.probeContainer", fmt.Errorf("moov atom not found"))
}
