// Package encode submits extract-and-transcode jobs to a remote GPU fleet
// and polls them to a terminal state.
package encode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/hoopcam/edgectl/internal/corerr"
	"github.com/hoopcam/edgectl/internal/logging"
)

var log = logging.L("encode")

// largeQueueThresholdBytes is the input-size cutoff at or above which a
// single-chapter job must use the large queue.
const largeQueueThresholdBytes = 14 * 1024 * 1024 * 1024

// Status is the terminal-mapped job state this package exposes to callers,
// collapsing AWS Batch's richer status vocabulary into the set the
// orchestrator dispatches on.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusNotFound  Status = "NOT_FOUND"
)

// IsTerminal reports whether s is one this package will never transition out of.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusNotFound
}

// JobDescription is the polled view of a submitted job.
type JobDescription struct {
	Status     Status
	Reason     string
	CreatedAt  time.Time
	StartedAt  time.Time
	StoppedAt  time.Time
	ExitCode   *int32
}

// Queues names the two job queues available, differentiated by worker
// storage capacity.
type Queues struct {
	Small string
	Large string
}

// JobDefinitions names the two job definitions: single-chapter extraction
// and multi-chapter extraction.
type JobDefinitions struct {
	Standard string
	Extract  string
}

// SubmitInput describes one extract-and-transcode job.
type SubmitInput struct {
	GameID         string
	Angle          string
	ChapterKeys    []string
	InputSizeBytes int64
	OffsetSeconds  int64
	DurationSeconds int64
	AddBufferSeconds int64
	OutputS3URI    string
}

// RawDeleter deletes a raw chapter object once its deliverable is verified.
// ingest.ObjectStore satisfies it.
type RawDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// Adapter is the AWS Batch-backed encode job client.
type Adapter struct {
	client      *batch.Client
	queues      Queues
	definitions JobDefinitions
	rawStore    RawDeleter
}

// New constructs an Adapter from an already-configured AWS Batch client,
// sharing the same aws.Config, credential chain, and retry middleware as the
// object-storage client. rawStore backs DeleteRaw.
func New(client *batch.Client, queues Queues, definitions JobDefinitions, rawStore RawDeleter) *Adapter {
	return &Adapter{client: client, queues: queues, definitions: definitions, rawStore: rawStore}
}

// DeleteRaw removes a raw chapter object once its deliverable has been
// confirmed, freeing storage on the orchestrator's behalf.
func (a *Adapter) DeleteRaw(ctx context.Context, key string) error {
	if err := a.rawStore.DeleteObject(ctx, key); err != nil {
		return corerr.Transient("encode.deleteRaw", err)
	}
	return nil
}

// selectQueue applies the size threshold / multi-chapter-always-large rule.
func (a *Adapter) selectQueue(input SubmitInput) string {
	if len(input.ChapterKeys) > 1 {
		return a.queues.Large
	}
	if input.InputSizeBytes >= largeQueueThresholdBytes {
		return a.queues.Large
	}
	return a.queues.Small
}

func (a *Adapter) selectDefinition(input SubmitInput) string {
	if len(input.ChapterKeys) > 1 {
		return a.definitions.Extract
	}
	return a.definitions.Standard
}

// Submit submits exactly one remote extract-and-transcode job and returns its
// job id.
func (a *Adapter) Submit(ctx context.Context, input SubmitInput) (string, error) {
	queue := a.selectQueue(input)
	definition := a.selectDefinition(input)
	jobName := fmt.Sprintf("extract-%s-%s-%d", input.GameID, input.Angle, time.Now().UTC().UnixNano())

	env := []types.KeyValuePair{
		{Name: aws.String("OUTPUT_S3_URI"), Value: aws.String(input.OutputS3URI)},
		{Name: aws.String("OFFSET_SECONDS"), Value: aws.String(fmt.Sprintf("%d", input.OffsetSeconds))},
		{Name: aws.String("DURATION_SECONDS"), Value: aws.String(fmt.Sprintf("%d", input.DurationSeconds))},
		{Name: aws.String("ADD_BUFFER_SECONDS"), Value: aws.String(fmt.Sprintf("%d", input.AddBufferSeconds))},
		{Name: aws.String("GAME_ID"), Value: aws.String(input.GameID)},
		{Name: aws.String("ANGLE"), Value: aws.String(input.Angle)},
	}
	if len(input.ChapterKeys) > 1 {
		chaptersJSON, err := json.Marshal(input.ChapterKeys)
		if err != nil {
			return "", corerr.Fatal("encode.submit", err)
		}
		env = append(env, types.KeyValuePair{Name: aws.String("CHAPTERS_JSON"), Value: aws.String(string(chaptersJSON))})
	} else if len(input.ChapterKeys) == 1 {
		env = append(env, types.KeyValuePair{Name: aws.String("INPUT_S3_URI"), Value: aws.String(input.ChapterKeys[0])})
	}

	out, err := a.client.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(jobName),
		JobQueue:      aws.String(queue),
		JobDefinition: aws.String(definition),
		ContainerOverrides: &types.ContainerOverrides{
			Environment: env,
		},
		Tags: map[string]string{
			"gameId": input.GameID,
			"angle":  input.Angle,
		},
	})
	if err != nil {
		return "", corerr.Transient("encode.submit", err)
	}
	log.Info("encode job submitted", "jobId", aws.ToString(out.JobId), "queue", queue, "definition", definition)
	return aws.ToString(out.JobId), nil
}

// Status polls a single job's description and maps it into the terminal
// status vocabulary.
func (a *Adapter) Status(ctx context.Context, jobID string) (JobDescription, error) {
	out, err := a.client.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{jobID}})
	if err != nil {
		return JobDescription{}, corerr.Transient("encode.status", err)
	}
	if len(out.Jobs) == 0 {
		return JobDescription{Status: StatusNotFound}, nil
	}

	job := out.Jobs[0]
	desc := JobDescription{Reason: aws.ToString(job.StatusReason)}
	desc.CreatedAt = msToTime(job.CreatedAt)
	desc.StartedAt = msToTime(job.StartedAt)
	desc.StoppedAt = msToTime(job.StoppedAt)
	if job.Container != nil {
		desc.ExitCode = job.Container.ExitCode
	}

	switch job.Status {
	case types.JobStatusSucceeded:
		desc.Status = StatusSucceeded
	case types.JobStatusFailed:
		desc.Status = StatusFailed
	case types.JobStatusRunning:
		desc.Status = StatusRunning
	default:
		desc.Status = StatusSubmitted
	}
	return desc, nil
}

// Wait polls jobID until it reaches a terminal state or timeout elapses. It
// never retries a FAILED job; retry policy belongs to the caller.
func (a *Adapter) Wait(ctx context.Context, jobID string, timeout, interval time.Duration) (JobDescription, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		desc, err := a.Status(ctx, jobID)
		if err != nil {
			return desc, err
		}
		if desc.Status.IsTerminal() {
			return desc, nil
		}
		if time.Now().After(deadline) {
			return desc, fmt.Errorf("job %s did not reach a terminal state within %s", jobID, timeout)
		}

		select {
		case <-ctx.Done():
			return desc, ctx.Err()
		case <-ticker.C:
		}
	}
}

func msToTime(ms *int64) time.Time {
	if ms == nil || *ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(*ms).UTC()
}
