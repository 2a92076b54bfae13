// Package corerr defines the categorised error taxonomy the pipeline
// dispatches on. Every lowest-layer call that can fail returns one of these
// categories rather than an ad hoc string, so the orchestrator can decide
// policy (retry, skip, abort-session, fail-run) without parsing messages.
package corerr

import (
	"errors"
	"fmt"
)

// Category identifies which policy bucket an error belongs to.
type Category string

const (
	// CategoryTransient covers network timeouts, 5xx responses, and EOFs.
	// Safe to retry at the layer that produced it.
	CategoryTransient Category = "transient"
	// CategoryCatalogUnavailable covers catalog reachability and auth failures.
	CategoryCatalogUnavailable Category = "catalog_unavailable"
	// CategoryCameraRefused covers a camera rejecting control or arming.
	CategoryCameraRefused Category = "camera_refused"
	// CategoryIncoherentInput covers inputs the pipeline cannot act on:
	// UNK angle, out-of-window game, missing timestamps.
	CategoryIncoherentInput Category = "incoherent_input"
	// CategoryCorruptedSource covers a chapter whose container cannot be parsed.
	CategoryCorruptedSource Category = "corrupted_source"
	// CategoryFatal covers an orchestrator crash that must persist state as failed.
	CategoryFatal Category = "fatal"
)

// Error is a categorised error carrying enough context for the orchestrator
// to log and aggregate it without re-deriving the category from a string.
type Error struct {
	Category Category
	Op       string // the operation that failed, e.g. "ingest.upload" or "catalog.createSession"
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Category)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a categorised error.
func New(category Category, op string, err error) *Error {
	return &Error{Category: category, Op: op, Err: err}
}

// Transient wraps err as a CategoryTransient error.
func Transient(op string, err error) *Error {
	return New(CategoryTransient, op, err)
}

// CatalogUnavailable wraps err as a CategoryCatalogUnavailable error.
func CatalogUnavailable(op string, err error) *Error {
	return New(CategoryCatalogUnavailable, op, err)
}

// CameraRefused wraps err as a CategoryCameraRefused error.
func CameraRefused(op string, err error) *Error {
	return New(CategoryCameraRefused, op, err)
}

// IncoherentInput wraps err as a CategoryIncoherentInput error.
func IncoherentInput(op string, err error) *Error {
	return New(CategoryIncoherentInput, op, err)
}

// CorruptedSource wraps err as a CategoryCorruptedSource error.
func CorruptedSource(op string, err error) *Error {
	return New(CategoryCorruptedSource, op, err)
}

// Fatal wraps err as a CategoryFatal error.
func Fatal(op string, err error) *Error {
	return New(CategoryFatal, op, err)
}

// CategoryOf extracts the category from err if it is (or wraps) a *Error,
// defaulting to CategoryFatal for anything uncategorised so an unexpected
// error never silently gets treated as a benign one.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryFatal
}
