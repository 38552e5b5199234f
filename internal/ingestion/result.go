package ingestion

import (
	"context"
	"errors"
	"net/http"

	"github.com/your-org/tourpipe/pkg/storage/objectstore"
)

// Status is the terminal state of one ingestion.
type Status string

const (
	StatusSkipped         Status = "skipped"
	StatusSucceeded       Status = "succeeded"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedTerminal  Status = "failed_terminal"
)

var (
	// ErrNoPublishableFiles reports an archive without any non-empty file.
	ErrNoPublishableFiles = errors.New("archive contains no publishable files")
	// ErrPublishFailed reports that every file publish failed.
	ErrPublishFailed = errors.New("no files could be published")
	// ErrArchiveTooLarge reports a download above the configured limit.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
)

// PublishWarning records one file that failed to upload.
type PublishWarning struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// MoveOutcome reports a best-effort move of the source archive.
type MoveOutcome struct {
	Destination string `json:"destination,omitempty"`
	Moved       bool   `json:"moved"`
	Err         error  `json:"-"`
}

// ProcessingResult is created at the start of an ingestion, filled in as
// stages complete, and handed to the notifier once finalized.
type ProcessingResult struct {
	Success          bool             `json:"success"`
	Status           Status           `json:"status"`
	Skipped          bool             `json:"skipped,omitempty"`
	Message          string           `json:"message"`
	TourName         string           `json:"tourName"`
	SourceKey        string           `json:"sourceKey"`
	Bucket           string           `json:"bucket"`
	Structure        string           `json:"structure,omitempty"`
	FilesExtracted   int              `json:"filesExtracted"`
	TotalBytes       int64            `json:"totalBytes"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	InvocationID     string           `json:"invocationId,omitempty"`
	Warnings         []PublishWarning `json:"warnings,omitempty"`
	SourceMove       MoveOutcome      `json:"sourceMove"`
}

// HTTPStatus maps the result onto the function's response code.
func (r *ProcessingResult) HTTPStatus() int {
	switch r.Status {
	case StatusSucceeded, StatusSkipped:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// classifyFailure decides whether redelivery of the same event could help.
func classifyFailure(err error) Status {
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		return StatusFailedTerminal
	case errors.Is(err, objectstore.ErrUnavailable),
		errors.Is(err, ErrPublishFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return StatusFailedRetryable
	default:
		return StatusFailedTerminal
	}
}
