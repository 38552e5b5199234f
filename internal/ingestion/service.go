package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/tourpipe/internal/tour"
	"github.com/your-org/tourpipe/pkg/archive"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/metrics"
	"github.com/your-org/tourpipe/pkg/notify"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
	"github.com/your-org/tourpipe/pkg/tracing"
)

// Service drives one upload through download, extraction, publishing,
// cleanup and notification.
type Service struct {
	store    objectstore.Client
	notifier *notify.Notifier
	metrics  metrics.Recorder
	logger   *zap.Logger
	cfg      config.PipelineConfig
	resolver archive.Resolver
	now      func() time.Time
}

type Params struct {
	Store    objectstore.Client
	Notifier *notify.Notifier
	Metrics  metrics.Recorder
	Logger   *zap.Logger
	Pipeline config.PipelineConfig
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	m := p.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{
		store:    p.Store,
		notifier: p.Notifier,
		metrics:  m,
		logger:   p.Logger,
		cfg:      p.Pipeline,
		resolver: archive.Resolver{
			Reader: archive.Reader{MaxBytes: p.Pipeline.MaxExtractedBytes},
			Marker: p.Pipeline.NestedMarker,
			Root:   p.Pipeline.NestedRoot,
		},
		now: time.Now,
	}
}

// Accepts reports whether key is an incoming tour archive.
func (s *Service) Accepts(key string) bool {
	if !strings.HasPrefix(key, s.cfg.IncomingPrefix) {
		return false
	}
	rest := strings.TrimPrefix(key, s.cfg.IncomingPrefix)
	if rest == "" || strings.HasSuffix(rest, "/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(key), strings.ToLower(s.cfg.ArchiveExtension))
}

// Process runs the full workflow for ev. It never returns an error: every
// outcome, including skips and failures, is described by the result.
func (s *Service) Process(ctx context.Context, ev UploadEvent, invocationID string) *ProcessingResult {
	start := s.now()
	res := &ProcessingResult{
		Status:       StatusFailedTerminal,
		SourceKey:    ev.Key,
		Bucket:       ev.Bucket,
		InvocationID: invocationID,
	}

	if ev.Bucket == "" || !s.Accepts(ev.Key) {
		res.Status = StatusSkipped
		res.Skipped = true
		res.Message = fmt.Sprintf("Skipped %q: not an archive under %s", ev.Key, s.cfg.IncomingPrefix)
		s.metrics.IncEvents(string(res.Status))
		s.logger.Debug("event skipped", zap.String("bucket", ev.Bucket), zap.String("key", ev.Key))
		return res
	}

	id := tour.FromKey(ev.Key, s.cfg.ArchiveExtension, s.cfg.ToursPrefix)
	res.TourName = id.Name
	logger := s.logger.With(
		zap.String("invocation_id", invocationID),
		zap.String("tour", id.Name),
		zap.String("key", ev.Key),
	)

	ctx, span := tracing.Start(ctx, "ingestion.process",
		attribute.String("tour.name", id.Name),
		attribute.String("storage.bucket", ev.Bucket),
		attribute.String("storage.key", ev.Key),
	)

	logger.Info("processing tour upload")
	err := s.run(ctx, ev, id, res, logger)
	if err != nil {
		res.Success = false
		res.Status = classifyFailure(err)
		res.Message = err.Error()
		if ctx.Err() != nil {
			// An aborted invocation leaves the upload where redelivery expects it.
			logger.Warn("invocation budget exhausted, source left in place", zap.Error(ctx.Err()))
		} else {
			res.SourceMove = s.moveSource(ctx, ev, s.cfg.FailedPrefix, logger)
		}
		logger.Error("tour processing failed", zap.String("status", string(res.Status)), zap.Error(err))
	} else {
		res.Success = true
		res.Status = StatusSucceeded
		res.Message = successMessage(id.DisplayName, res)
		res.SourceMove = s.moveSource(ctx, ev, s.cfg.ProcessedPrefix, logger)
		logger.Info("tour processed",
			zap.Int("files", res.FilesExtracted),
			zap.String("size", humanize.Bytes(uint64(res.TotalBytes))),
			zap.Int("warnings", len(res.Warnings)),
		)
	}
	res.ProcessingTimeMs = s.now().Sub(start).Milliseconds()
	tracing.End(span, err)

	s.metrics.IncEvents(string(res.Status))
	s.metrics.ObserveWorkflowDuration("ingestion", float64(res.ProcessingTimeMs)/1000)

	// Delivery outcome is logged by the notifier and has no effect on res.
	_ = s.notifier.Notify(ctx, webhookPayload(res, s.now()), alertFor(res, s.now()))
	return res
}

func (s *Service) run(ctx context.Context, ev UploadEvent, id tour.Identity, res *ProcessingResult, logger *zap.Logger) error {
	data, err := s.download(ctx, ev, logger)
	if err != nil {
		return fmt.Errorf("download %s: %w", ev.Key, err)
	}
	if s.cfg.MaxArchiveBytes > 0 && int64(len(data)) > s.cfg.MaxArchiveBytes {
		return fmt.Errorf("%w: %s > %s", ErrArchiveTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.cfg.MaxArchiveBytes)))
	}
	logger.Debug("archive downloaded", zap.String("size", humanize.Bytes(uint64(len(data)))))

	resolution, err := s.resolver.Resolve(data)
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	res.Structure = string(resolution.Structure)
	if resolution.Candidates > 1 {
		logger.Warn("multiple nested archives found, using the first",
			zap.String("marker", resolution.Marker), zap.Int("candidates", resolution.Candidates))
	}

	stats := s.publish(ctx, ev.Bucket, id, resolution.Entries, logger)
	res.FilesExtracted = stats.files
	res.TotalBytes = stats.bytes
	res.Warnings = stats.warnings

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish interrupted after %d of %d files: %w", stats.files, stats.publishable, err)
	}
	switch {
	case stats.publishable == 0:
		return ErrNoPublishableFiles
	case stats.files == 0:
		return fmt.Errorf("%w: %d attempted, first error: %s", ErrPublishFailed, stats.publishable, stats.warnings[0].Error)
	}

	if err := s.writeMetadata(ctx, ev, id, res); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("write metadata: %w", ctxErr)
		}
		logger.Warn("metadata sidecar not written", zap.Error(err))
		res.Warnings = append(res.Warnings, PublishWarning{Path: s.cfg.MetadataObject, Error: err.Error()})
	}
	return nil
}

// download fetches the archive, retrying transient store failures.
func (s *Service) download(ctx context.Context, ev UploadEvent, logger *zap.Logger) ([]byte, error) {
	attempts := s.cfg.DownloadAttempts
	if attempts == 0 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryBackoff

	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := s.store.Get(ctx, ev.Bucket, ev.Key)
		if err != nil && !errors.Is(err, objectstore.ErrUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("download failed, retrying", zap.Duration("wait", wait), zap.Error(err))
		}),
	)
}

func (s *Service) writeMetadata(ctx context.Context, ev UploadEvent, id tour.Identity, res *ProcessingResult) error {
	meta := tour.Metadata{
		TourName:       id.Name,
		DisplayName:    id.DisplayName,
		SourceKey:      ev.Key,
		FilesExtracted: res.FilesExtracted,
		TotalSize:      res.TotalBytes,
		ExtractedAt:    s.now().UTC(),
		Structure:      res.Structure,
		PublicPath:     s.publicPath(id),
	}
	body, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return s.store.Put(ctx, ev.Bucket, id.DestinationPrefix+s.cfg.MetadataObject, body, "application/json")
}

// moveSource copies the upload under prefix and deletes the original. It is
// cleanup: the outcome is reported, never escalated.
func (s *Service) moveSource(ctx context.Context, ev UploadEvent, prefix string, logger *zap.Logger) MoveOutcome {
	dst := prefix + strings.TrimPrefix(ev.Key, s.cfg.IncomingPrefix)
	out := MoveOutcome{Destination: dst}

	if err := s.store.Copy(ctx, ev.Bucket, ev.Key, dst); err != nil {
		out.Err = fmt.Errorf("copy source to %s: %w", dst, err)
	} else if err := s.store.Delete(ctx, ev.Bucket, ev.Key); err != nil {
		out.Err = fmt.Errorf("delete source: %w", err)
	} else {
		out.Moved = true
	}
	if out.Err != nil {
		logger.Warn("source archive not moved", zap.String("destination", dst), zap.Error(out.Err))
	}
	return out
}

func (s *Service) publicPath(id tour.Identity) string {
	return strings.TrimSuffix(s.cfg.PublicBasePath, "/") + "/" + id.PublicFolder + "/"
}

func successMessage(display string, res *ProcessingResult) string {
	msg := "Successfully processed tour: " + display
	if n := len(res.Warnings); n > 0 {
		msg += fmt.Sprintf(" with %d publish warnings", n)
	}
	return msg
}

func webhookPayload(res *ProcessingResult, now time.Time) notify.Payload {
	return notify.Payload{
		Success:        res.Success,
		TourName:       res.TourName,
		SourceKey:      res.SourceKey,
		Message:        res.Message,
		FilesExtracted: res.FilesExtracted,
		TotalSize:      res.TotalBytes,
		ProcessingTime: res.ProcessingTimeMs,
		Timestamp:      now.UTC().Format(time.RFC3339),
	}
}

func alertFor(res *ProcessingResult, now time.Time) notify.Alert {
	return notify.Alert{
		Error:          res.Message,
		Status:         string(res.Status),
		TourName:       res.TourName,
		SourceKey:      res.SourceKey,
		ProcessingTime: res.ProcessingTimeMs,
		Timestamp:      now.UTC().Format(time.RFC3339),
		InvocationID:   res.InvocationID,
	}
}
