// Package archival soft-deletes published tours by moving them from the
// tours prefix to the archive prefix.
package archival

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/tourpipe/internal/tour"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/metrics"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
	"github.com/your-org/tourpipe/pkg/tracing"
)

// ErrInvalidRequest reports a request without a usable tour folder.
var ErrInvalidRequest = errors.New("invalid archive request")

// Request identifies the tour folder to archive.
type Request struct {
	Bucket         string `json:"bucket"`
	TourFolderName string `json:"tourName"`
}

// Result reports how many objects were moved.
type Result struct {
	Success       bool     `json:"success"`
	ArchivedCount int      `json:"archivedCount"`
	FailedCount   int      `json:"failedCount"`
	Message       string   `json:"message"`
	TourName      string   `json:"tourName"`
	FailedKeys    []string `json:"failedKeys,omitempty"`
}

// Service moves tour objects to the archive prefix.
type Service struct {
	store   objectstore.Client
	metrics metrics.Recorder
	logger  *zap.Logger
	cfg     config.PipelineConfig
	workers int
}

type Params struct {
	Store    objectstore.Client
	Metrics  metrics.Recorder
	Logger   *zap.Logger
	Pipeline config.PipelineConfig
	// Workers bounds concurrent moves. Values below 1 mean sequential.
	Workers int
}

// NewService constructs an archival Service.
func NewService(p Params) *Service {
	m := p.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		store:   p.Store,
		metrics: m,
		logger:  p.Logger,
		cfg:     p.Pipeline,
		workers: workers,
	}
}

// Archive copies every object under tours/<folder>/ to archive/<folder>/ and
// deletes the original. Per-object failures are counted, not returned; the
// error is non-nil only when the source listing itself fails.
func (s *Service) Archive(ctx context.Context, req Request) (Result, error) {
	folder := tour.SanitizeName(strings.Trim(req.TourFolderName, "/ "))
	if req.Bucket == "" || folder == "" || strings.Trim(folder, "_-") == "" {
		return Result{Message: "tour name and bucket are required"}, ErrInvalidRequest
	}

	ctx, span := tracing.Start(ctx, "archival.archive",
		attribute.String("tour.name", folder),
		attribute.String("storage.bucket", req.Bucket),
	)
	start := time.Now()
	logger := s.logger.With(zap.String("tour", folder), zap.String("bucket", req.Bucket))

	srcPrefix := s.cfg.ToursPrefix + folder + "/"
	keys, err := s.store.List(ctx, req.Bucket, srcPrefix)
	if err != nil {
		tracing.End(span, err)
		return Result{TourName: folder, Message: fmt.Sprintf("list %s: %v", srcPrefix, err)}, fmt.Errorf("list tour objects: %w", err)
	}
	if len(keys) == 0 {
		logger.Info("nothing to archive", zap.String("prefix", srcPrefix))
		tracing.End(span, nil)
		return Result{
			TourName: folder,
			Message:  fmt.Sprintf("No files found for tour %s under %s", folder, srcPrefix),
		}, nil
	}

	var (
		archived atomic.Int64
		mu       sync.Mutex
		failed   []string
	)
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, key := range keys {
		g.Go(func() error {
			dst := s.cfg.ArchivePrefix + strings.TrimPrefix(key, s.cfg.ToursPrefix)
			if err := s.move(ctx, req.Bucket, key, dst); err != nil {
				logger.Warn("archive move failed", zap.String("key", key), zap.Error(err))
				mu.Lock()
				failed = append(failed, key)
				mu.Unlock()
				return nil
			}
			archived.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failed)

	res := Result{
		TourName:      folder,
		ArchivedCount: int(archived.Load()),
		FailedCount:   len(failed),
		FailedKeys:    failed,
	}
	res.Success = res.FailedCount == 0
	if res.Success {
		res.Message = fmt.Sprintf("Archived %d files for tour %s", res.ArchivedCount, folder)
	} else {
		res.Message = fmt.Sprintf("Archived %d of %d files for tour %s", res.ArchivedCount, len(keys), folder)
	}

	s.metrics.AddObjectsArchived(res.ArchivedCount)
	s.metrics.ObserveWorkflowDuration("archival", time.Since(start).Seconds())
	logger.Info("tour archived",
		zap.Int("archived", res.ArchivedCount),
		zap.Int("failed", res.FailedCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	tracing.End(span, nil)
	return res, nil
}

// move is copy-then-delete; the source survives a failed copy.
func (s *Service) move(ctx context.Context, bucket, src, dst string) error {
	if err := s.store.Copy(ctx, bucket, src, dst); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := s.store.Delete(ctx, bucket, src); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}
