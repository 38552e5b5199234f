// Package migration moves tours published before the canonical layout into
// tours/<SanitizedName>/ and gives each a metadata sidecar.
package migration

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
	"github.com/your-org/tourpipe/pkg/contenttype"
	"github.com/your-org/tourpipe/pkg/metrics"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
	"github.com/your-org/tourpipe/pkg/tracing"
)

// Options selects the bucket and behaviour of one run.
type Options struct {
	Bucket string
	// DryRun lists what would move without writing anything.
	DryRun bool
	// DeleteSource removes each legacy object after it was copied.
	DeleteSource bool
}

// TourResult describes one legacy folder.
type TourResult struct {
	LegacyFolder string   `json:"legacyFolder"`
	TourName     string   `json:"tourName"`
	Objects      int      `json:"objects"`
	Copied       int      `json:"copied"`
	Deleted      int      `json:"deleted"`
	Failed       []string `json:"failed,omitempty"`
	Metadata     bool     `json:"metadataWritten"`
}

// Result summarises a run.
type Result struct {
	Tours         []TourResult `json:"tours"`
	ObjectsCopied int          `json:"objectsCopied"`
	Failures      int          `json:"failures"`
	DryRun        bool         `json:"dryRun"`
}

// Service runs the legacy migration.
type Service struct {
	store        objectstore.Client
	metrics      metrics.Recorder
	logger       *zap.Logger
	cfg          config.PipelineConfig
	legacyPrefix string
	workers      int
	now          func() time.Time
}

type Params struct {
	Store        objectstore.Client
	Metrics      metrics.Recorder
	Logger       *zap.Logger
	Pipeline     config.PipelineConfig
	LegacyPrefix string
	Workers      int
}

// NewService constructs a migration Service.
func NewService(p Params) *Service {
	m := p.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	prefix := p.LegacyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Service{
		store:        p.Store,
		metrics:      m,
		logger:       p.Logger,
		cfg:          p.Pipeline,
		legacyPrefix: prefix,
		workers:      workers,
		now:          time.Now,
	}
}

// Migrate copies every legacy folder into the tours prefix. Per-object
// failures are counted; only a failed listing aborts the run.
func (s *Service) Migrate(ctx context.Context, opts Options) (Result, error) {
	if opts.Bucket == "" {
		return Result{}, errors.New("migration requires a bucket")
	}
	if s.legacyPrefix == "" || s.legacyPrefix == s.cfg.ToursPrefix {
		return Result{}, fmt.Errorf("legacy prefix %q must differ from %q", s.legacyPrefix, s.cfg.ToursPrefix)
	}

	ctx, span := tracing.Start(ctx, "migration.migrate",
		attribute.String("storage.bucket", opts.Bucket),
		attribute.Bool("migration.dry_run", opts.DryRun),
	)
	start := time.Now()

	keys, err := s.store.List(ctx, opts.Bucket, s.legacyPrefix)
	if err != nil {
		tracing.End(span, err)
		return Result{}, fmt.Errorf("list legacy objects: %w", err)
	}

	res := Result{DryRun: opts.DryRun, Tours: []TourResult{}}
	for _, group := range groupByFolder(s.legacyPrefix, keys) {
		tr := s.migrateTour(ctx, opts, group)
		res.ObjectsCopied += tr.Copied
		res.Failures += len(tr.Failed)
		res.Tours = append(res.Tours, tr)
	}
	s.metrics.AddObjectsMigrated(res.ObjectsCopied)
	s.metrics.ObserveWorkflowDuration("migration", time.Since(start).Seconds())
	s.logger.Info("legacy migration finished",
		zap.Int("tours", len(res.Tours)),
		zap.Int("copied", res.ObjectsCopied),
		zap.Int("failures", res.Failures),
		zap.Bool("dry_run", opts.DryRun),
		zap.Duration("elapsed", time.Since(start)),
	)
	tracing.End(span, nil)
	return res, nil
}

type folderGroup struct {
	folder string
	// rels are paths relative to the legacy folder.
	rels []string
}

// groupByFolder buckets keys by their first segment below prefix. Keys that
// sit directly under prefix belong to no tour and are ignored.
func groupByFolder(prefix string, keys []string) []folderGroup {
	byFolder := map[string][]string{}
	for _, key := range keys {
		folder, rel, ok := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if !ok || folder == "" || rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		byFolder[folder] = append(byFolder[folder], rel)
	}
	groups := make([]folderGroup, 0, len(byFolder))
	for folder, rels := range byFolder {
		sort.Strings(rels)
		groups = append(groups, folderGroup{folder: folder, rels: rels})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].folder < groups[j].folder })
	return groups
}

func (s *Service) migrateTour(ctx context.Context, opts Options, group folderGroup) TourResult {
	id := tour.FromDisplayName(group.folder, s.cfg.ToursPrefix)
	tr := TourResult{LegacyFolder: group.folder, TourName: id.Name, Objects: len(group.rels)}
	logger := s.logger.With(zap.String("legacy_folder", group.folder), zap.String("tour", id.Name))
	if opts.DryRun {
		logger.Info("would migrate tour", zap.Int("objects", tr.Objects))
		return tr
	}

	var (
		copied  atomic.Int64
		deleted atomic.Int64
		mu      sync.Mutex
	)
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, rel := range group.rels {
		g.Go(func() error {
			src := s.legacyPrefix + group.folder + "/" + rel
			dst := id.DestinationPrefix + rel
			if err := s.store.Copy(ctx, opts.Bucket, src, dst); err != nil {
				logger.Warn("legacy copy failed", zap.String("key", src), zap.Error(err))
				mu.Lock()
				tr.Failed = append(tr.Failed, src)
				mu.Unlock()
				return nil
			}
			copied.Add(1)
			if opts.DeleteSource {
				if err := s.store.Delete(ctx, opts.Bucket, src); err != nil {
					logger.Warn("legacy delete failed", zap.String("key", src), zap.Error(err))
				} else {
					deleted.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(tr.Failed)
	tr.Copied = int(copied.Load())
	tr.Deleted = int(deleted.Load())

	if tr.Copied > 0 {
		written, err := s.ensureMetadata(ctx, opts.Bucket, id, tr)
		if err != nil {
			logger.Warn("metadata sidecar not written", zap.Error(err))
		}
		tr.Metadata = written
	}
	logger.Info("tour migrated", zap.Int("copied", tr.Copied), zap.Int("failed", len(tr.Failed)))
	return tr
}

// ensureMetadata writes a sidecar unless the tour already has one.
func (s *Service) ensureMetadata(ctx context.Context, bucket string, id tour.Identity, tr TourResult) (bool, error) {
	key := id.DestinationPrefix + s.cfg.MetadataObject
	_, err := s.store.Get(ctx, bucket, key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, objectstore.ErrNotFound):
		return false, fmt.Errorf("check existing metadata: %w", err)
	}

	meta := tour.Metadata{
		TourName:       id.Name,
		DisplayName:    id.DisplayName,
		SourceKey:      s.legacyPrefix + tr.LegacyFolder + "/",
		FilesExtracted: tr.Copied,
		ExtractedAt:    s.now().UTC(),
		Structure:      "migrated",
		PublicPath:     strings.TrimSuffix(s.cfg.PublicBasePath, "/") + "/" + id.PublicFolder + "/",
	}
	body, err := meta.Encode()
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	if err := s.store.Put(ctx, bucket, key, body, contenttype.Classify(key)); err != nil {
		return false, fmt.Errorf("put metadata: %w", err)
	}
	return true, nil
}
