package ingestion

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/tourpipe/internal/tour"
	"github.com/your-org/tourpipe/pkg/archive"
	"github.com/your-org/tourpipe/pkg/contenttype"
	"github.com/your-org/tourpipe/pkg/htmlinject"
)

type publishStats struct {
	publishable int
	files       int
	bytes       int64
	warnings    []PublishWarning
}

// publish uploads every file entry under the tour's destination prefix.
// A failed upload becomes a warning; it never stops the batch. Entries are
// released as they are handed to a worker.
func (s *Service) publish(ctx context.Context, bucket string, id tour.Identity, entries []archive.Entry, logger *zap.Logger) publishStats {
	workers := s.cfg.PublishWorkers
	if workers < 1 {
		workers = 1
	}
	inject := htmlinject.Options{
		BaseHref:  s.publicPath(id),
		ScriptURL: s.cfg.TrackingScriptURL,
		TourName:  id.DisplayName,
	}

	var (
		files    atomic.Int64
		bytes    atomic.Int64
		mu       sync.Mutex
		warnings []PublishWarning
		stats    publishStats
	)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range entries {
		entry := entries[i]
		entries[i] = archive.Entry{}
		if entry.IsDirectory || len(entry.Data) == 0 {
			continue
		}
		stats.publishable++

		g.Go(func() error {
			body := entry.Data
			if htmlinject.IsEntryPage(entry.Path) {
				body = htmlinject.Inject(body, inject)
			}
			key := id.DestinationPrefix + entry.Path
			if err := s.store.Put(ctx, bucket, key, body, contenttype.Classify(entry.Path)); err != nil {
				logger.Warn("file publish failed", zap.String("path", entry.Path), zap.Error(err))
				s.metrics.IncPublishFailures()
				mu.Lock()
				warnings = append(warnings, PublishWarning{Path: entry.Path, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			files.Add(1)
			bytes.Add(entry.Size())
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	stats.files = int(files.Load())
	stats.bytes = bytes.Load()
	stats.warnings = warnings

	s.metrics.AddFilesPublished(stats.files)
	s.metrics.AddBytesPublished(stats.bytes)
	return stats
}
