package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder captures pipeline counters for ingestion, archival and migration.
type Recorder interface {
	IncEvents(status string)
	AddFilesPublished(n int)
	AddBytesPublished(n int64)
	IncPublishFailures()
	AddObjectsArchived(n int)
	AddObjectsMigrated(n int)
	ObserveWorkflowDuration(workflow string, seconds float64)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) IncEvents(string)                        {}
func (Noop) AddFilesPublished(int)                   {}
func (Noop) AddBytesPublished(int64)                 {}
func (Noop) IncPublishFailures()                     {}
func (Noop) AddObjectsArchived(int)                  {}
func (Noop) AddObjectsMigrated(int)                  {}
func (Noop) ObserveWorkflowDuration(string, float64) {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	events          *prometheus.CounterVec
	filesPublished  prometheus.Counter
	bytesPublished  prometheus.Counter
	publishFailures prometheus.Counter
	objectsArchived prometheus.Counter
	objectsMigrated prometheus.Counter
	duration        *prometheus.HistogramVec
	registry        *prometheus.Registry
	once            sync.Once
}

// NewProm builds collectors on a private registry so tests can construct more than one.
func NewProm(namespace string) *Prom {
	p := &Prom{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_events_total",
			Help:      "Upload events handled, by final status",
		}, []string{"status"}),
		filesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_published_total",
			Help:      "Extracted tour files written to the public prefix",
		}),
		bytesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_published_total",
			Help:      "Bytes written to the public prefix",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Individual file publishes that failed",
		}),
		objectsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_archived_total",
			Help:      "Tour objects moved to the archive prefix",
		}),
		objectsMigrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_migrated_total",
			Help:      "Legacy objects copied into the tours prefix",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Wall-clock duration of pipeline workflows",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"workflow"}),
		registry: prometheus.NewRegistry(),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		p.registry.MustRegister(
			p.events, p.filesPublished, p.bytesPublished, p.publishFailures,
			p.objectsArchived, p.objectsMigrated, p.duration,
		)
	})
}

func (p *Prom) IncEvents(status string) { p.events.WithLabelValues(status).Inc() }
func (p *Prom) AddFilesPublished(n int) { p.filesPublished.Add(float64(n)) }
func (p *Prom) AddBytesPublished(n int64) {
	p.bytesPublished.Add(float64(n))
}
func (p *Prom) IncPublishFailures()      { p.publishFailures.Inc() }
func (p *Prom) AddObjectsArchived(n int) { p.objectsArchived.Add(float64(n)) }
func (p *Prom) AddObjectsMigrated(n int) { p.objectsMigrated.Add(float64(n)) }
func (p *Prom) ObserveWorkflowDuration(workflow string, seconds float64) {
	p.duration.WithLabelValues(workflow).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}
