// Package app wires configuration into the object store, notifier and
// workflow services shared by the tourpipe and tourctl binaries.
package app

import (
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/tourpipe/internal/archival"
	"github.com/your-org/tourpipe/internal/ingestion"
	"github.com/your-org/tourpipe/internal/migration"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/kafka"
	"github.com/your-org/tourpipe/pkg/metrics"
	"github.com/your-org/tourpipe/pkg/notify"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
)

// Components holds every long-lived dependency of a running process.
type Components struct {
	Store     objectstore.Client
	Notifier  *notify.Notifier
	Ingestion *ingestion.Service
	Archival  *archival.Service
	Migration *migration.Service

	alerts *kafka.Producer
}

// Build constructs the components described by cfg. A nil recorder
// disables metrics.
func Build(cfg *config.Config, logger *zap.Logger, recorder metrics.Recorder) (*Components, error) {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	c := &Components{Store: store}

	// A nil *kafka.Producer stored in the interface would look enabled.
	var publisher notify.Publisher
	if cfg.Kafka.AlertTopic != "" {
		c.alerts = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.AlertTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
		publisher = c.alerts
	}
	c.Notifier = &notify.Notifier{
		Webhook: notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout, logger.Named("webhook")),
		Alerter: notify.NewAlerter(publisher, logger.Named("alerts")),
	}

	c.Ingestion = ingestion.NewService(ingestion.Params{
		Store:    store,
		Notifier: c.Notifier,
		Metrics:  recorder,
		Logger:   logger.Named("ingestion"),
		Pipeline: cfg.Pipeline,
	})
	c.Archival = archival.NewService(archival.Params{
		Store:    store,
		Metrics:  recorder,
		Logger:   logger.Named("archival"),
		Pipeline: cfg.Pipeline,
		Workers:  cfg.Pipeline.PublishWorkers,
	})
	c.Migration = migration.NewService(migration.Params{
		Store:        store,
		Metrics:      recorder,
		Logger:       logger.Named("migration"),
		Pipeline:     cfg.Pipeline,
		LegacyPrefix: cfg.Migration.LegacyPrefix,
		Workers:      cfg.Pipeline.PublishWorkers,
	})
	return c, nil
}

// Close releases the alert producer and the object store.
func (c *Components) Close() error {
	var errs []error
	if c.alerts != nil {
		if err := c.alerts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alert producer: %w", err))
		}
	}
	if err := c.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close object store: %w", err))
	}
	return errors.Join(errs...)
}
