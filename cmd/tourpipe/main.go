package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/tourpipe/internal/app"
	"github.com/your-org/tourpipe/internal/ingestion"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/kafka"
	"github.com/your-org/tourpipe/pkg/logger"
	"github.com/your-org/tourpipe/pkg/metrics"
	"github.com/your-org/tourpipe/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(logger.Options{
		Level:       cfg.App.LogLevel,
		Service:     cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	prom := metrics.NewProm(cfg.Metrics.Namespace)

	components, err := app.Build(cfg, logr, prom)
	if err != nil {
		logr.Fatal("init components", zap.Error(err))
	}
	defer func() {
		if err := components.Close(); err != nil {
			logr.Error("component shutdown failed", zap.Error(err))
		}
	}()

	handler := ingestion.NewHTTPHandler(components.Ingestion, components.Archival, logr.Named("http"), cfg.HTTP.MaxBodyBytes, cfg.HTTP.InvokeTimeout)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           prom.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("tour pipeline starting", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logr.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Kafka.EventsTopic != "" {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EventsTopic,
			GroupID: cfg.Kafka.EventsGroup,
		})
		notifications := &ingestion.NotificationHandler{
			Processor: components.Ingestion,
			Archiver:  components.Archival,
			Logger:    logr.Named("events"),
		}
		g.Go(func() error {
			defer consumer.Close() //nolint:errcheck
			logr.Info("consuming bucket notifications", zap.String("topic", cfg.Kafka.EventsTopic))
			return consumer.Run(gctx, notifications.Handle, func(err error) {
				logr.Warn("notification not handled", zap.Error(err))
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("metrics server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logr.Error("tour pipeline stopped", zap.Error(err))
	}
}
