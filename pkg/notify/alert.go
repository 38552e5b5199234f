package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Alert carries failure detail separately from the webhook payload.
// Status tells retryable failures, which redelivery may still resolve, from
// terminal ones.
type Alert struct {
	Error          string `json:"error"`
	Status         string `json:"status"`
	TourName       string `json:"tourName"`
	SourceKey      string `json:"sourceKey"`
	ProcessingTime int64  `json:"processingTime"`
	Timestamp      string `json:"timestamp"`
	InvocationID   string `json:"invocationId"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any, headers map[string]string) error
}

// Alerter sends failure alerts to a topic.
type Alerter struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewAlerter returns an Alerter. A nil publisher yields a no-op alerter.
func NewAlerter(publisher Publisher, logger *zap.Logger) *Alerter {
	return &Alerter{publisher: publisher, logger: logger}
}

// Enabled reports whether a publisher is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && a.publisher != nil
}

// Send publishes the alert keyed by tour name.
func (a *Alerter) Send(ctx context.Context, alert Alert) Delivery {
	if !a.Enabled() {
		return Delivery{}
	}
	if alert.Timestamp == "" {
		alert.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	headers := map[string]string{
		"event_type":    "tour.ingestion.failed",
		"invocation_id": alert.InvocationID,
		"status":        alert.Status,
	}
	if err := a.publisher.PublishJSON(ctx, alert.TourName, alert, headers); err != nil {
		a.logger.Warn("alert delivery failed", zap.String("tour", alert.TourName), zap.Error(err))
		return Delivery{Attempted: true, Err: err}
	}
	return Delivery{Attempted: true, Delivered: true}
}
