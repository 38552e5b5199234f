// Package notify reports workflow outcomes to external systems. Delivery is
// best-effort: failures come back as a Delivery value, never as an error
// that could change the outcome being reported.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Success        bool   `json:"success"`
	TourName       string `json:"tourName"`
	SourceKey      string `json:"s3Key"`
	Message        string `json:"message"`
	FilesExtracted int    `json:"filesExtracted"`
	TotalSize      int64  `json:"totalSize"`
	ProcessingTime int64  `json:"processingTime"`
	Timestamp      string `json:"timestamp"`
}

// Delivery describes what happened to one notification attempt.
type Delivery struct {
	Attempted  bool
	Delivered  bool
	StatusCode int
	Err        error
}

// Webhook posts payloads to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook returns a Webhook. An empty url yields a no-op sender.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enabled reports whether a URL is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.url != ""
}

// Send posts p once. Non-2xx responses count as failed deliveries.
func (w *Webhook) Send(ctx context.Context, p Payload) Delivery {
	if !w.Enabled() {
		return Delivery{}
	}
	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return w.failed(Delivery{Attempted: true, Err: fmt.Errorf("marshal webhook payload: %w", err)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return w.failed(Delivery{Attempted: true, Err: fmt.Errorf("build webhook request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return w.failed(Delivery{Attempted: true, Err: fmt.Errorf("post webhook: %w", err)})
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return w.failed(Delivery{
			Attempted:  true,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("webhook responded %s", resp.Status),
		})
	}

	w.logger.Debug("webhook delivered", zap.String("tour", p.TourName), zap.Int("status", resp.StatusCode))
	return Delivery{Attempted: true, Delivered: true, StatusCode: resp.StatusCode}
}

func (w *Webhook) failed(d Delivery) Delivery {
	w.logger.Warn("webhook delivery failed", zap.Int("status", d.StatusCode), zap.Error(d.Err))
	return d
}
