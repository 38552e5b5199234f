package ingestion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationHandler adapts Dispatch to bucket notifications delivered over
// a message topic, such as MinIO's Kafka notification target.
type NotificationHandler struct {
	Processor Processor
	Archiver  Archiver
	Logger    *zap.Logger
}

// Handle dispatches one message. Only malformed payloads are returned as
// errors; workflow failures are already reported through the notifier.
func (n *NotificationHandler) Handle(ctx context.Context, _, value []byte) error {
	invocationID := uuid.NewString()
	status, _ := Dispatch(ctx, value, invocationID, n.Processor, n.Archiver, n.Logger)
	if status == http.StatusBadRequest {
		return fmt.Errorf("invocation %s: %w", invocationID, ErrMalformedTrigger)
	}
	return nil
}
