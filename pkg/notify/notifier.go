package notify

import "context"

// Notifier fans an outcome out to the webhook and, on failure, the alert channel.
type Notifier struct {
	Webhook *Webhook
	Alerter *Alerter
}

// Outcome reports both deliveries.
type Outcome struct {
	Webhook Delivery
	Alert   Delivery
}

// Notify posts p to the webhook. alert is published for every failure,
// retryable or terminal; alert.Status distinguishes them.
func (n *Notifier) Notify(ctx context.Context, p Payload, alert Alert) Outcome {
	if n == nil {
		return Outcome{}
	}
	// Delivery must not be cut short by a caller that has already timed out.
	ctx = context.WithoutCancel(ctx)

	var out Outcome
	out.Webhook = n.Webhook.Send(ctx, p)
	if !p.Success {
		out.Alert = n.Alerter.Send(ctx, alert)
	}
	return out
}
