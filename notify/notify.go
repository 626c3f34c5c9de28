// Package notify provides the fire-and-forget notification capability the
// orchestration engines emit confirmation, refund, and dispute messages
// through. Delivery transport is pluggable; failures are logged and never
// propagate into the triggering business operation.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Notification is a queued delivery request.
type Notification struct {
	ID        string
	Recipient string
	Kind      string
	Data      map[string]string
	CreatedAt time.Time
}

// Sender delivers a notification over a concrete transport (email, webhook).
type Sender interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log instead of delivering
// them. Useful for development and as a safe default.
type LogSender struct {
	Logger *slog.Logger
}

// Deliver implements Sender.
func (s LogSender) Deliver(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification delivered",
		"id", n.ID,
		"recipient", n.Recipient,
		"kind", n.Kind,
	)
	return nil
}

// NewNotification stamps a notification with an id and timestamp.
func NewNotification(recipient, kind string, data map[string]string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Kind:      kind,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}
