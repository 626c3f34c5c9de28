package notify

import (
	"context"
	"log/slog"
	"time"
)

const (
	maxDeliveryAttempts = 3
	retryBackoff        = 5 * time.Second
)

// Dispatcher drains a queue and delivers notifications through a Sender.
// Failed deliveries are retried on a fixed backoff a bounded number of times,
// then dropped with a log line; the originating business operation is never
// affected.
type Dispatcher struct {
	queue   *Queue
	sender  Sender
	logger  *slog.Logger
	backoff time.Duration
}

// NewDispatcher wires a queue to a sender.
func NewDispatcher(queue *Queue, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Dispatcher{queue: queue, sender: sender, logger: logger, backoff: retryBackoff}
}

// Send implements the Notifier capability the engines consume: enqueue and
// return immediately.
func (d *Dispatcher) Send(_ context.Context, recipient, kind string, data map[string]string) {
	if d == nil || d.queue == nil || recipient == "" {
		return
	}
	d.queue.Enqueue(NewNotification(recipient, kind, data))
}

// Run drains the queue until the context is cancelled. Intended to be started
// as a goroutine from the service entrypoint.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		task, ok := d.queue.Dequeue(ctx)
		if !ok {
			return
		}
		if err := d.sender.Deliver(ctx, task.Notification); err != nil {
			task.Attempt++
			if task.Attempt >= maxDeliveryAttempts {
				d.logger.Warn("notification dropped after retries",
					"id", task.Notification.ID,
					"kind", task.Notification.Kind,
					"attempts", task.Attempt,
					"error", err,
				)
				continue
			}
			task.NotBefore = time.Now().Add(d.backoff)
			d.queue.enqueueTask(task)
		}
	}
}
