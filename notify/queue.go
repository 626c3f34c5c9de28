package notify

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type queuedNotification struct {
	task       Task
	enqueuedAt time.Time
}

// Task wraps a notification with its delivery attempt state.
type Task struct {
	Notification Notification
	Attempt      int
	NotBefore    time.Time
}

// QueueOption adjusts the behaviour of the queue.
type QueueOption func(*queueConfig)

type queueConfig struct {
	capacity        int
	historyCapacity int
	ttl             time.Duration
	now             func() time.Time
}

const (
	defaultQueueCapacity   = 1024
	defaultHistoryCapacity = 256
	defaultQueueTTL        = 15 * time.Minute
)

// WithCapacity sets the maximum number of pending notifications.
func WithCapacity(capacity int) QueueOption {
	return func(cfg *queueConfig) {
		if capacity > 0 {
			cfg.capacity = capacity
		}
	}
}

// WithHistoryCapacity sets the number of notifications retained for
// inspection.
func WithHistoryCapacity(capacity int) QueueOption {
	return func(cfg *queueConfig) {
		if capacity > 0 {
			cfg.historyCapacity = capacity
		}
	}
}

// WithTTL configures how long queued notifications remain eligible for
// delivery.
func WithTTL(ttl time.Duration) QueueOption {
	return func(cfg *queueConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// withClock overrides the clock used for TTL evaluation (test only).
func withClock(now func() time.Time) QueueOption {
	return func(cfg *queueConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Queue is a bounded in-memory buffer of pending notifications. Overflow
// drops the oldest entry rather than blocking the enqueueing business
// operation.
type Queue struct {
	mu      sync.Mutex
	tasks   ring[queuedNotification]
	history ring[Notification]
	ttl     time.Duration
	now     func() time.Time
	metrics *queueMetrics
}

// NewQueue constructs a bounded queue with optional customisation.
func NewQueue(opts ...QueueOption) *Queue {
	cfg := queueConfig{
		capacity:        defaultQueueCapacity,
		historyCapacity: defaultHistoryCapacity,
		ttl:             defaultQueueTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{
		tasks:   newRing[queuedNotification](cfg.capacity),
		history: newRing[Notification](cfg.historyCapacity),
		ttl:     cfg.ttl,
		now:     cfg.now,
		metrics: sharedMetrics(),
	}
}

// Enqueue adds a notification to the queue. It never blocks and never fails:
// an overflowing queue drops its oldest element.
func (q *Queue) Enqueue(n Notification) {
	q.enqueueTask(Task{Notification: n})
}

func (q *Queue) enqueueTask(task Task) {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evictExpiredLocked(now)
	if task.Attempt == 0 {
		if _, dropped := q.history.push(task.Notification); dropped {
			q.metrics.recordDropped("history_overflow", 1)
		}
	}
	if _, dropped := q.tasks.push(queuedNotification{task: task, enqueuedAt: now}); dropped {
		q.metrics.recordDropped("overflow", 1)
	}
}

// History returns a snapshot of recently enqueued notifications. Primarily
// used in tests and admin surfaces.
func (q *Queue) History() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evictExpiredLocked(q.now())
	snapshot := make([]Notification, 0, q.history.len())
	q.history.forEach(func(n Notification) {
		snapshot = append(snapshot, n)
	})
	return snapshot
}

// Dequeue waits for the next deliverable task. Returns false when the context
// is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Task, bool) {
	for {
		q.mu.Lock()
		q.evictExpiredLocked(q.now())
		queued, ok := q.tasks.pop()
		q.mu.Unlock()
		if !ok {
			select {
			case <-ctx.Done():
				return Task{}, false
			case <-time.After(25 * time.Millisecond):
				continue
			}
		}
		if delay := time.Until(queued.task.NotBefore); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Task{}, false
			case <-timer.C:
			}
		}
		if q.ttl > 0 && q.now().Sub(queued.enqueuedAt) > q.ttl {
			q.metrics.recordDropped("ttl", 1)
			continue
		}
		return queued.task, true
	}
}

func (q *Queue) evictExpiredLocked(now time.Time) {
	if q.ttl <= 0 {
		return
	}
	expired := 0
	for {
		queued, ok := q.tasks.peek()
		if !ok || now.Sub(queued.enqueuedAt) <= q.ttl {
			break
		}
		q.tasks.pop()
		expired++
	}
	if expired > 0 {
		q.metrics.recordDropped("ttl", expired)
	}
}

// ring is a fixed-size buffer that overwrites the oldest element on overflow.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) ring[T] {
	if capacity <= 0 {
		return ring[T]{}
	}
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) (T, bool) {
	if len(r.buf) == 0 {
		var zero T
		return zero, true
	}
	if r.size == len(r.buf) {
		dropped := r.buf[r.head]
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return dropped, true
	}
	idx := (r.head + r.size) % len(r.buf)
	r.buf[idx] = v
	r.size++
	var zero T
	return zero, false
}

func (r *ring[T]) pop() (T, bool) {
	if r.size == 0 || len(r.buf) == 0 {
		var zero T
		return zero, false
	}
	v := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

func (r *ring[T]) peek() (T, bool) {
	if r.size == 0 || len(r.buf) == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

func (r *ring[T]) len() int { return r.size }

func (r *ring[T]) forEach(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

var (
	metricsOnce   sync.Once
	sharedQueueMx *queueMetrics
)

type queueMetrics struct {
	dropped metric.Int64Counter
}

func sharedMetrics() *queueMetrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("payward/notify")
		counter, err := meter.Int64Counter("payward.notifications.dropped")
		if err != nil {
			fallback := noop.NewMeterProvider().Meter("payward/notify")
			counter, _ = fallback.Int64Counter("payward.notifications.dropped")
		}
		sharedQueueMx = &queueMetrics{dropped: counter}
	})
	return sharedQueueMx
}

func (m *queueMetrics) recordDropped(reason string, count int) {
	if m == nil || m.dropped == nil || count <= 0 {
		return
	}
	m.dropped.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}
