package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
)

// AsyncDispatcher queues intents on a bounded buffer and delivers them from
// a background goroutine. Dispatch never blocks; a full buffer drops the intent.
type AsyncDispatcher struct {
	sink    Sink
	metrics *observability.Metrics
	logger  *zap.Logger
	queue   chan Intent
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsyncDispatcher starts the delivery loop.
func NewAsyncDispatcher(sink Sink, bufferSize int, metrics *observability.Metrics, logger *zap.Logger) *AsyncDispatcher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AsyncDispatcher{
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan Intent, bufferSize),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *AsyncDispatcher) Dispatch(_ context.Context, recipientID, ticketID string, eventType events.EventType, payload any) {
	intent := Intent{
		RecipientID: recipientID,
		TicketID:    ticketID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- intent:
	default:
		d.dropped.Add(1)
		d.metrics.RecordNotification("dropped")
		d.logger.Warn("notification buffer full; dropping intent",
			zap.String("recipient_id", recipientID),
			zap.String("ticket_id", ticketID),
			zap.String("event_type", string(eventType)))
	}
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)
	for intent := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Deliver(ctx, intent); err != nil {
			d.metrics.RecordNotification("failed")
			d.logger.Warn("notification delivery failed",
				zap.String("recipient_id", intent.RecipientID),
				zap.String("event_type", string(intent.EventType)),
				zap.Error(err))
		} else {
			d.metrics.RecordNotification("delivered")
		}
		cancel()
	}
}

// Dropped reports how many intents were discarded on a full buffer.
func (d *AsyncDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting intents and waits for the buffer to drain.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
