package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
)

func TestBatchGroupsByRecipientAndExcludesActor(t *testing.T) {
	batch := NewBatch("close", "admin-1")
	batch.Add("user-1", "t1", events.EventTicketStatusChanged)
	batch.Add("user-1", "t1", events.EventTicketStatusChanged)
	batch.Add("user-1", "t2", events.EventTicketStatusChanged)
	batch.Add("tech-1", "t1", events.EventTicketStatusChanged)
	batch.Add("admin-1", "t1", events.EventTicketStatusChanged)
	batch.Add("", "t3", events.EventTicketStatusChanged)

	intents := batch.Intents()
	if len(intents) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(intents))
	}
	if intents[0].RecipientID != "tech-1" || intents[1].RecipientID != "user-1" {
		t.Fatalf("unexpected recipient order: %s, %s", intents[0].RecipientID, intents[1].RecipientID)
	}
	payload, ok := intents[1].Payload.(events.BulkDigestPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", intents[1].Payload)
	}
	if len(payload.TicketIDs) != 2 || payload.TicketIDs[0] != "t1" || payload.TicketIDs[1] != "t2" {
		t.Fatalf("unexpected ticket ids: %v", payload.TicketIDs)
	}
	if got := payload.Events["t1"]; len(got) != 1 {
		t.Fatalf("duplicate events not collapsed: %v", got)
	}
	if intents[1].EventType != events.EventBulkDigest {
		t.Fatalf("expected digest event type, got %s", intents[1].EventType)
	}
}

func TestBatchDispatchTo(t *testing.T) {
	batch := NewBatch("assign", "admin-1")
	batch.AddEvent(events.Event{
		Type:       events.EventTicketAssigned,
		TicketID:   "t1",
		Recipients: []string{"user-1", "tech-1", "admin-1"},
	})

	rec := &Recorder{}
	if n := batch.DispatchTo(context.Background(), rec); n != 2 {
		t.Fatalf("expected 2 dispatched digests, got %d", n)
	}
	if len(rec.Intents()) != 2 {
		t.Fatalf("recorder saw %d intents", len(rec.Intents()))
	}
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Intent
}

func (s *blockingSink) Deliver(_ context.Context, intent Intent) error {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, intent)
	s.mu.Unlock()
	return nil
}

func TestAsyncDispatcherNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewAsyncDispatcher(sink, 1, nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Dispatch(context.Background(), "user-1", "t1", events.EventTicketCreated, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a stalled sink")
	}

	close(sink.release)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) == 0 || len(sink.got) > 2 {
		t.Fatalf("expected 1-2 delivered intents with a buffer of 1, got %d", len(sink.got))
	}
}

func TestAsyncDispatcherCountsConcurrentDrops(t *testing.T) {
	metrics := observability.NewMetrics()
	sink := &blockingSink{release: make(chan struct{})}
	d := NewAsyncDispatcher(sink, 1, metrics, zap.NewNop())

	const goroutines, perGoroutine = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				d.Dispatch(context.Background(), "user-1", "t1", events.EventTicketCreated, nil)
			}
		}()
	}
	wg.Wait()

	close(sink.release)
	d.Close()

	sink.mu.Lock()
	delivered := int64(len(sink.got))
	sink.mu.Unlock()
	if delivered+d.Dropped() != goroutines*perGoroutine {
		t.Fatalf("delivered %d + dropped %d != %d", delivered, d.Dropped(), goroutines*perGoroutine)
	}
	if got := notificationCount(t, metrics, "dropped"); got != float64(d.Dropped()) {
		t.Fatalf("dropped metric %v, counter %d", got, d.Dropped())
	}
	if got := notificationCount(t, metrics, "delivered"); got != float64(delivered) {
		t.Fatalf("delivered metric %v, sink saw %d", got, delivered)
	}
}

func notificationCount(t *testing.T, metrics *observability.Metrics, outcome string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "helpdesk_notification_intents_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type failingSink struct{}

func (failingSink) Deliver(context.Context, Intent) error { return errors.New("smtp down") }

func TestAsyncDispatcherSwallowsSinkErrors(t *testing.T) {
	d := NewAsyncDispatcher(failingSink{}, 4, nil, zap.NewNop())
	d.Dispatch(context.Background(), "user-1", "t1", events.EventTicketCreated, nil)
	d.Close()
	// Dispatch after close is a no-op.
	d.Dispatch(context.Background(), "user-1", "t1", events.EventTicketCreated, nil)
}

type fakeQueue struct {
	key     string
	maxLen  int64
	payload []byte
}

func (q *fakeQueue) Enqueue(_ context.Context, key string, payload []byte, maxLen int64) error {
	q.key, q.payload, q.maxLen = key, payload, maxLen
	return nil
}

func TestRedisSinkEncodesIntent(t *testing.T) {
	q := &fakeQueue{}
	sink := NewRedisSink(q, "helpdesk:notifications", 100)
	err := sink.Deliver(context.Background(), Intent{RecipientID: "user-1", TicketID: "t1", EventType: events.EventTicketAssigned})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if q.key != "helpdesk:notifications" || q.maxLen != 100 {
		t.Fatalf("unexpected queue args %q %d", q.key, q.maxLen)
	}
	var decoded Intent
	if err := json.Unmarshal(q.payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RecipientID != "user-1" || decoded.EventType != events.EventTicketAssigned {
		t.Fatalf("unexpected decoded intent %+v", decoded)
	}
}

func TestFanoutSinkReturnsFirstError(t *testing.T) {
	rec := &Recorder{}
	err := FanoutSink{failingSink{}, rec}.Deliver(context.Background(), Intent{RecipientID: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rec.Intents()) != 1 {
		t.Fatal("later sinks should still receive the intent")
	}
}
