package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Enqueuer appends a payload to a bounded queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, payload []byte, maxLen int64) error
}

// RedisSink pushes intents as JSON onto a Redis list consumed by the delivery service.
type RedisSink struct {
	queue  Enqueuer
	key    string
	maxLen int64
}

// NewRedisSink builds the sink.
func NewRedisSink(queue Enqueuer, key string, maxLen int64) *RedisSink {
	return &RedisSink{queue: queue, key: key, maxLen: maxLen}
}

func (s *RedisSink) Deliver(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	return s.queue.Enqueue(ctx, s.key, payload, s.maxLen)
}
