package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishOrderAndIsolation(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string

	d.SubscribeAll(func(context.Context, Event) error {
		calls = append(calls, "all")
		return nil
	})
	d.Subscribe(EventTicketAssigned, func(context.Context, Event) error {
		calls = append(calls, "failing")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketAssigned, func(context.Context, Event) error {
		panic("handler bug")
	})
	d.Subscribe(EventTicketAssigned, func(context.Context, Event) error {
		calls = append(calls, "typed")
		return nil
	})
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketAssigned, TicketID: "t-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := []string{"failing", "typed", "all"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}
