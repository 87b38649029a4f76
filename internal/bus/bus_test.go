package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewEventBus()
	defer b.Clear()

	done := make(chan Event, 1)
	b.Subscribe(EventTypeSegmentStarted, func(e Event) {
		done <- e
	})

	b.Publish(Event{
		Type: EventTypeSegmentStarted,
		Data: map[string]any{"index": 3},
	})

	select {
	case e := <-done:
		if e.Data["index"] != 3 {
			t.Errorf("expected index 3, got %v", e.Data["index"])
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for event")
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	b := NewEventBus()
	defer b.Clear()

	var calls atomic.Int32
	b.Subscribe(EventTypeStateChanged, func(Event) {
		calls.Add(1)
	})

	b.Publish(Event{Type: EventTypeSegmentStarted})
	b.Publish(Event{Type: EventTypeStateChanged})
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()
	defer b.Clear()

	var calls atomic.Int32
	b.SubscribeMultiple([]EventType{
		EventTypeSegmentStarted,
		EventTypeSegmentFinished,
	}, func(Event) {
		calls.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeSegmentStarted})
	b.PublishSync(Event{Type: EventTypeSegmentFinished})

	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestPublishSyncWaits(t *testing.T) {
	b := NewEventBus()
	defer b.Clear()

	var finished atomic.Bool
	b.Subscribe(EventTypeUtteranceInterrupted, func(Event) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	b.PublishSync(Event{Type: EventTypeUtteranceInterrupted})

	if !finished.Load() {
		t.Error("PublishSync returned before the handler completed")
	}
}

func TestClearRemovesHandlers(t *testing.T) {
	b := NewEventBus()

	var calls atomic.Int32
	b.Subscribe(EventTypeStateChanged, func(Event) {
		calls.Add(1)
	})

	b.Clear()
	b.PublishSync(Event{Type: EventTypeStateChanged})

	if calls.Load() != 0 {
		t.Errorf("expected 0 calls after Clear, got %d", calls.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	b := NewEventBus()
	defer b.Clear()

	var received atomic.Int32
	b.Subscribe(EventTypeGestureChanged, func(Event) {
		received.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.PublishSync(Event{Type: EventTypeGestureChanged})
		}()
	}
	wg.Wait()

	if received.Load() != 50 {
		t.Errorf("expected 50 events, got %d", received.Load())
	}
}
