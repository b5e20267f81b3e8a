package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var received Event

	eb.On(IndDevStatus, func(e Event) {
		received = e
	})

	want := DevStatusData{PermAddr: "0x00124b00072d9a1d", Status: "offline"}
	eb.Emit(Event{Type: IndDevStatus, Data: want})

	if received.Type != IndDevStatus {
		t.Errorf("type = %q, want %q", received.Type, IndDevStatus)
	}
	if got, ok := received.Data.(DevStatusData); !ok || got != want {
		t.Errorf("data = %#v, want %#v", received.Data, want)
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	called := false

	eb.On(IndDevIncoming, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: IndDevStatus})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: IndDevIncoming})
	eb.Emit(Event{Type: IndDevStatus})
	eb.Emit(Event{Type: IndAttrsChange})

	if count.Load() != 3 {
		t.Errorf("onAll called %d times, want 3", count.Load())
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.On(IndDevIncoming, func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: IndDevIncoming})
	if count.Load() != 1 {
		t.Fatalf("expected 1 call before unsub, got %d", count.Load())
	}

	unsub()
	eb.Emit(Event{Type: IndDevIncoming})
	if count.Load() != 1 {
		t.Errorf("expected 1 call after unsub, got %d", count.Load())
	}
}

func TestEventBusOnAllUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: IndDevIncoming})
	unsub()
	eb.Emit(Event{Type: IndDevIncoming})

	if count.Load() != 1 {
		t.Errorf("expected 1 call, got %d", count.Load())
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var called atomic.Int32

	// One handler panics, the other counts. Both must run.
	eb.On(IndDevIncoming, func(e Event) {
		called.Add(1)
		panic("test panic")
	})
	eb.On(IndDevIncoming, func(e Event) {
		called.Add(1)
	})

	// Should not panic
	eb.Emit(Event{Type: IndDevIncoming})

	// Both handlers should have been called despite one panicking.
	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestEventBusConcurrentEmit(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: IndAttrsChange})
		}()
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("got %d, want 100", count.Load())
	}
}

func TestEventBusMultipleHandlersSameType(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.On(IndDevIncoming, func(e Event) { count.Add(1) })
	eb.On(IndDevIncoming, func(e Event) { count.Add(1) })
	eb.On(IndDevIncoming, func(e Event) { count.Add(1) })

	eb.Emit(Event{Type: IndDevIncoming})

	if count.Load() != 3 {
		t.Errorf("got %d, want 3", count.Load())
	}
}
