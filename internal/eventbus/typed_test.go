package eventbus

import (
	"testing"
	"time"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.SubscribeLossless()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTyped[int]()
	ch := bus.Subscribe()
	for i := 0; i < 20; i++ {
		bus.Publish(i)
	}
	bus.Close()
	n := 0
	for range ch {
		n++
	}
	if n != 8 {
		t.Fatalf("expected 8 buffered events got %d", n)
	}
}

func TestTypedBusLosslessKeepsOrder(t *testing.T) {
	bus := NewTyped[int]()
	ch := bus.SubscribeLossless()
	for i := 0; i < 1000; i++ {
		bus.Publish(i)
	}
	bus.Close()
	want := 0
	for v := range ch {
		if v != want {
			t.Fatalf("expected %d got %d", want, v)
		}
		want++
	}
	if want != 1000 {
		t.Fatalf("expected 1000 events got %d", want)
	}
}

func TestTypedBusUnsubscribeLossless(t *testing.T) {
	bus := NewTyped[int]()
	ch := bus.SubscribeLossless()
	bus.Publish(1)
	bus.Unsubscribe(ch)
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("lossless channel not closed after unsubscribe")
		}
	}
}
