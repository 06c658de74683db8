package stream

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestBufferTimeFlushesOnMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan int)
	out := BufferTime(ctx, in, time.Hour, 3)
	go func() {
		for i := 0; i < 7; i++ {
			in <- i
		}
		close(in)
	}()
	var sizes []int
	for b := range out {
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Fatalf("unexpected batches %v", sizes)
	}
}

func TestBufferTimeFlushesOnWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan int, 2)
	out := BufferTime(ctx, in, 20*time.Millisecond, 100)
	in <- 1
	in <- 2
	select {
	case b := <-out:
		if len(b) != 2 {
			t.Fatalf("expected 2 items got %v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("window never flushed")
	}
}

func TestDebounceKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan int)
	out := Debounce(ctx, in, 30*time.Millisecond)
	go func() {
		for i := 1; i <= 5; i++ {
			in <- i
		}
	}()
	select {
	case v := <-out:
		if v != 5 {
			t.Fatalf("expected 5 got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no debounced value")
	}
}

func TestMergeAndFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b := make(chan int), make(chan int)
	go func() {
		for _, v := range []int{1, 2, 3} {
			a <- v
		}
		close(a)
	}()
	go func() {
		for _, v := range []int{4, 5, 6} {
			b <- v
		}
		close(b)
	}()
	even := Filter(ctx, Merge(ctx, a, b), func(v int) bool { return v%2 == 0 })
	var got []int
	for v := range even {
		got = append(got, v)
	}
	sort.Ints(got)
	if len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Fatalf("unexpected values %v", got)
	}
}

func TestCancelClosesOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := BufferTime(ctx, make(chan int), time.Hour, 0)
	cancel()
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed output")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed on cancel")
	}
}
