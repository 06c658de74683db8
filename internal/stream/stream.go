// Package stream provides the few channel combinators the dispatch
// pipelines are built from. Every combinator stops when ctx is done and
// closes its output when its input closes.
package stream

import (
	"context"
	"sync"
	"time"
)

// BufferTime collects values from in and emits them as a batch every window,
// or as soon as max values are collected when max > 0. Empty windows emit
// nothing. A partial batch is flushed when in closes.
func BufferTime[T any](ctx context.Context, in <-chan T, window time.Duration, max int) <-chan []T {
	out := make(chan []T)
	go func() {
		defer close(out)
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		var batch []T
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			b := batch
			batch = nil
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					flush()
					return
				}
				batch = append(batch, v)
				if max > 0 && len(batch) >= max {
					if !flush() {
						return
					}
					ticker.Reset(window)
				}
			case <-ticker.C:
				if !flush() {
					return
				}
			}
		}
	}()
	return out
}

// Debounce emits the latest value from in once no new value arrived for d.
func Debounce[T any](ctx context.Context, in <-chan T, d time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		timer := time.NewTimer(d)
		timer.Stop()
		var (
			latest  T
			pending bool
		)
		emit := func() bool {
			if !pending {
				return true
			}
			pending = false
			select {
			case out <- latest:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case v, ok := <-in:
				if !ok {
					timer.Stop()
					emit()
					return
				}
				latest, pending = v, true
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d)
			case <-timer.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}

// Merge forwards values from every input to one output, closed once all
// inputs are closed.
func Merge[T any](ctx context.Context, ins ...<-chan T) <-chan T {
	out := make(chan T)
	var wg sync.WaitGroup
	wg.Add(len(ins))
	for _, in := range ins {
		go func(in <-chan T) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case v, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- v:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Filter forwards the values of in for which keep returns true.
func Filter[T any](ctx context.Context, in <-chan T, keep func(T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !keep(v) {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
