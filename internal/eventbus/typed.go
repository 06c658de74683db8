package eventbus

import "sync"

// TypedBus is a type-safe publish/subscribe bus for events of type T.
//
// Subscribe returns a drop-tolerant channel: when its buffer is full the
// event is skipped for that subscriber. SubscribeLossless returns a channel
// backed by an unbounded queue so no event is ever dropped.
type TypedBus[T any] struct {
	mu       sync.RWMutex
	subs     []chan T
	lossless []*queue[T]
	closed   bool
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish sends the event to all subscribers. Delivery never blocks.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	for _, q := range b.lossless {
		q.push(e)
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, 8)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// SubscribeLossless registers a subscriber that receives every event in
// publish order, however slowly it reads.
func (b *TypedBus[T]) SubscribeLossless() <-chan T {
	q := newQueue[T]()
	b.mu.Lock()
	if b.closed {
		q.close()
	} else {
		b.lossless = append(b.lossless, q)
	}
	b.mu.Unlock()
	return q.out
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
	for i, q := range b.lossless {
		if q.out == sub {
			b.lossless = append(b.lossless[:i], b.lossless[i+1:]...)
			q.discard()
			return
		}
	}
}

// Close closes the bus and all subscriber channels. Lossless subscribers
// still receive what was queued before their channel closes.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	for _, q := range b.lossless {
		q.close()
	}
	b.subs = nil
	b.lossless = nil
	b.mu.Unlock()
}

type queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	dropped bool
	signal  chan struct{}
	out     chan T
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{signal: make(chan struct{}, 1), out: make(chan T)}
	go q.pump()
	return q
}

func (q *queue[T]) push(e T) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, e)
	}
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) discard() {
	q.mu.Lock()
	q.closed = true
	q.dropped = true
	q.items = nil
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if q.dropped || (q.closed && len(q.items) == 0) {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			<-q.signal
			continue
		}
		e := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()
		select {
		case q.out <- e:
		case <-q.signal:
			// re-check for discard, then retry the send
			q.mu.Lock()
			dropped := q.dropped
			if !dropped {
				q.items = append([]T{e}, q.items...)
			}
			q.mu.Unlock()
			if dropped {
				return
			}
		}
	}
}
