package services

import "sync"

// Notifier fans state snapshots out to subscribers. Each subscriber has a
// one-slot buffer holding the latest snapshot; slow readers skip
// intermediate states rather than blocking publishers.
type Notifier[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewNotifier creates an empty notifier
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel.
func (n *Notifier[T]) Subscribe() (<-chan T, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan T, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber, replacing any unread snapshot
func (n *Notifier[T]) Publish(v T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Drop the stale snapshot and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes every subscriber channel
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
