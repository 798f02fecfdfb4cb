package core

import (
	"context"
	"sync"
)

// generation is a single-shot future: fired once, never reused.
type generation struct {
	done    chan struct{}
	payload string
}

func newGeneration() *generation {
	return &generation{done: make(chan struct{})}
}

// Broadcaster wakes every long-poll client blocked in Wait.
type Broadcaster struct {
	mu      sync.Mutex
	current *generation
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{current: newGeneration()}
}

// Wait blocks until the generation current at call time fires, or ctx ends.
func (b *Broadcaster) Wait(ctx context.Context) (string, error) {
	b.mu.Lock()
	gen := b.current
	b.mu.Unlock()

	select {
	case <-gen.done:
		return gen.payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Trigger swaps in a fresh generation and fires the previous one with
// payload. Waiters that arrive after the swap block until the next Trigger.
func (b *Broadcaster) Trigger(payload string) {
	b.mu.Lock()
	prev := b.current
	b.current = newGeneration()
	b.mu.Unlock()

	prev.payload = payload
	close(prev.done)
}
