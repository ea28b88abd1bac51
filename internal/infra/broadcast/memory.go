package broadcast

import (
	"context"
	"sync"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// Memory is an in-process broadcaster. Used when Redis is not
// configured, and by tests.
type Memory struct {
	mu   sync.Mutex
	next int
	subs map[int]func(domain.SyncSignal)
}

// NewMemory creates an in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]func(domain.SyncSignal))}
}

// Publish delivers the signal to all subscribers synchronously.
func (b *Memory) Publish(_ context.Context, sig domain.SyncSignal) error {
	b.mu.Lock()
	fns := make([]func(domain.SyncSignal), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
	return nil
}

// Subscribe registers fn; the returned func removes it.
func (b *Memory) Subscribe(fn func(domain.SyncSignal)) (func(), error) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}
