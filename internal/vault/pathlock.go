package vault

import (
	"context"
	"sync"
)

// pathLocks hands out one mutual-exclusion slot per key. Slots are reference
// counted and dropped when nobody holds or waits on them, so the map only
// grows with concurrent work.
type pathLocks struct {
	mu    sync.Mutex
	slots map[string]*pathSlot
}

type pathSlot struct {
	ch   chan struct{}
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{slots: make(map[string]*pathSlot)}
}

// Lock waits for the slot of key. It gives up when ctx ends, so a stuck
// holder cannot block callers past their deadline.
func (p *pathLocks) Lock(ctx context.Context, key string) (func(), error) {
	p.mu.Lock()
	slot, ok := p.slots[key]
	if !ok {
		slot = &pathSlot{ch: make(chan struct{}, 1)}
		p.slots[key] = slot
	}
	slot.refs++
	p.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		p.release(key, slot)
		return nil, ctxErr(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			p.release(key, slot)
		})
	}, nil
}

func (p *pathLocks) release(key string, slot *pathSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(p.slots, key)
	}
}

// size reports the number of live slots
func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
