// Package notify is the write-path invalidation bus: repositories publish a
// table name after every committed write, and live queries re-run on
// notification instead of polling.
package notify

import (
	"sync"
)

type subscriber struct {
	table string
	ch    chan struct{}
}

// Bus fans out table-change notifications. Sends never block: a subscriber
// that has not drained its channel already has a pending invalidation, and
// one is as good as many.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers interest in writes to table. The returned cancel
// function must be called to release the subscription.
func (b *Bus) Subscribe(table string) (<-chan struct{}, func()) {
	s := &subscriber{table: table, ch: make(chan struct{}, 1)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
	return s.ch, cancel
}

// Publish notifies subscribers of the given tables. Call only after the
// write transaction has committed, so a re-run query observes the new state.
func (b *Bus) Publish(tables ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		for _, t := range tables {
			if s.table == t {
				select {
				case s.ch <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}
