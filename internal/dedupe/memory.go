package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type memEntry struct {
	expireAt int64 // unix nano, 0 = never
}

type MemoryDedupe struct {
	log     logger.Logger
	ttl     time.Duration
	mu      sync.RWMutex
	items   map[string]memEntry
	stopCh  chan struct{}
	stopped bool
}

// for dev(one instance);
// ttl-how long to remember an id, 0 -> forever;
// janitorEvery-how long clear expired key; 0-> don't run collector
func NewInMemoryDedupe(log logger.Logger, ttl, janitorEvery time.Duration) *MemoryDedupe {
	m := &MemoryDedupe{
		log:    log,
		ttl:    ttl,
		items:  make(map[string]memEntry, 1024),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 && ttl > 0 {
		go m.janitor(janitorEvery)
	}

	return m
}

func (e memEntry) alive(now int64) bool {
	return e.expireAt == 0 || e.expireAt > now
}

func (m *MemoryDedupe) Contains(_ context.Context, id string) (bool, error) {
	now := time.Now().UnixNano()

	m.mu.RLock()
	e, ok := m.items[id]
	m.mu.RUnlock()

	return ok && e.alive(now), nil
}

func (m *MemoryDedupe) Add(_ context.Context, id string) error {
	var exp int64
	if m.ttl > 0 {
		exp = time.Now().Add(m.ttl).UnixNano()
	}

	m.mu.Lock()
	m.items[id] = memEntry{expireAt: exp}
	m.mu.Unlock()

	m.log.Debugf("Write to items by key=%s", id)
	return nil
}

// Len counts remembered ids, expired ones the janitor did not reach yet included.
func (m *MemoryDedupe) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			m.mu.Lock()
			for k, e := range m.items {
				if !e.alive(now) {
					m.log.Debugf("Removing expired item: %s", k)
					delete(m.items, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close garbage collector(if running)
func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
