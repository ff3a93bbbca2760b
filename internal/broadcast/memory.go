package broadcast

import (
	"context"
	"sync"
)

// Memory is an in-process Bus. Delivery is synchronous: Publish returns
// after every subscriber callback has run, which keeps tests deterministic.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: map[int]func(Event){}}
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (m *Memory) Subscribe(fn func(Event)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = map[int]func(Event){}
	return nil
}
