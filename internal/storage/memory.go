package storage

import (
	"context"
	"sync"
)

// memoryBackend keeps the last saved state in process memory only.
type memoryBackend struct {
	mu     sync.Mutex
	state  State
	closed bool
}

// NewMemoryBackend returns a non-durable backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{state: NewState()}
}

func (m *memoryBackend) Name() string { return TypeMemory }

func (m *memoryBackend) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return State{}, ErrBackendClosed
	}
	return cloneState(m.state), nil
}

func (m *memoryBackend) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBackendClosed
	}
	m.state = cloneState(st)
	return nil
}

func (m *memoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
