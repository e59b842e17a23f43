package persist

import (
	"context"
	"sync"
)

// MemorySlot keeps the blob in memory. State is lost on exit.
type MemorySlot struct {
	mu    sync.Mutex
	value []byte
	saved bool
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return nil, nil
	}
	return append([]byte(nil), s.value...), nil
}

func (s *MemorySlot) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = append([]byte(nil), data...)
	s.saved = true
	return nil
}

func (s *MemorySlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
	s.saved = false
	return nil
}
