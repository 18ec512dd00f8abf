package repository

import (
	"context"
	"sync"
)

// MemoryHub in-process broker for a single instance and for tests
type MemoryHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func([]byte)
}

// NewMemoryHub create in-process broker
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[uint64]func([]byte))}
}

// Publish deliver payload to every live subscriber of channel
func (h *MemoryHub) Publish(_ context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	handlers := make([]func([]byte), 0, len(h.subs[channel]))
	for _, fn := range h.subs[channel] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
	return nil
}

// Subscribe register handler until ctx is done
func (h *MemoryHub) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[uint64]func([]byte))
	}
	h.subs[channel][id] = handler
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[channel], id)
		if len(h.subs[channel]) == 0 {
			delete(h.subs, channel)
		}
	}()
	return nil
}

// Subscribers count live subscribers of channel
func (h *MemoryHub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
