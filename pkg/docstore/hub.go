package docstore

import (
	"sync"
)

// changeHub wakes listeners of a collection path after a commit. Notifications coalesce: a listener that has
// not consumed the previous wake-up is not queued twice, it simply re-reads the latest state.
type changeHub struct {
	mu      sync.RWMutex
	streams map[string]*changeStream
}

type changeStream struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
}

type watch struct {
	hub  *changeHub
	path string
	id   uint64
	ch   chan struct{}
	once sync.Once
}

func newChangeHub() *changeHub {
	return &changeHub{streams: make(map[string]*changeStream)}
}

func (h *changeHub) publish(path string) {
	h.mu.RLock()
	stream := h.streams[path]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	subs := make([]chan struct{}, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *changeHub) subscribe(path string) *watch {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream := h.streams[path]
	if stream == nil {
		stream = &changeStream{subs: make(map[uint64]chan struct{})}
		h.streams[path] = stream
	}

	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan struct{}, 1)
	stream.subs[id] = ch
	stream.mu.Unlock()

	return &watch{hub: h, path: path, id: id, ch: ch}
}

func (h *changeHub) unsubscribe(path string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream := h.streams[path]
	if stream == nil {
		return
	}
	stream.mu.Lock()
	delete(stream.subs, id)
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, path)
	}
}

func (w *watch) close() {
	w.once.Do(func() {
		w.hub.unsubscribe(w.path, w.id)
	})
}
