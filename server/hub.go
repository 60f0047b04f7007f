package server

import (
	"context"
	"sync"
)

// hub tracks open connections for broadcast and shutdown. Once closed it
// refuses new connections, so wait sees every connection that was added.
type hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newHub() *hub {
	return &hub{conns: make(map[*conn]struct{})}
}

func (h *hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

// remove must be called once for every successful add, after the
// connection's loops have returned.
func (h *hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcast offers the frame to every connection without blocking.
func (h *hub) broadcast(frame any) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c.offer(frame) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.conns {
		c.close()
	}
}

// wait blocks until every added connection is removed or ctx ends.
func (h *hub) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
