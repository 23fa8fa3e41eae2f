package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdanezis/dlsconsensus-go/message"
)

// Handler receives messages routed to one address by a Loopback.
type Handler interface {
	PutMessages(msgs []message.Wire) error
}

// Loopback is an in-process Sender that dispatches directly to
// registered Handlers, used by tests and the `dlsnode sim` command to
// run a full committee without real sockets. It can be configured to
// drop or duplicate deliveries on a deterministic cadence, so tests of
// partial-synchrony behavior don't depend on real timing or randomness.
type Loopback struct {
	mu        sync.Mutex
	handlers  map[string]Handler
	sent      uint64
	dropEvery uint64 // 0 disables; every DropEvery-th send is dropped
	dupEvery  uint64 // 0 disables; every DupEvery-th send is delivered twice
}

// NewLoopback returns a Loopback with no configured fault injection.
func NewLoopback() *Loopback {
	return &Loopback{handlers: map[string]Handler{}}
}

// Register associates addr with the Handler that should receive
// messages sent to it.
func (l *Loopback) Register(addr string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[addr] = h
}

// SetDropEvery configures every n-th Send to be silently dropped. n=0
// disables dropping.
func (l *Loopback) SetDropEvery(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvery = n
}

// SetDuplicateEvery configures every n-th Send to be delivered twice.
// n=0 disables duplication.
func (l *Loopback) SetDuplicateEvery(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dupEvery = n
}

// Send delivers msg to addr's registered Handler, subject to the
// configured drop/duplicate cadence.
func (l *Loopback) Send(_ context.Context, addr string, msg message.Wire) error {
	l.mu.Lock()
	l.sent++
	n := l.sent
	drop := l.dropEvery != 0 && n%l.dropEvery == 0
	dup := l.dupEvery != 0 && n%l.dupEvery == 0
	h, ok := l.handlers[addr]
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("transport: no handler registered for %q", addr)
	}
	if drop {
		return nil
	}
	if err := h.PutMessages([]message.Wire{msg}); err != nil {
		return err
	}
	if dup {
		return h.PutMessages([]message.Wire{msg})
	}
	return nil
}
