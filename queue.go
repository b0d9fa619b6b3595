package relay

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/outofforest/relay/wire"
)

// outbox is the unbounded outbound queue of one connection. Pushing never
// blocks the caller; the connection's sender loop drains it in FIFO order.
type outbox struct {
	mu     sync.Mutex
	queue  []*wire.Envelope
	closed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		wake: make(chan struct{}, 1),
	}
}

// Push enqueues env. It reports false once the outbox has been closed.
func (o *outbox) Push(env *wire.Envelope) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, env)
	o.mu.Unlock()

	o.notify()
	return true
}

// Pop blocks until an envelope is available. Once the outbox is closed and
// drained it returns ErrConnectionClosed.
func (o *outbox) Pop(ctx context.Context) (*wire.Envelope, error) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			env := o.queue[0]
			o.queue[0] = nil
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return env, nil
		}
		closed := o.closed
		o.mu.Unlock()

		if closed {
			return nil, errors.WithStack(ErrConnectionClosed)
		}

		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-o.wake:
		}
	}
}

func (o *outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.notify()
}

func (o *outbox) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
