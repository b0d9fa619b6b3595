package relay

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/relay/wire"
)

// Conn is one established duplex connection able to carry envelopes.
// Implementations own framing and serialization; the peer does not care how
// bytes travel.
type Conn interface {
	WriteEnvelope(env *wire.Envelope) error
	ReadEnvelope() (*wire.Envelope, error)
	Close() error
}

// Size of the bounded inbound queue. A remote peer outrunning dispatch by
// more than this many envelopes stalls, transitively applying backpressure.
const inboundQueueSize = 64

// handleIO multiplexes one connection: the sender drains the outbound queue
// onto the wire, the receiver feeds parsed envelopes into the bounded inbound
// queue, and dispatch splits responses from incoming messages.
//
// Teardown is two-step: first the pending-response table is taken and all
// waiters woken with a closed channel, only then is the connection removed
// from the registry. A request racing against shutdown therefore observes a
// closed connection instead of hanging forever.
func (p *Peer) handleIO(
	ctx context.Context,
	connectionID ConnectionID,
	state *connState,
	conn Conn,
	inbound chan *wire.Envelope,
	incoming chan<- *TypedEnvelope,
) error {
	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("sender", parallel.Exit, func(ctx context.Context) error {
			// Closing the connection unblocks the receiver.
			defer conn.Close()

			for {
				env, err := state.outbox.Pop(ctx)
				if err != nil {
					if errors.Is(err, ErrConnectionClosed) {
						return nil
					}
					return err
				}
				if err := conn.WriteEnvelope(env); err != nil {
					return errors.Wrap(err, "failed to write RPC message")
				}
			}
		})
		spawn("receiver", parallel.Fail, func(ctx context.Context) error {
			defer close(inbound)

			for {
				env, err := conn.ReadEnvelope()
				if err != nil {
					if ctx.Err() != nil {
						return errors.WithStack(ctx.Err())
					}
					return errors.Wrap(err, "received invalid RPC message")
				}
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case inbound <- env:
				}
			}
		})
		spawn("dispatch", parallel.Exit, func(ctx context.Context) error {
			defer close(incoming)

			return p.dispatch(ctx, connectionID, state, inbound, incoming)
		})

		return nil
	})

	for _, ch := range state.takePending() {
		close(ch)
	}

	p.mu.Lock()
	delete(p.connections, connectionID)
	p.mu.Unlock()
	state.outbox.Close()

	return err
}

// dispatch demultiplexes the inbound queue. Envelopes answering a pending
// request are delivered to the requester; everything else is converted into a
// typed envelope and yielded to the application.
func (p *Peer) dispatch(
	ctx context.Context,
	connectionID ConnectionID,
	state *connState,
	inbound <-chan *wire.Envelope,
	incoming chan<- *TypedEnvelope,
) error {
	log := logger.Get(ctx)

	for env := range inbound {
		if env.RespondingTo != 0 {
			if err := deliverResponse(ctx, log, state, env); err != nil {
				return err
			}
			continue
		}

		msg, err := wire.UnmarshalPayload(env.Payload)
		if err != nil {
			log.Error("Unable to construct a typed envelope", zap.Error(err))
			continue
		}

		typed := &TypedEnvelope{
			SenderID:         connectionID,
			OriginalSenderID: env.OriginalSenderID,
			MessageID:        env.ID,
			Payload:          msg,
		}
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case incoming <- typed:
		}
	}

	return nil
}

// Delivering a response blocks the dispatch loop until the requester signals
// the resume barrier. This is what guarantees a response is observed strictly
// before any later-queued incoming message on the same connection.
func deliverResponse(ctx context.Context, log *zap.Logger, state *connState, env *wire.Envelope) error {
	ch, alive := state.removePending(env.RespondingTo)
	if ch == nil {
		if alive {
			log.Warn("Received RPC response to unknown request",
				zap.Uint64("respondingTo", uint64(env.RespondingTo)))
		}
		return nil
	}

	resumed := make(chan struct{})
	// The channel is buffered, so this send completes even if the requester
	// already lost interest; abandonRequest drains it then.
	ch <- pendingResponse{envelope: env, resumed: resumed}

	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-resumed:
	}
	return nil
}
