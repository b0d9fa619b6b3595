package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/relay/wire"
)

// ErrConnectionClosed is reported when the target connection is gone or goes
// away while a request is pending. Match it with errors.Is.
var ErrConnectionClosed = errors.New("connection closed")

// ConnectionID identifies a physical connection registered on a Peer.
// IDs are never reused within one Peer.
type ConnectionID uint64

type pendingResponse struct {
	envelope *wire.Envelope

	// Closed by the requester once it has observed the response. The dispatch
	// loop waits for it before presenting anything else from the connection.
	resumed chan<- struct{}
}

type connState struct {
	outbox        *outbox
	nextMessageID atomic.Uint64

	mu sync.Mutex
	// nil exactly after teardown started. That is the signal that no further
	// responses can be registered on this connection.
	pending map[wire.MessageID]chan pendingResponse
}

func newConnState() *connState {
	return &connState{
		outbox:  newOutbox(),
		pending: map[wire.MessageID]chan pendingResponse{},
	}
}

func (c *connState) allocMessageID() wire.MessageID {
	return wire.MessageID(c.nextMessageID.Add(1))
}

func (c *connState) registerPending(messageID wire.MessageID, ch chan pendingResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return errors.WithStack(ErrConnectionClosed)
	}
	c.pending[messageID] = ch
	return nil
}

// removePending reports the removed channel, if any, and whether the pending
// table is still alive.
func (c *connState) removePending(messageID wire.MessageID) (chan pendingResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil, false
	}
	ch := c.pending[messageID]
	delete(c.pending, messageID)
	return ch, true
}

func (c *connState) takePending() map[wire.MessageID]chan pendingResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.pending
	c.pending = nil
	return pending
}

// Receipt proves the holder may respond exactly once to a specific inbound
// request. All receipts minted from one envelope share the single use.
type Receipt struct {
	SenderID  ConnectionID
	MessageID wire.MessageID

	used *atomic.Bool
}

// TypedEnvelope is an inbound message decoded to its payload type and
// annotated with sender metadata.
type TypedEnvelope struct {
	SenderID         ConnectionID
	OriginalSenderID wire.PeerID
	MessageID        wire.MessageID
	Payload          any

	receiptUsed atomic.Bool
}

// OriginalSender returns the logical origin the message was forwarded on
// behalf of.
func (e *TypedEnvelope) OriginalSender() (wire.PeerID, error) {
	if e.OriginalSenderID == 0 {
		return 0, errors.New("missing original sender")
	}
	return e.OriginalSenderID, nil
}

// Receipt mints the capability to respond to this message.
func (e *TypedEnvelope) Receipt() *Receipt {
	return &Receipt{
		SenderID:  e.SenderID,
		MessageID: e.MessageID,
		used:      &e.receiptUsed,
	}
}

// Peer owns all connection state and exposes the request/send/respond API.
// It is an explicit handle, not a process-wide singleton; independent Peers
// coexist freely within one process.
type Peer struct {
	nextConnectionID atomic.Uint64

	mu          sync.RWMutex
	connections map[ConnectionID]*connState
}

// New creates a peer with no connections.
func New() *Peer {
	return &Peer{
		connections: map[ConnectionID]*connState{},
	}
}

// AddConnection registers an established connection and returns its ID, the
// I/O task to run for its lifetime, and the stream of incoming messages.
//
// Outgoing messages go through an unbounded queue so application code can
// always send without blocking. Incoming messages go through a bounded queue
// so a remote peer sending faster than this process dispatches them gets
// backpressure instead of unbounded buffering.
func (p *Peer) AddConnection(conn Conn) (ConnectionID, func(ctx context.Context) error, <-chan *TypedEnvelope) {
	connectionID := ConnectionID(p.nextConnectionID.Add(1))
	state := newConnState()

	p.mu.Lock()
	p.connections[connectionID] = state
	p.mu.Unlock()

	inbound := make(chan *wire.Envelope, inboundQueueSize)
	incoming := make(chan *TypedEnvelope)

	return connectionID, func(ctx context.Context) error {
		return p.handleIO(ctx, connectionID, state, conn, inbound, incoming)
	}, incoming
}

// Request sends msg and waits for the correlated response. Cancelling ctx
// abandons the response without cancelling the request already in flight on
// the wire.
func (p *Peer) Request(ctx context.Context, receiverID ConnectionID, msg any) (any, error) {
	return p.request(ctx, 0, receiverID, msg)
}

// ForwardRequest relays a request on behalf of senderID. The receiver
// observes senderID as the message's original sender; the response is still
// delivered to the caller.
func (p *Peer) ForwardRequest(
	ctx context.Context,
	senderID wire.PeerID,
	receiverID ConnectionID,
	msg any,
) (any, error) {
	return p.request(ctx, senderID, receiverID, msg)
}

func (p *Peer) request(
	ctx context.Context,
	originalSenderID wire.PeerID,
	receiverID ConnectionID,
	msg any,
) (any, error) {
	state, err := p.connection(receiverID)
	if err != nil {
		return nil, err
	}

	payload, err := wire.MarshalPayload(msg)
	if err != nil {
		return nil, err
	}

	messageID := state.allocMessageID()
	ch := make(chan pendingResponse, 1)
	if err := state.registerPending(messageID, ch); err != nil {
		return nil, err
	}

	if !state.outbox.Push(&wire.Envelope{
		ID:               messageID,
		OriginalSenderID: originalSenderID,
		Payload:          payload,
	}) {
		state.removePending(messageID)
		return nil, errors.WithStack(ErrConnectionClosed)
	}

	select {
	case <-ctx.Done():
		abandonRequest(state, messageID, ch)
		return nil, errors.WithStack(ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.WithStack(ErrConnectionClosed)
		}
		defer close(resp.resumed)

		respMsg, err := wire.UnmarshalPayload(resp.envelope.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "received response of the wrong type")
		}
		if remoteErr, ok := respMsg.(*wire.Error); ok {
			return nil, errors.Errorf("request failed: %s", remoteErr.Message)
		}
		return respMsg, nil
	}
}

// Abandoning a request must never leave the dispatch loop blocked on the
// resume barrier: if a response already won the race for the pending entry,
// it is drained and its barrier released here.
func abandonRequest(state *connState, messageID wire.MessageID, ch chan pendingResponse) {
	if removed, _ := state.removePending(messageID); removed != nil {
		return
	}
	if resp, ok := <-ch; ok {
		close(resp.resumed)
	}
}

// Send sends a fire-and-forget message.
func (p *Peer) Send(receiverID ConnectionID, msg any) error {
	return p.send(0, receiverID, msg)
}

// ForwardSend relays a fire-and-forget message on behalf of senderID.
func (p *Peer) ForwardSend(senderID wire.PeerID, receiverID ConnectionID, msg any) error {
	return p.send(senderID, receiverID, msg)
}

func (p *Peer) send(originalSenderID wire.PeerID, receiverID ConnectionID, msg any) error {
	state, err := p.connection(receiverID)
	if err != nil {
		return err
	}

	payload, err := wire.MarshalPayload(msg)
	if err != nil {
		return err
	}

	if !state.outbox.Push(&wire.Envelope{
		ID:               state.allocMessageID(),
		OriginalSenderID: originalSenderID,
		Payload:          payload,
	}) {
		return errors.WithStack(ErrConnectionClosed)
	}
	return nil
}

// Respond answers the request identified by the receipt. Receipts are
// single-use: a second response through the same receipt fails.
func (p *Peer) Respond(receipt *Receipt, msg any) error {
	payload, err := wire.MarshalPayload(msg)
	if err != nil {
		return err
	}
	return p.respond(receipt, payload)
}

// RespondWithError answers the request with the reserved error variant,
// resolving the remote request future with an error.
func (p *Peer) RespondWithError(receipt *Receipt, remoteErr *wire.Error) error {
	payload, err := wire.MarshalPayload(remoteErr)
	if err != nil {
		return err
	}
	return p.respond(receipt, payload)
}

func (p *Peer) respond(receipt *Receipt, payload []byte) error {
	state, err := p.connection(receipt.SenderID)
	if err != nil {
		return err
	}

	if !receipt.used.CompareAndSwap(false, true) {
		return errors.Errorf("message %d has already been responded to", receipt.MessageID)
	}

	if !state.outbox.Push(&wire.Envelope{
		ID:           state.allocMessageID(),
		RespondingTo: receipt.MessageID,
		Payload:      payload,
	}) {
		return errors.WithStack(ErrConnectionClosed)
	}
	return nil
}

// Disconnect removes the connection. Closing its outbound queue is enough for
// the connection's I/O task to wind down on its own; no direct cancellation
// is needed.
func (p *Peer) Disconnect(receiverID ConnectionID) {
	p.mu.Lock()
	state := p.connections[receiverID]
	delete(p.connections, receiverID)
	p.mu.Unlock()

	if state != nil {
		state.outbox.Close()
	}
}

// Reset drops all connections at once.
func (p *Peer) Reset() {
	p.mu.Lock()
	states := make([]*connState, 0, len(p.connections))
	for _, state := range p.connections {
		states = append(states, state)
	}
	p.connections = map[ConnectionID]*connState{}
	p.mu.Unlock()

	for _, state := range states {
		state.outbox.Close()
	}
}

// The registry lock is held only long enough to clone a cheap handle.
func (p *Peer) connection(receiverID ConnectionID) (*connState, error) {
	p.mu.RLock()
	state, exists := p.connections[receiverID]
	p.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(ErrConnectionClosed, "no such connection: %d", receiverID)
	}
	return state, nil
}
