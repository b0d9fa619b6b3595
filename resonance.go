package relay

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/outofforest/parallel"
	"github.com/outofforest/relay/wire"
	"github.com/outofforest/resonance"
)

// Handler consumes the incoming message stream of one connection.
type Handler func(ctx context.Context, connectionID ConnectionID, incoming <-chan *TypedEnvelope) error

// ResonanceConn adapts a resonance connection to the Conn interface.
// Write timeouts are owned by resonance here, so Config.WriteTimeout does not
// apply.
type ResonanceConn struct {
	conn *resonance.Connection
	m    wire.Marshaller
}

// NewResonanceConn wraps an established resonance connection.
func NewResonanceConn(conn *resonance.Connection) *ResonanceConn {
	return &ResonanceConn{
		conn: conn,
		m:    wire.NewMarshaller(),
	}
}

// WriteEnvelope sends one envelope.
func (c *ResonanceConn) WriteEnvelope(env *wire.Envelope) error {
	return errors.WithStack(c.conn.SendProton(env, c.m))
}

// ReadEnvelope receives one envelope.
func (c *ResonanceConn) ReadEnvelope() (*wire.Envelope, error) {
	msg, err := c.conn.ReceiveProton(c.m)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	env, ok := msg.(*wire.Envelope)
	if !ok {
		return nil, errors.Errorf("unexpected message type %T", msg)
	}
	return env, nil
}

// Close closes the underlying connection.
func (c *ResonanceConn) Close() error {
	c.conn.Close()
	return nil
}

// RunServer accepts connections on the listener and serves each of them on
// the peer, invoking the handler with its incoming stream.
func RunServer(ctx context.Context, p *Peer, ls net.Listener, config Config, handler Handler) error {
	connConfig := resonance.Config{MaxMessageSize: config.withDefaults().MaxMessageSize}
	return resonance.RunServer(ctx, ls, connConfig,
		func(ctx context.Context, c *resonance.Connection) error {
			return p.serve(ctx, NewResonanceConn(c), handler)
		})
}

// RunClient connects to the address and serves the connection on the peer,
// invoking the handler with its incoming stream. It returns when the
// connection ends; reconnecting is the caller's decision.
func RunClient(ctx context.Context, p *Peer, addr string, config Config, handler Handler) error {
	connConfig := resonance.Config{MaxMessageSize: config.withDefaults().MaxMessageSize}
	return resonance.RunClient(ctx, addr, connConfig,
		func(ctx context.Context, c *resonance.Connection) error {
			return p.serve(ctx, NewResonanceConn(c), handler)
		})
}

func (p *Peer) serve(ctx context.Context, conn Conn, handler Handler) error {
	connectionID, handleIO, incoming := p.AddConnection(conn)
	defer p.Disconnect(connectionID)

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("io", parallel.Fail, handleIO)
		spawn("handler", parallel.Exit, func(ctx context.Context) error {
			return handler(ctx, connectionID, incoming)
		})

		return nil
	})
}
