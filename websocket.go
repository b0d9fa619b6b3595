package relay

import (
	"encoding/binary"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/outofforest/relay/wire"
)

// WebsocketConn carries envelopes as binary websocket messages, one envelope
// per message.
type WebsocketConn struct {
	conn   *websocket.Conn
	config Config
	m      wire.Marshaller
}

// NewWebsocketConn wraps an established websocket connection.
func NewWebsocketConn(conn *websocket.Conn, config Config) *WebsocketConn {
	config = config.withDefaults()
	conn.SetReadLimit(int64(config.MaxMessageSize))
	return &WebsocketConn{
		conn:   conn,
		config: config,
		m:      wire.NewMarshaller(),
	}
}

// WriteEnvelope writes one envelope, bounded by the configured write timeout.
func (c *WebsocketConn) WriteEnvelope(env *wire.Envelope) error {
	id, err := c.m.ID(env)
	if err != nil {
		return errors.WithStack(err)
	}
	size, err := c.m.Size(env)
	if err != nil {
		return errors.WithStack(err)
	}

	b := make([]byte, binary.MaxVarintLen64+size)
	idLen := uint64(binary.PutUvarint(b, id))
	_, msgSize, err := c.m.Marshal(env, b[idLen:])
	if err != nil {
		return errors.WithStack(err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.conn.WriteMessage(websocket.BinaryMessage, b[:idLen+msgSize]))
}

// ReadEnvelope reads one envelope.
func (c *WebsocketConn) ReadEnvelope() (*wire.Envelope, error) {
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	id, idLen := binary.Uvarint(b)
	if idLen <= 0 {
		return nil, errors.New("malformed message frame")
	}
	msg, _, err := c.m.Unmarshal(id, b[idLen:])
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
func (c *WebsocketConn) Close() error {
	return errors.WithStack(c.conn.Close())
}
