package relay

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/outofforest/relay/wire"
)

const (
	// DefaultMaxMessageSize bounds a single envelope frame. Oversized frames
	// are treated as a malformed stream, fatal to the connection.
	DefaultMaxMessageSize = 4 * 1024 * 1024

	// DefaultWriteTimeout bounds a single envelope write. A peer unable to
	// accept a frame for this long is treated as dead.
	DefaultWriteTimeout = 10 * time.Second
)

// Config configures a stream transport.
type Config struct {
	MaxMessageSize uint64
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// StreamConn carries envelopes over any net.Conn, framed as a 4-byte
// big-endian length followed by the marshalled envelope.
type StreamConn struct {
	conn   net.Conn
	config Config
	m      wire.Marshaller
}

// NewStreamConn wraps an established net.Conn.
func NewStreamConn(conn net.Conn, config Config) *StreamConn {
	return &StreamConn{
		conn:   conn,
		config: config.withDefaults(),
		m:      wire.NewMarshaller(),
	}
}

// Pipe returns both ends of an in-memory connection, for tests and
// in-process wiring.
func Pipe(config Config) (*StreamConn, *StreamConn) {
	c1, c2 := net.Pipe()
	return NewStreamConn(c1, config), NewStreamConn(c2, config)
}

// WriteEnvelope writes one envelope, bounded by the configured write timeout.
func (c *StreamConn) WriteEnvelope(env *wire.Envelope) error {
	id, err := c.m.ID(env)
	if err != nil {
		return errors.WithStack(err)
	}
	size, err := c.m.Size(env)
	if err != nil {
		return errors.WithStack(err)
	}

	b := make([]byte, 4+binary.MaxVarintLen64+size)
	idLen := uint64(binary.PutUvarint(b[4:], id))
	_, msgSize, err := c.m.Marshal(env, b[4+idLen:])
	if err != nil {
		return errors.WithStack(err)
	}

	total := idLen + msgSize
	if total > c.config.MaxMessageSize {
		return errors.Errorf("message size %d exceeds limit %d", total, c.config.MaxMessageSize)
	}
	binary.BigEndian.PutUint32(b, uint32(total))

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return errors.WithStack(err)
	}
	if _, err := c.conn.Write(b[:4+total]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return errors.Wrap(err, "timed out writing RPC message")
		}
		return errors.WithStack(err)
	}
	return nil
}

// ReadEnvelope reads one envelope. It blocks until a full frame arrives.
func (c *StreamConn) ReadEnvelope() (*wire.Envelope, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size == 0 || uint64(size) > c.config.MaxMessageSize {
		return nil, errors.Errorf("invalid message size %d", size)
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(c.conn, b); err != nil {
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
func (c *StreamConn) Close() error {
	return errors.WithStack(c.conn.Close())
}
