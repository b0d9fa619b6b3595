package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/relay/wire"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	requireT := require.New(t)

	m := wire.NewMarshaller()

	payload, err := wire.MarshalPayload(&wire.Query{Key: "path/one"})
	requireT.NoError(err)

	env := &wire.Envelope{
		ID:               7,
		RespondingTo:     3,
		OriginalSenderID: 9,
		Payload:          payload,
	}

	size, err := m.Size(env)
	requireT.NoError(err)

	b := make([]byte, size)
	id, msgSize, err := m.Marshal(env, b)
	requireT.NoError(err)
	requireT.LessOrEqual(msgSize, size)

	msg, _, err := m.Unmarshal(id, b[:msgSize])
	requireT.NoError(err)
	requireT.Equal(env, msg)
}

func TestPayloadRoundTrip(t *testing.T) {
	requireT := require.New(t)

	for _, msg := range []any{
		&wire.Ping{},
		&wire.Ack{},
		&wire.Error{Message: "something broke"},
		&wire.Query{Key: "path/one"},
		&wire.QueryResult{Found: true, Value: []byte{0x01, 0x02, 0x03}},
		&wire.QueryResult{},
	} {
		b, err := wire.MarshalPayload(msg)
		requireT.NoError(err)

		decoded, err := wire.UnmarshalPayload(b)
		requireT.NoError(err)
		requireT.Equal(msg, decoded)
	}
}

func TestPayloadOfUnknownType(t *testing.T) {
	requireT := require.New(t)

	_, err := wire.MarshalPayload(&struct{ Value string }{Value: "nope"})
	requireT.Error(err)
}

func TestPayloadWithUnknownID(t *testing.T) {
	requireT := require.New(t)

	_, err := wire.UnmarshalPayload([]byte{0x7f})
	requireT.Error(err)
}

func TestPayloadTruncated(t *testing.T) {
	requireT := require.New(t)

	b, err := wire.MarshalPayload(&wire.Query{Key: "a long enough key"})
	requireT.NoError(err)

	_, err = wire.UnmarshalPayload(b[:len(b)-3])
	requireT.Error(err)

	_, err = wire.UnmarshalPayload(nil)
	requireT.Error(err)
}
