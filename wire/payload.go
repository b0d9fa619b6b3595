package wire

import (
	"github.com/outofforest/proton/helpers"
)

// MarshalPayload encodes msg as a self-describing payload: the varint message
// ID followed by the marshalled body.
func MarshalPayload(msg any) ([]byte, error) {
	m := NewMarshaller()
	id, err := m.ID(msg)
	if err != nil {
		return nil, err
	}
	size, err := m.Size(msg)
	if err != nil {
		return nil, err
	}

	var n uint64 = 1
	helpers.UInt64Size(id, &n)

	b := make([]byte, n+size)
	var o uint64
	helpers.UInt64Marshal(id, b, &o)
	_, msgSize, err := m.Marshal(msg, b[o:])
	if err != nil {
		return nil, err
	}
	return b[:o+msgSize], nil
}

// UnmarshalPayload decodes a payload produced by MarshalPayload.
func UnmarshalPayload(b []byte) (retMsg any, retErr error) {
	defer helpers.RecoverUnmarshal(&retErr)

	var id, o uint64
	helpers.UInt64Unmarshal(&id, b, &o)
	msg, _, err := NewMarshaller().Unmarshal(id, b[o:])
	if err != nil {
		return nil, err
	}
	return msg, nil
}
