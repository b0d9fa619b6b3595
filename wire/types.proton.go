package wire

import (
	"reflect"

	"github.com/outofforest/proton"
	"github.com/outofforest/proton/helpers"
	"github.com/pkg/errors"
)

const (
	id3 uint64 = iota + 1
	id1
	id5
	id0
	id2
	id4
)

var _ proton.Marshaller = Marshaller{}

// NewMarshaller creates marshaller.
func NewMarshaller() Marshaller {
	return Marshaller{}
}

// Marshaller marshals and unmarshals messages.
type Marshaller struct {
}

// Messages returns list of the message types supported by marshaller.
func (m Marshaller) Messages() []any {
	return []any {
		Envelope{},
		Error{},
		Ping{},
		Ack{},
		Query{},
		QueryResult{},
	}
}

// ID returns ID of message type.
func (m Marshaller) ID(msg any) (uint64, error) {
	switch msg.(type) {
	case *Envelope:
		return id3, nil
	case *Error:
		return id1, nil
	case *Ping:
		return id5, nil
	case *Ack:
		return id0, nil
	case *Query:
		return id2, nil
	case *QueryResult:
		return id4, nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Size computes the size of marshalled message.
func (m Marshaller) Size(msg any) (uint64, error) {
	switch msg2 := msg.(type) {
	case *Envelope:
		return size3(msg2), nil
	case *Error:
		return size1(msg2), nil
	case *Ping:
		return size5(msg2), nil
	case *Ack:
		return size0(msg2), nil
	case *Query:
		return size2(msg2), nil
	case *QueryResult:
		return size4(msg2), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Marshal marshals message.
func (m Marshaller) Marshal(msg any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMarshal(&retErr)

	switch msg2 := msg.(type) {
	case *Envelope:
		return id3, marshal3(msg2, buf), nil
	case *Error:
		return id1, marshal1(msg2, buf), nil
	case *Ping:
		return id5, marshal5(msg2, buf), nil
	case *Ack:
		return id0, marshal0(msg2, buf), nil
	case *Query:
		return id2, marshal2(msg2, buf), nil
	case *QueryResult:
		return id4, marshal4(msg2, buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Unmarshal unmarshals message.
func (m Marshaller) Unmarshal(id uint64, buf []byte) (retMsg any, retSize uint64, retErr error) {
	defer helpers.RecoverUnmarshal(&retErr)

	switch id {
	case id3:
		msg := &Envelope{}
		return msg, unmarshal3(msg, buf), nil
	case id1:
		msg := &Error{}
		return msg, unmarshal1(msg, buf), nil
	case id5:
		msg := &Ping{}
		return msg, unmarshal5(msg, buf), nil
	case id0:
		msg := &Ack{}
		return msg, unmarshal0(msg, buf), nil
	case id2:
		msg := &Query{}
		return msg, unmarshal2(msg, buf), nil
	case id4:
		msg := &QueryResult{}
		return msg, unmarshal4(msg, buf), nil
	default:
		return nil, 0, errors.Errorf("unknown ID %d", id)
	}
}

// MakePatch creates a patch.
func (m Marshaller) MakePatch(msgDst, msgSrc any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMakePatch(&retErr)

	switch msg2 := msgDst.(type) {
	case *Envelope:
		return id3, makePatch3(msg2, msgSrc.(*Envelope), buf), nil
	case *Error:
		return id1, makePatch1(msg2, msgSrc.(*Error), buf), nil
	case *Ping:
		return id5, makePatch5(msg2, msgSrc.(*Ping), buf), nil
	case *Ack:
		return id0, makePatch0(msg2, msgSrc.(*Ack), buf), nil
	case *Query:
		return id2, makePatch2(msg2, msgSrc.(*Query), buf), nil
	case *QueryResult:
		return id4, makePatch4(msg2, msgSrc.(*QueryResult), buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msgDst)
	}
}

// ApplyPatch applies patch.
func (m Marshaller) ApplyPatch(msg any, buf []byte) (retSize uint64, retErr error) {
	defer helpers.RecoverApplyPatch(&retErr)

	switch msg2 := msg.(type) {
	case *Envelope:
		return applyPatch3(msg2, buf), nil
	case *Error:
		return applyPatch1(msg2, buf), nil
	case *Ping:
		return applyPatch5(msg2, buf), nil
	case *Ack:
		return applyPatch0(msg2, buf), nil
	case *Query:
		return applyPatch2(msg2, buf), nil
	case *QueryResult:
		return applyPatch4(msg2, buf), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

func size3(m *Envelope) uint64 {
	var n uint64 = 4
	{
		// ID

		helpers.UInt64Size(m.ID, &n)
	}
	{
		// RespondingTo

		helpers.UInt64Size(m.RespondingTo, &n)
	}
	{
		// OriginalSenderID

		helpers.UInt64Size(m.OriginalSenderID, &n)
	}
	{
		// Payload

		{
			l := uint64(len(m.Payload))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal3(m *Envelope, b []byte) uint64 {
	var o uint64
	{
		// ID

		helpers.UInt64Marshal(m.ID, b, &o)
	}
	{
		// RespondingTo

		helpers.UInt64Marshal(m.RespondingTo, b, &o)
	}
	{
		// OriginalSenderID

		helpers.UInt64Marshal(m.OriginalSenderID, b, &o)
	}
	{
		// Payload

		{
			l := uint64(len(m.Payload))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Payload)
			o += l
		}
	}

	return o
}

func unmarshal3(m *Envelope, b []byte) uint64 {
	var o uint64
	{
		// ID

		helpers.UInt64Unmarshal(&m.ID, b, &o)
	}
	{
		// RespondingTo

		helpers.UInt64Unmarshal(&m.RespondingTo, b, &o)
	}
	{
		// OriginalSenderID

		helpers.UInt64Unmarshal(&m.OriginalSenderID, b, &o)
	}
	{
		// Payload

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Payload = make([]byte, l)
				copy(m.Payload, b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch3(m, mSrc *Envelope, b []byte) uint64 {
	var o uint64 = 1
	{
		// ID

		if reflect.DeepEqual(m.ID, mSrc.ID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.ID, b, &o)
		}
	}
	{
		// RespondingTo

		if reflect.DeepEqual(m.RespondingTo, mSrc.RespondingTo) {
			b[0] &= 0xFD
		} else {
			b[0] |= 0x02
			helpers.UInt64Marshal(m.RespondingTo, b, &o)
		}
	}
	{
		// OriginalSenderID

		if reflect.DeepEqual(m.OriginalSenderID, mSrc.OriginalSenderID) {
			b[0] &= 0xFB
		} else {
			b[0] |= 0x04
			helpers.UInt64Marshal(m.OriginalSenderID, b, &o)
		}
	}
	{
		// Payload

		if reflect.DeepEqual(m.Payload, mSrc.Payload) {
			b[0] &= 0xF7
		} else {
			b[0] |= 0x08
			{
				l := uint64(len(m.Payload))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Payload)
				o += l
			}
		}
	}

	return o
}

func applyPatch3(m *Envelope, b []byte) uint64 {
	var o uint64 = 1
	{
		// ID

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.ID, b, &o)
		}
	}
	{
		// RespondingTo

		if b[0]&0x02 != 0 {
			helpers.UInt64Unmarshal(&m.RespondingTo, b, &o)
		}
	}
	{
		// OriginalSenderID

		if b[0]&0x04 != 0 {
			helpers.UInt64Unmarshal(&m.OriginalSenderID, b, &o)
		}
	}
	{
		// Payload

		if b[0]&0x08 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Payload = make([]byte, l)
					copy(m.Payload, b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size1(m *Error) uint64 {
	var n uint64 = 1
	{
		// Message

		{
			l := uint64(len(m.Message))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal1(m *Error, b []byte) uint64 {
	var o uint64
	{
		// Message

		{
			l := uint64(len(m.Message))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Message)
			o += l
		}
	}

	return o
}

func unmarshal1(m *Error, b []byte) uint64 {
	var o uint64
	{
		// Message

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Message = string(b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch1(m, mSrc *Error, b []byte) uint64 {
	var o uint64 = 1
	{
		// Message

		if reflect.DeepEqual(m.Message, mSrc.Message) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			{
				l := uint64(len(m.Message))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Message)
				o += l
			}
		}
	}

	return o
}

func applyPatch1(m *Error, b []byte) uint64 {
	var o uint64 = 1
	{
		// Message

		if b[0]&0x01 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Message = string(b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size5(m *Ping) uint64 {
	var n uint64
	return n
}

func marshal5(m *Ping, b []byte) uint64 {
	var o uint64
	return o
}

func unmarshal5(m *Ping, b []byte) uint64 {
	var o uint64
	return o
}

func makePatch5(m, mSrc *Ping, b []byte) uint64 {
	var o uint64
	return o
}

func applyPatch5(m *Ping, b []byte) uint64 {
	var o uint64
	return o
}

func size0(m *Ack) uint64 {
	var n uint64
	return n
}

func marshal0(m *Ack, b []byte) uint64 {
	var o uint64
	return o
}

func unmarshal0(m *Ack, b []byte) uint64 {
	var o uint64
	return o
}

func makePatch0(m, mSrc *Ack, b []byte) uint64 {
	var o uint64
	return o
}

func applyPatch0(m *Ack, b []byte) uint64 {
	var o uint64
	return o
}

func size2(m *Query) uint64 {
	var n uint64 = 1
	{
		// Key

		{
			l := uint64(len(m.Key))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal2(m *Query, b []byte) uint64 {
	var o uint64
	{
		// Key

		{
			l := uint64(len(m.Key))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Key)
			o += l
		}
	}

	return o
}

func unmarshal2(m *Query, b []byte) uint64 {
	var o uint64
	{
		// Key

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Key = string(b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch2(m, mSrc *Query, b []byte) uint64 {
	var o uint64 = 1
	{
		// Key

		if reflect.DeepEqual(m.Key, mSrc.Key) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			{
				l := uint64(len(m.Key))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Key)
				o += l
			}
		}
	}

	return o
}

func applyPatch2(m *Query, b []byte) uint64 {
	var o uint64 = 1
	{
		// Key

		if b[0]&0x01 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Key = string(b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size4(m *QueryResult) uint64 {
	var n uint64 = 2
	{
		// Value

		{
			l := uint64(len(m.Value))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal4(m *QueryResult, b []byte) uint64 {
	var o uint64 = 1
	{
		// Found

		if m.Found {
			b[0] |= 0x01
		} else {
			b[0] &= 0xFE
		}
	}
	{
		// Value

		{
			l := uint64(len(m.Value))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Value)
			o += l
		}
	}

	return o
}

func unmarshal4(m *QueryResult, b []byte) uint64 {
	var o uint64 = 1
	{
		// Found

		m.Found = b[0]&0x01 != 0
	}
	{
		// Value

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Value = make([]byte, l)
				copy(m.Value, b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch4(m, mSrc *QueryResult, b []byte) uint64 {
	var o uint64 = 2
	{
		// Found

		if m.Found == mSrc.Found {
			b[1] &= 0xFE
		} else {
			b[1] |= 0x01
		}
	}
	{
		// Value

		if reflect.DeepEqual(m.Value, mSrc.Value) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			{
				l := uint64(len(m.Value))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Value)
				o += l
			}
		}
	}

	return o
}

func applyPatch4(m *QueryResult, b []byte) uint64 {
	var o uint64 = 2
	{
		// Found

		if b[1]&0x01 != 0 {
			m.Found = !m.Found
		}
	}
	{
		// Value

		if b[0]&0x01 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Value = make([]byte, l)
					copy(m.Value, b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}
