package wire

type (
	// PeerID names a logical participant that may be reached indirectly via
	// forwarding. It is distinct from a connection ID, which names a physical
	// transport. Zero means "not set" on the wire, so real IDs must be nonzero.
	PeerID uint64

	// MessageID identifies a message within one direction of one connection.
	// IDs are allocated from a monotonic counter starting at 1; zero encodes
	// an absent RespondingTo field.
	MessageID uint64
)

// Envelope is the wire-level unit: a payload plus correlation metadata.
//
// RespondingTo is set only on responses and carries the ID of the request
// being answered. OriginalSenderID is set only on forwarded messages and
// carries the logical origin on whose behalf the message is relayed.
type Envelope struct {
	ID               MessageID
	RespondingTo     MessageID
	OriginalSenderID PeerID
	Payload          []byte
}

// Error is the reserved payload variant carrying a remote failure.
// Receiving it as a response resolves the request with an error.
type Error struct {
	Message string
}

// Ping requests a liveness acknowledgement.
type Ping struct{}

// Ack acknowledges a Ping.
type Ack struct{}

// Query asks the remote peer for the value stored under a key.
type Query struct {
	Key string
}

// QueryResult answers a Query.
type QueryResult struct {
	Found bool
	Value []byte
}
