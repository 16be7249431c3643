// Package mesh implements the peer-to-peer simulation core: messages,
// per-node single-threaded executors, the handshake state machine, the
// static network grid, and pluggable routing.
package mesh

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageFlag identifies the protocol role of a Message.
type MessageFlag int

const (
	// FlagAcknowledgement confirms receipt of an earlier message,
	// correlated by timestamp.
	FlagAcknowledgement MessageFlag = iota
	// FlagDiscovery carries an initiator's certificate to open a session.
	FlagDiscovery
	// FlagAuthorization carries a responder's certificate and KEM
	// ciphertext, completing session establishment.
	FlagAuthorization
	// FlagMessage carries application payload, encrypted once a session
	// exists.
	FlagMessage
)

func (f MessageFlag) String() string {
	switch f {
	case FlagAcknowledgement:
		return "Acknowledgement"
	case FlagDiscovery:
		return "Discovery"
	case FlagAuthorization:
		return "Authorization"
	case FlagMessage:
		return "Message"
	default:
		return "Unknown"
	}
}

// Message is a single packet travelling through the mesh. It is never
// copied or mutated across hops - the same pointer is forwarded node to
// node, and its Payload may be encrypted in place once a session exists.
type Message struct {
	// ID is a diagnostic identifier, useful for log correlation. It plays
	// no role in the wire protocol; Timestamp remains the correlation key
	// an Acknowledgement is matched against.
	ID string

	Source      string
	Destination string
	Flag        MessageFlag
	Payload     []byte
	Timestamp   uint64

	once sync.Once
	done chan struct{}
}

// clockBase anchors message timestamps. time.Since measures against its
// monotonic clock reading, so timestamps keep increasing even if the wall
// clock is stepped while the process runs.
var clockBase = time.Now()

// NewMessage constructs a message ready to be handed to a Node's Send.
func NewMessage(source, destination string, flag MessageFlag, payload []byte) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Flag:        flag,
		Payload:     payload,
		Timestamp:   uint64(clockBase.UnixNano() + int64(time.Since(clockBase))),
		done:        make(chan struct{}),
	}
}

// NewAcknowledgement builds the acknowledgement for an inbound message,
// sourced from the receiver back to the original sender and correlated by
// the original message's timestamp.
func NewAcknowledgement(original *Message) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Source:      original.Destination,
		Destination: original.Source,
		Flag:        FlagAcknowledgement,
		Timestamp:   original.Timestamp,
		done:        make(chan struct{}),
	}
}

// Received fires the message's completion signal. It is safe to call more
// than once; only the first call has any effect.
func (m *Message) Received() {
	m.once.Do(func() { close(m.done) })
}

// Wait blocks until Received has been called.
func (m *Message) Wait() {
	<-m.done
}

// WaitTimeout blocks until Received has been called or d elapses, reporting
// which happened first.
func (m *Message) WaitTimeout(d time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(d):
		return false
	}
}
