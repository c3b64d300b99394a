// Package event defines the events fanned out to connected sessions.
// Events are in-memory values; durability, when needed, is the delivery
// pipeline's concern, not the event's.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"society-connect/domain"
)

// Event is the marker implemented by everything a session sink can consume.
type Event interface {
	isEvent()
}

// MessageReceived is pushed to the receiver's live sessions when a chat
// message is relayed.
type MessageReceived struct {
	ID        uuid.UUID
	From      domain.PrincipalID
	Body      string
	Media     *domain.MediaRef
	Status    domain.MessageStatus
	CreatedAt time.Time
}

// MessageStatusChanged notifies a connected observer that a message moved
// along the sent -> delivered -> read lattice.
type MessageStatusChanged struct {
	ID     uuid.UUID
	Status domain.MessageStatus
}

// PresenceChanged is broadcast tenant-wide when a principal's connection
// count crosses the 0/1 edge in either direction.
type PresenceChanged struct {
	PrincipalID domain.PrincipalID
	Online      bool
	At          time.Time
}

// CallSignal carries one call-setup packet to the callee's sessions.
type CallSignal struct {
	From    domain.PrincipalID
	Kind    domain.SignalKind
	Payload json.RawMessage
}

// TypingNotice is a transient indicator, relayed best-effort and never stored.
type TypingNotice struct {
	From   domain.PrincipalID
	Typing bool
}

// SessionRevoked tells a session its credential is no longer valid.
// The transport closes the connection right after emitting it.
type SessionRevoked struct {
	Reason string
}

func (MessageReceived) isEvent()      {}
func (MessageStatusChanged) isEvent() {}
func (PresenceChanged) isEvent()      {}
func (CallSignal) isEvent()           {}
func (TypingNotice) isEvent()         {}
func (SessionRevoked) isEvent()       {}
