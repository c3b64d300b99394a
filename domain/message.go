package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus tracks the delivery lifecycle of a message.
// It is monotone: sent -> delivered -> read, never backwards.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// CanAdvance reports whether moving to next respects monotonicity.
// Equal status is not an advance.
func (s MessageStatus) CanAdvance(next MessageStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	n, ok := statusRank[next]
	if !ok {
		return false
	}
	return n > cur
}

// Valid reports whether s is one of the three known statuses.
func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// MediaRef points at an uploaded attachment. The relay never reads the
// bytes; ContentType is filled by sniffing when the sender provides one.
type MediaRef struct {
	URL         string
	ContentType string
}

// Message represents a persisted chat message between two principals
// of the same tenant.
type Message struct {
	ID         uuid.UUID
	TenantID   TenantID
	SenderID   PrincipalID
	ReceiverID PrincipalID
	Body       string
	Media      *MediaRef
	CreatedAt  time.Time
	Status     MessageStatus
}
