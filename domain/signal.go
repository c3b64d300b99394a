package domain

import "encoding/json"

// SignalKind enumerates the call-setup events the relay forwards.
type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalICE    SignalKind = "ice"
	SignalEnd    SignalKind = "end"
)

// Valid reports whether k is a known signaling kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICE, SignalEnd:
		return true
	}
	return false
}

// Signal is a call-signaling packet relayed between two tenant-matched
// principals. Signals are never persisted: a stale offer or ICE candidate
// is meaningless once the call attempt has lapsed.
type Signal struct {
	From    PrincipalID
	To      PrincipalID
	Kind    SignalKind
	Payload json.RawMessage
}
