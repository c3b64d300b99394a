// Package ws is the transport boundary of the relay: one websocket
// endpoint speaking JSON frames, authenticated by the first frame.
package ws

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"society-connect/domain"
	"society-connect/domain/event"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server frame types.
const (
	TypeConnect      = "connect"
	TypeChatMessage  = "chat_message"
	TypeMarkRead     = "mark_read"
	TypeCallOffer    = "call_offer"
	TypeCallAnswer   = "call_answer"
	TypeICECandidate = "ice_candidate"
	TypeCallEnd      = "call_end"
	TypeTyping       = "typing"
)

// Server -> client frame types. TypeChatMessage, the call frames and
// TypeTyping are reused verbatim on the way out.
const (
	TypeAck           = "ack"
	TypeError         = "error"
	TypeAuthError     = "auth_error"
	TypeMessageStatus = "message_status"
	TypePresence      = "presence"
	TypeCallError     = "call_error"
)

type ConnectPayload struct {
	Credential string `json:"credential" validate:"required"`
}

type MediaPayload struct {
	URL  string `json:"url" validate:"required,uri"`
	Data []byte `json:"data,omitempty"`
}

type ChatMessagePayload struct {
	To    string        `json:"to" validate:"required"`
	Body  string        `json:"body" validate:"required_without=Media,max=4000"`
	Media *MediaPayload `json:"media,omitempty"`
}

type MarkReadPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

type SignalPayload struct {
	To      string          `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TypingPayload struct {
	To     string `json:"to" validate:"required"`
	Typing bool   `json:"typing"`
}

var validate = validator.New()

// Validate checks a decoded payload against its struct tags.
func Validate(payload any) error {
	return validate.Struct(payload)
}

// Outbound payloads.

type AckPayload struct {
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

type ErrorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

type ChatMessageEventPayload struct {
	MessageID string        `json:"message_id"`
	From      string        `json:"from"`
	Body      string        `json:"body"`
	Media     *MediaPayload `json:"media,omitempty"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type MessageStatusPayload struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type PresencePayload struct {
	PrincipalID string    `json:"principal_id"`
	Online      bool      `json:"online"`
	At          time.Time `json:"at"`
}

type CallSignalPayload struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TypingEventPayload struct {
	From   string `json:"from"`
	Typing bool   `json:"typing"`
}

// NewFrame marshals a payload into its envelope. Marshalling of the
// payload structs above cannot fail; the error return keeps callers honest.
func NewFrame(frameType string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: raw}, nil
}

// signalFrameType maps a relayed signal kind to its outbound frame type.
func signalFrameType(kind domain.SignalKind) string {
	switch kind {
	case domain.SignalOffer:
		return TypeCallOffer
	case domain.SignalAnswer:
		return TypeCallAnswer
	case domain.SignalICE:
		return TypeICECandidate
	default:
		return TypeCallEnd
	}
}

// EncodeEvent turns a fanned-out event into its wire frame.
func EncodeEvent(e event.Event) (Frame, error) {
	switch evt := e.(type) {
	case event.MessageReceived:
		payload := ChatMessageEventPayload{
			MessageID: evt.ID.String(),
			From:      string(evt.From),
			Body:      evt.Body,
			Status:    string(evt.Status),
			CreatedAt: evt.CreatedAt,
		}
		if evt.Media != nil {
			payload.Media = &MediaPayload{URL: evt.Media.URL}
		}
		return NewFrame(TypeChatMessage, payload)
	case event.MessageStatusChanged:
		return NewFrame(TypeMessageStatus, MessageStatusPayload{
			MessageID: evt.ID.String(),
			Status:    string(evt.Status),
		})
	case event.PresenceChanged:
		return NewFrame(TypePresence, PresencePayload{
			PrincipalID: string(evt.PrincipalID),
			Online:      evt.Online,
			At:          evt.At,
		})
	case event.CallSignal:
		return NewFrame(signalFrameType(evt.Kind), CallSignalPayload{
			From:    string(evt.From),
			Payload: evt.Payload,
		})
	case event.TypingNotice:
		return NewFrame(TypeTyping, TypingEventPayload{
			From:   string(evt.From),
			Typing: evt.Typing,
		})
	case event.SessionRevoked:
		return NewFrame(TypeAuthError, ErrorPayload{Code: evt.Reason})
	default:
		return NewFrame(TypeError, ErrorPayload{Code: "UNSUPPORTED_EVENT"})
	}
}
