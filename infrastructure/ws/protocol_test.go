package ws

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"society-connect/domain"
	"society-connect/domain/event"
)

func TestChatMessagePayload_Validation(t *testing.T) {
	req := require.New(t)

	t.Run("should accept a plain text message", func(t *testing.T) {
		req.NoError(Validate(ChatMessagePayload{To: "bob", Body: "hello"}))
	})

	t.Run("should accept a media-only message with an empty body", func(t *testing.T) {
		payload := ChatMessagePayload{
			To:    "bob",
			Media: &MediaPayload{URL: "https://cdn.example/pic.png"},
		}
		req.NoError(Validate(payload))
	})

	t.Run("should reject a message with neither body nor media", func(t *testing.T) {
		req.Error(Validate(ChatMessagePayload{To: "bob"}))
	})

	t.Run("should reject a missing receiver", func(t *testing.T) {
		req.Error(Validate(ChatMessagePayload{Body: "hello"}))
	})

	t.Run("should reject a body over the size cap", func(t *testing.T) {
		payload := ChatMessagePayload{To: "bob", Body: strings.Repeat("x", 4001)}
		req.Error(Validate(payload))
	})

	t.Run("should reject a media reference without a url", func(t *testing.T) {
		payload := ChatMessagePayload{To: "bob", Media: &MediaPayload{}}
		req.Error(Validate(payload))
	})
}

func TestMarkReadPayload_Validation(t *testing.T) {
	req := require.New(t)

	req.NoError(Validate(MarkReadPayload{MessageID: uuid.NewString()}))
	req.Error(Validate(MarkReadPayload{MessageID: "not-a-uuid"}))
	req.Error(Validate(MarkReadPayload{}))
}

func TestConnectPayload_Validation(t *testing.T) {
	req := require.New(t)

	req.NoError(Validate(ConnectPayload{Credential: "token"}))
	req.Error(Validate(ConnectPayload{}))
}

func TestEncodeEvent(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	at := time.Now().UTC()

	t.Run("message received becomes a chat_message frame", func(t *testing.T) {
		frame, err := EncodeEvent(event.MessageReceived{
			ID:        id,
			From:      "alice",
			Body:      "hello",
			Media:     &domain.MediaRef{URL: "https://cdn.example/pic.png", ContentType: "image/png"},
			Status:    domain.StatusDelivered,
			CreatedAt: at,
		})
		req.NoError(err)
		req.Equal(TypeChatMessage, frame.Type)

		var payload ChatMessageEventPayload
		req.NoError(json.Unmarshal(frame.Payload, &payload))
		req.Equal(id.String(), payload.MessageID)
		req.Equal("alice", payload.From)
		req.Equal("delivered", payload.Status)
		req.NotNil(payload.Media)
		req.Equal("https://cdn.example/pic.png", payload.Media.URL)
	})

	t.Run("status change becomes a message_status frame", func(t *testing.T) {
		frame, err := EncodeEvent(event.MessageStatusChanged{ID: id, Status: domain.StatusRead})
		req.NoError(err)
		req.Equal(TypeMessageStatus, frame.Type)

		var payload MessageStatusPayload
		req.NoError(json.Unmarshal(frame.Payload, &payload))
		req.Equal("read", payload.Status)
	})

	t.Run("presence change becomes a presence frame", func(t *testing.T) {
		frame, err := EncodeEvent(event.PresenceChanged{PrincipalID: "alice", Online: true, At: at})
		req.NoError(err)
		req.Equal(TypePresence, frame.Type)

		var payload PresencePayload
		req.NoError(json.Unmarshal(frame.Payload, &payload))
		req.Equal("alice", payload.PrincipalID)
		req.True(payload.Online)
	})

	t.Run("each signal kind keeps its own frame type", func(t *testing.T) {
		kinds := map[domain.SignalKind]string{
			domain.SignalOffer:  TypeCallOffer,
			domain.SignalAnswer: TypeCallAnswer,
			domain.SignalICE:    TypeICECandidate,
			domain.SignalEnd:    TypeCallEnd,
		}
		for kind, frameType := range kinds {
			frame, err := EncodeEvent(event.CallSignal{
				From:    "alice",
				Kind:    kind,
				Payload: json.RawMessage(`{"sdp":"v=0"}`),
			})
			req.NoError(err)
			req.Equal(frameType, frame.Type)

			var payload CallSignalPayload
			req.NoError(json.Unmarshal(frame.Payload, &payload))
			req.Equal("alice", payload.From)
			req.JSONEq(`{"sdp":"v=0"}`, string(payload.Payload))
		}
	})

	t.Run("typing notice is relayed as a typing frame", func(t *testing.T) {
		frame, err := EncodeEvent(event.TypingNotice{From: "alice", Typing: true})
		req.NoError(err)
		req.Equal(TypeTyping, frame.Type)
	})

	t.Run("session revocation becomes an auth_error frame", func(t *testing.T) {
		frame, err := EncodeEvent(event.SessionRevoked{Reason: "EXPIRED_CREDENTIAL"})
		req.NoError(err)
		req.Equal(TypeAuthError, frame.Type)

		var payload ErrorPayload
		req.NoError(json.Unmarshal(frame.Payload, &payload))
		req.Equal("EXPIRED_CREDENTIAL", payload.Code)
	})
}
