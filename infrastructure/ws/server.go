package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/errors"
	"society-connect/internal/metrics"
	"society-connect/services"
	"society-connect/sink"
)

// Authenticator is the slice of the authentication gate the transport
// needs: credential validation at connection open, and last-seen
// bookkeeping when a principal's final session drops.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Identity, error)
	Offline(ctx context.Context, principal domain.PrincipalID)
}

type Delivery interface {
	Send(ctx context.Context, sender domain.Identity, cmd services.SendCommand) (domain.Message, error)
	MarkRead(ctx context.Context, reader domain.Identity, messageID uuid.UUID) (domain.Message, error)
	NotifyTyping(ctx context.Context, sender domain.Identity, to domain.PrincipalID, typing bool)
}

type Signaling interface {
	Relay(ctx context.Context, from domain.Identity, signal domain.Signal) error
}

type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SessionBuffer    int
	SinkTimeout      time.Duration
	MaxFrameBytes    int64
}

// Server owns the /ws endpoint. Each accepted connection runs two
// goroutines: a read loop dispatching client frames into the services,
// and a write pump that is the only writer on the socket, draining both
// direct replies and fanned-out events.
type Server struct {
	upgrader  websocket.Upgrader
	gate      Authenticator
	delivery  Delivery
	signaling Signaling
	registry  contract.Registry
	log       *slog.Logger
	cfg       Config
}

func NewServer(log *slog.Logger, gate Authenticator, delivery Delivery,
	signaling Signaling, registry contract.Registry, cfg Config) *Server {
	return &Server{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		gate:      gate,
		delivery:  delivery,
		signaling: signaling,
		registry:  registry,
		log:       log,
		cfg:       cfg,
	}
}

// Handle upgrades the HTTP request and runs the connection to completion.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.cfg.MaxFrameBytes)

	identity, ok := s.handshake(conn)
	if !ok {
		_ = conn.Close()
		return
	}

	sessionID := domain.SessionID(uuid.NewString())
	snk := sink.NewSessionSink(s.cfg.SessionBuffer, s.cfg.SinkTimeout)
	s.registry.Register(domain.Connection{
		PrincipalID: identity.PrincipalID,
		TenantID:    identity.TenantID,
		SessionID:   sessionID,
		ConnectedAt: time.Now().UTC(),
	}, snk)
	metrics.OnlineConns.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Frame, s.cfg.SessionBuffer)

	defer func() {
		cancel()
		wentOffline := s.registry.Unregister(identity.TenantID, identity.PrincipalID, sessionID)
		metrics.OnlineConns.Dec()
		if wentOffline {
			s.gate.Offline(context.Background(), identity.PrincipalID)
		}
		_ = conn.Close()
		s.log.Info("session closed",
			"principal_id", string(identity.PrincipalID),
			"session_id", string(sessionID),
			"went_offline", wentOffline)
	}()

	go s.writePump(ctx, conn, out, snk, identity.ExpiresAt)

	s.enqueue(ctx, out, mustFrame(TypeAck, AckPayload{SessionID: string(sessionID)}))
	s.readLoop(ctx, conn, identity, out)
}

// handshake expects exactly one connect frame within the handshake
// deadline. The tenant binding it resolves is immutable afterwards.
func (s *Server) handshake(conn *websocket.Conn) (domain.Identity, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return domain.Identity{}, false
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != TypeConnect {
		s.reject(conn, errors.ErrMissingCredential)
		return domain.Identity{}, false
	}
	var payload ConnectPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || Validate(payload) != nil {
		s.reject(conn, errors.ErrMissingCredential)
		return domain.Identity{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()
	identity, err := s.gate.Authenticate(ctx, payload.Credential)
	if err != nil {
		s.reject(conn, err)
		return domain.Identity{}, false
	}
	return identity, true
}

// reject writes one auth_error frame straight onto the socket. Only valid
// before the write pump exists, i.e. during the handshake.
func (s *Server) reject(conn *websocket.Conn, err error) {
	metrics.AuthFailures.Inc()
	frame := mustFrame(TypeAuthError, ErrorPayload{Code: errors.WireCode(err)})
	raw, _ := json.Marshal(frame)
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, raw)
}

// writePump is the single writer on the socket. It drains direct replies
// and sink events, and force-closes the session the moment the credential
// expires — the server never silently serves a revoked binding.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn,
	out <-chan Frame, snk *sink.SessionSink, expiresAt time.Time) {
	expiry := time.NewTimer(time.Until(expiresAt))
	defer expiry.Stop()

	write := func(frame Frame) bool {
		raw, err := json.Marshal(frame)
		if err != nil {
			s.log.Error("frame marshal failed", "type", frame.Type, "error", err)
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			if !write(frame) {
				return
			}
		case e := <-snk.Events:
			frame, err := EncodeEvent(e)
			if err != nil {
				s.log.Error("event encoding failed", "error", err)
				continue
			}
			if !write(frame) {
				return
			}
		case <-expiry.C:
			// Credential lapsed mid-session: surface the revocation, then
			// cut the connection so the client restarts at Authenticating.
			if frame, err := EncodeEvent(event.SessionRevoked{Reason: errors.CodeExpiredCredential}); err == nil {
				write(frame)
			}
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn,
	identity domain.Identity, out chan<- Frame) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: "INVALID_FRAME"}))
			continue
		}
		s.dispatch(ctx, identity, frame, out)
	}
}

func (s *Server) dispatch(ctx context.Context, identity domain.Identity,
	frame Frame, out chan<- Frame) {
	switch frame.Type {
	case TypeConnect:
		s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: "ALREADY_AUTHENTICATED"}))

	case TypeChatMessage:
		var payload ChatMessagePayload
		if !s.decode(ctx, frame.Payload, &payload, out) {
			return
		}
		intent := services.SendCommand{To: domain.PrincipalID(payload.To), Body: payload.Body}
		if payload.Media != nil {
			intent.Media = &domain.MediaRef{URL: payload.Media.URL}
			intent.MediaData = payload.Media.Data
		}
		message, err := s.delivery.Send(ctx, identity, intent)
		if err != nil {
			s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: errors.WireCode(err)}))
			return
		}
		s.enqueue(ctx, out, mustFrame(TypeAck, AckPayload{
			MessageID: message.ID.String(),
			Status:    string(message.Status),
		}))

	case TypeMarkRead:
		var payload MarkReadPayload
		if !s.decode(ctx, frame.Payload, &payload, out) {
			return
		}
		messageID, err := uuid.Parse(payload.MessageID)
		if err != nil {
			s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: "INVALID_FRAME"}))
			return
		}
		message, err := s.delivery.MarkRead(ctx, identity, messageID)
		if err != nil {
			s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: errors.WireCode(err)}))
			return
		}
		s.enqueue(ctx, out, mustFrame(TypeAck, AckPayload{
			MessageID: message.ID.String(),
			Status:    string(message.Status),
		}))

	case TypeCallOffer, TypeCallAnswer, TypeICECandidate, TypeCallEnd:
		var payload SignalPayload
		if !s.decode(ctx, frame.Payload, &payload, out) {
			return
		}
		signal := domain.Signal{
			From:    identity.PrincipalID,
			To:      domain.PrincipalID(payload.To),
			Kind:    signalKind(frame.Type),
			Payload: payload.Payload,
		}
		if err := s.signaling.Relay(ctx, identity, signal); err != nil {
			s.enqueue(ctx, out, mustFrame(TypeCallError, ErrorPayload{Code: errors.WireCode(err)}))
			return
		}
		s.enqueue(ctx, out, mustFrame(TypeAck, AckPayload{}))

	case TypeTyping:
		var payload TypingPayload
		if !s.decode(ctx, frame.Payload, &payload, out) {
			return
		}
		s.delivery.NotifyTyping(ctx, identity, domain.PrincipalID(payload.To), payload.Typing)

	default:
		s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{
			Code:   "UNKNOWN_FRAME",
			Detail: fmt.Sprintf("unsupported frame type %q", frame.Type),
		}))
	}
}

// decode unmarshals and validates a client payload, replying with an
// INVALID_FRAME error on failure.
func (s *Server) decode(ctx context.Context, raw json.RawMessage, payload any, out chan<- Frame) bool {
	if err := json.Unmarshal(raw, payload); err != nil {
		s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{Code: "INVALID_FRAME"}))
		return false
	}
	if err := Validate(payload); err != nil {
		s.enqueue(ctx, out, mustFrame(TypeError, ErrorPayload{
			Code:   "INVALID_FRAME",
			Detail: err.Error(),
		}))
		return false
	}
	return true
}

func (s *Server) enqueue(ctx context.Context, out chan<- Frame, frame Frame) {
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}

func signalKind(frameType string) domain.SignalKind {
	switch frameType {
	case TypeCallOffer:
		return domain.SignalOffer
	case TypeCallAnswer:
		return domain.SignalAnswer
	case TypeICECandidate:
		return domain.SignalICE
	default:
		return domain.SignalEnd
	}
}

func mustFrame(frameType string, payload any) Frame {
	frame, err := NewFrame(frameType, payload)
	if err != nil {
		return Frame{Type: TypeError}
	}
	return frame
}
