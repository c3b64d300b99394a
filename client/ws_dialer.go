package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"society-connect/errors"
	"society-connect/infrastructure/ws"
)

// WSDialer opens a websocket to the relay and performs the connect
// handshake. Received server frames are handed to OnFrame.
type WSDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	OnFrame          func(ws.Frame)
}

func (d WSDialer) Dial(ctx context.Context, credential string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}

	frame, err := ws.NewFrame(ws.TypeConnect, ws.ConnectPayload{Credential: credential})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := writeFrame(conn, frame, d.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &wsConn{
		conn:             conn,
		handshakeTimeout: d.HandshakeTimeout,
		onFrame:          d.OnFrame,
	}, nil
}

type wsConn struct {
	conn             *websocket.Conn
	handshakeTimeout time.Duration
	onFrame          func(ws.Frame)
}

// Register waits for the server's session ack. An auth_error here means
// the credential was rejected and the caller must not retry with it.
func (c *wsConn) Register(ctx context.Context) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	frame, err := readFrame(c.conn)
	if err != nil {
		return err
	}
	switch frame.Type {
	case ws.TypeAck:
		return nil
	case ws.TypeAuthError:
		return authErrorFrom(frame)
	default:
		return fmt.Errorf("unexpected frame %q during registration", frame.Type)
	}
}

// Wait pumps inbound frames to the handler until the transport drops.
// A server-pushed auth_error ends the session as an auth failure.
func (c *wsConn) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := readFrame(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if frame.Type == ws.TypeAuthError {
			return authErrorFrom(frame)
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Send writes one client frame.
func (c *wsConn) Send(frame ws.Frame, timeout time.Duration) error {
	return writeFrame(c.conn, frame, timeout)
}

func authErrorFrom(frame ws.Frame) error {
	var payload ws.ErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return errors.ErrMalformedCredential
	}
	if err := errors.FromWireCode(payload.Code); err != nil {
		return err
	}
	return errors.ErrMalformedCredential
}

func writeFrame(conn *websocket.Conn, frame ws.Frame, timeout time.Duration) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func readFrame(conn *websocket.Conn) (ws.Frame, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return ws.Frame{}, err
	}
	var frame ws.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ws.Frame{}, err
	}
	return frame, nil
}
