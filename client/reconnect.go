// Package client implements the connection lifecycle a relay client runs:
// authenticate, register, stay connected, and reconnect with backoff
// after a transport loss.
package client

import (
	"context"
	stderrors "errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"society-connect/errors"
)

// State of one connection intent.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateAuthenticating State = "authenticating"
	StateRegistering    State = "registering"
	StateConnected      State = "connected"
)

// CredentialSource yields the credential for one attempt. It is consulted
// fresh on every attempt so a just-refreshed token is used instead of a
// stale cached one.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// Conn is one established transport session.
type Conn interface {
	// Register completes session registration with the relay; the server
	// has no memory of prior connections across a transport loss.
	Register(ctx context.Context) error
	// Wait blocks until the session ends and returns the cause.
	Wait(ctx context.Context) error
	Close() error
}

// Dialer opens a transport and presents the credential.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// Backoff yields the delay before retry number attempt (starting at 0).
type Backoff interface {
	Next(attempt int) time.Duration
}

// JitteredBackoff doubles the base per attempt, caps at Max, and keeps a
// random half-window so reconnecting clients do not stampede the server.
type JitteredBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b JitteredBackoff) Next(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Reconnector drives the Disconnected -> Authenticating -> Registering ->
// Connected state machine for one connection intent.
//
// Ordinary transport losses retry transparently with jittered backoff.
// A server auth rejection is different: it surfaces ErrSessionExpired and
// the loop stops rather than hammering the gate with a dead credential.
// Cancelling the context tears the intent down without leaking a retry
// loop.
type Reconnector struct {
	dialer      Dialer
	credentials CredentialSource
	backoff     Backoff
	maxAttempts int
	log         *slog.Logger

	mu    sync.RWMutex
	state State
}

func NewReconnector(log *slog.Logger, dialer Dialer, credentials CredentialSource,
	backoff Backoff, maxAttempts int) *Reconnector {
	return &Reconnector{
		dialer:      dialer,
		credentials: credentials,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		log:         log,
		state:       StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (r *Reconnector) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Reconnector) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run keeps the intent alive until the context is cancelled, the retry
// budget is exhausted, or the server rejects the credential.
func (r *Reconnector) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			r.setState(StateDisconnected)
			return err
		}

		err := r.connectOnce(ctx)
		r.setState(StateDisconnected)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case stderrors.Is(err, errors.ErrSessionExpired):
			// A fresh credential is needed; retrying with this one is
			// pointless and the user must be told.
			return err
		case err == nil:
			// Clean server-side close. Treated like a network drop.
			attempt = 0
		}

		attempt++
		if attempt > r.maxAttempts {
			return err
		}

		delay := r.backoff.Next(attempt - 1)
		r.log.Debug("reconnecting after transport loss",
			"attempt", attempt, "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectOnce runs one full pass of the state machine. A nil return means
// the session ended cleanly after having been connected.
func (r *Reconnector) connectOnce(ctx context.Context) error {
	credential, err := r.credentials.Credential(ctx)
	if err != nil {
		return err
	}

	r.setState(StateAuthenticating)
	conn, err := r.dialer.Dial(ctx, credential)
	if err != nil {
		if errors.IsAuthError(err) {
			return errors.ErrSessionExpired
		}
		return err
	}
	defer func() { _ = conn.Close() }()

	r.setState(StateRegistering)
	if err := conn.Register(ctx); err != nil {
		if errors.IsAuthError(err) {
			return errors.ErrSessionExpired
		}
		return err
	}

	r.setState(StateConnected)
	err = conn.Wait(ctx)
	if errors.IsAuthError(err) {
		return errors.ErrSessionExpired
	}
	return err
}
