// Package sink provides EventSink implementations: the per-session
// bounded queue feeding a transport write pump, and test doubles.
package sink

import (
	"context"
	"time"

	"society-connect/domain/event"
)

// SessionSink is the bounded outbound queue of one transport session.
// Consume is called by relay and fan-out paths; the session's write pump
// drains Events. A full queue applies backpressure for at most timeout
// before the event is dropped for this session — one slow client must
// never stall a tenant's traffic.
type SessionSink struct {
	Events  chan event.Event
	timeout time.Duration
}

func NewSessionSink(bufferSize int, timeout time.Duration) *SessionSink {
	return &SessionSink{
		Events:  make(chan event.Event, bufferSize),
		timeout: timeout,
	}
}

func (s *SessionSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.Events <- e:
		return nil
	default:
	}

	// Queue full: wait briefly instead of dropping outright.
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}
