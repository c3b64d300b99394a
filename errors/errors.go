package errors

import "fmt"

var (
	// Authentication gate failures. Each class stays distinguishable so
	// clients can decide between refreshing a credential and giving up.
	ErrMissingCredential   = fmt.Errorf("missing credential")
	ErrMalformedCredential = fmt.Errorf("malformed credential")
	ErrExpiredCredential   = fmt.Errorf("expired credential")
	ErrPrincipalNotFound   = fmt.Errorf("principal not found")

	// Delivery and signaling failures.
	ErrCrossTenant      = fmt.Errorf("sender and receiver belong to different tenants")
	ErrReceiverNotFound = fmt.Errorf("receiver not found")
	ErrPeerOffline      = fmt.Errorf("peer has no active connection")
	ErrPersistence      = fmt.Errorf("message persistence failed")
	ErrReadNotAllowed   = fmt.Errorf("only the receiver may mark a message read")
	ErrStatusRegression = fmt.Errorf("message status may not regress")
	ErrMessageNotFound  = fmt.Errorf("message not found")

	// ErrSessionExpired is the client-side signal for a server-forced
	// disconnect; it must not be retried with the same credential.
	ErrSessionExpired = fmt.Errorf("session expired")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)
