package errors

import "errors"

// Wire-level error codes sent inside error / auth_error / call_error frames.
const (
	CodeMissingCredential   = "MISSING_CREDENTIAL"
	CodeMalformedCredential = "MALFORMED_CREDENTIAL"
	CodeExpiredCredential   = "EXPIRED_CREDENTIAL"
	CodePrincipalNotFound   = "PRINCIPAL_NOT_FOUND"
	CodeCrossTenant         = "CROSS_TENANT_VIOLATION"
	CodeReceiverNotFound    = "RECEIVER_NOT_FOUND"
	CodePeerOffline         = "PEER_OFFLINE"
	CodePersistence         = "PERSISTENCE_FAILURE"
	CodeReadNotAllowed      = "READ_NOT_ALLOWED"
	CodeMessageNotFound     = "MESSAGE_NOT_FOUND"
	CodeInternal            = "INTERNAL"
)

// WireCode maps a relay error to its transport code. Unknown errors
// collapse to INTERNAL so internals never leak onto the wire.
func WireCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return CodeMissingCredential
	case errors.Is(err, ErrMalformedCredential):
		return CodeMalformedCredential
	case errors.Is(err, ErrExpiredCredential):
		return CodeExpiredCredential
	case errors.Is(err, ErrPrincipalNotFound):
		return CodePrincipalNotFound
	case errors.Is(err, ErrCrossTenant):
		return CodeCrossTenant
	case errors.Is(err, ErrReceiverNotFound):
		return CodeReceiverNotFound
	case errors.Is(err, ErrPeerOffline):
		return CodePeerOffline
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrReadNotAllowed):
		return CodeReadNotAllowed
	case errors.Is(err, ErrMessageNotFound):
		return CodeMessageNotFound
	default:
		return CodeInternal
	}
}

// FromWireCode is the client-side inverse of WireCode for the
// authentication class; any other code is returned as ErrSessionExpired
// only when it names an auth failure, otherwise nil.
func FromWireCode(code string) error {
	switch code {
	case CodeMissingCredential:
		return ErrMissingCredential
	case CodeMalformedCredential:
		return ErrMalformedCredential
	case CodeExpiredCredential:
		return ErrExpiredCredential
	case CodePrincipalNotFound:
		return ErrPrincipalNotFound
	default:
		return nil
	}
}

// IsAuthError reports whether err belongs to the authentication class.
// Auth errors force-close the connection instead of being retried.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrExpiredCredential) ||
		errors.Is(err, ErrPrincipalNotFound)
}
