// Package domain contains core concepts of the realtime relay.
// A tenant is the isolation boundary (one residential society); no message,
// presence or signaling event may ever cross it.
package domain

import "time"

// TenantID groups principals. Immutable once a connection is established.
type TenantID string

// PrincipalID is an addressable user identity within a tenant.
type PrincipalID string

// SessionID identifies one live transport session of a principal.
type SessionID string

// Principal is a directory entry. DisplayName and AvatarRef are opaque
// to the relay and only carried through to clients.
type Principal struct {
	ID          PrincipalID
	TenantID    TenantID
	DisplayName string
	AvatarRef   string
}

// Identity is the tenant binding produced by the authentication gate.
// It is resolved exactly once per connection and never changes afterwards.
type Identity struct {
	PrincipalID PrincipalID
	TenantID    TenantID
	ExpiresAt   time.Time
}

// Connection is an ephemeral in-memory record owned by the registry.
// It is never persisted. A principal may own many concurrent connections.
type Connection struct {
	PrincipalID PrincipalID
	TenantID    TenantID
	SessionID   SessionID
	ConnectedAt time.Time
}
