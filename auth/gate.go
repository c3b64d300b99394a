package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/errors"
)

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Identity, error)
}

// Gate validates a credential at connection establishment and again on
// every reconnection. On success it resolves the tenant binding exactly
// once; the binding is immutable for the connection's lifetime. The
// returned expiry lets the transport force-close the session when the
// credential lapses instead of silently continuing to serve it.
type Gate struct {
	codec     TokenCodec
	directory contract.Directory
	log       *slog.Logger
}

func NewGate(codec TokenCodec, directory contract.Directory, log *slog.Logger) *Gate {
	return &Gate{codec: codec, directory: directory, log: log}
}

func (g *Gate) Authenticate(ctx context.Context, credential string) (domain.Identity, error) {
	claims, err := g.codec.Parse(credential)
	if err != nil {
		return domain.Identity{}, err
	}

	// The credential names a principal; the directory remains the source
	// of truth for its existence and tenant membership.
	principal, err := g.directory.Lookup(ctx, domain.PrincipalID(claims.PrincipalID))
	if err != nil {
		return domain.Identity{}, errors.ErrPrincipalNotFound
	}
	if principal.TenantID != domain.TenantID(claims.TenantID) {
		return domain.Identity{}, errors.ErrMalformedCredential
	}

	now := time.Now().UTC()
	if err := g.directory.SetOnline(ctx, principal.ID, true, now); err != nil {
		// Last-seen bookkeeping is advisory; a directory hiccup must not
		// reject an otherwise valid connection.
		g.log.Warn("failed to record principal online",
			"principal_id", string(principal.ID), "error", err)
	}

	return domain.Identity{
		PrincipalID: principal.ID,
		TenantID:    principal.TenantID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Offline records the principal's disconnection timestamp in the directory.
func (g *Gate) Offline(ctx context.Context, principal domain.PrincipalID) {
	if err := g.directory.SetOnline(ctx, principal, false, time.Now().UTC()); err != nil {
		g.log.Warn(fmt.Sprintf("failed to record principal offline: %v", err),
			"principal_id", string(principal))
	}
}
