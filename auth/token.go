package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"society-connect/domain"
	"society-connect/errors"
)

// SessionClaims defines the data carried inside a connection credential.
// The tenant binding travels with the principal so the relay never has to
// trust a client-supplied tenant id.
type SessionClaims struct {
	PrincipalID string `json:"principal_id"`
	TenantID    string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Keys are injected from configuration; see cmd/config.go.
type TokenCodec struct {
	key      []byte
	duration time.Duration
}

func NewTokenCodec(key []byte, duration time.Duration) TokenCodec {
	return TokenCodec{key: key, duration: duration}
}

// Mint creates a signed HS256 credential for a principal.
func (c TokenCodec) Mint(principal domain.PrincipalID, tenant domain.TenantID) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		PrincipalID: string(principal),
		TenantID:    string(tenant),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "society-connect",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Parse validates signature and expiry and returns the claims.
// Failure classes stay distinguishable: an empty credential, a credential
// that does not parse, and a correctly signed but expired one each map to
// their own sentinel so the client can react appropriately.
func (c TokenCodec) Parse(credential string) (*SessionClaims, error) {
	if credential == "" {
		return nil, errors.ErrMissingCredential
	}
	token, err := jwt.ParseWithClaims(credential, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrExpiredCredential
		}
		return nil, errors.ErrMalformedCredential
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.PrincipalID == "" || claims.TenantID == "" {
		return nil, errors.ErrMalformedCredential
	}
	// jwt/v5 accepts a token without exp; the relay does not. Every
	// session needs a definite expiry for the transport's revocation timer.
	if claims.ExpiresAt == nil {
		return nil, errors.ErrMalformedCredential
	}
	return claims, nil
}
