// Package auth carries the caller identity resolved from a bearer key.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Role string

const (
	// RoleAdmin may broadcast alerts and place outbound calls.
	RoleAdmin Role = "admin"
)

type Principal struct {
	APIKey string
	Role   Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// MatchKey reports whether token equals one of keys, comparing in constant
// time per key.
func MatchKey(token string, keys map[string]struct{}) bool {
	if token == "" {
		return false
	}
	matched := 0
	for k := range keys {
		matched |= subtle.ConstantTimeCompare([]byte(token), []byte(k))
	}
	return matched == 1
}
