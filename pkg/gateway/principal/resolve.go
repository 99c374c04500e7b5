// Package principal picks the identity a request is rate limited under.
package principal

import (
	"net"
	"net/http"
	"strings"

	"github.com/kisansetu/voicecore/pkg/gateway/auth"
	"github.com/kisansetu/voicecore/pkg/gateway/ratelimit"
)

type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIP     Kind = "ip"
	KindAnon   Kind = "anonymous"
)

type Resolved struct {
	Kind Kind
	// Key is a hashed identifier suitable for in-memory maps and logs.
	Key string
}

var anonymous = Resolved{Kind: KindAnon, Key: "anonymous"}

// Resolve prefers an authenticated key and falls back to the client IP.
// Proxy headers are only read when trustProxy is set.
func Resolve(r *http.Request, trustProxy bool) Resolved {
	if r == nil {
		return anonymous
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.APIKey != "" {
		return Resolved{Kind: KindAPIKey, Key: ratelimit.PrincipalKeyFromAPIKey(p.APIKey)}
	}
	if ip := ClientIP(r, trustProxy); ip != "" {
		return Resolved{Kind: KindIP, Key: ratelimit.PrincipalKeyFromIP(ip)}
	}
	return anonymous
}

// ClientIP returns the caller address, or "".
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range []string{"CF-Connecting-IP", "X-Real-IP"} {
			if ip := parseIP(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
		// "client, proxy1, proxy2": the left-most entry is the client.
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
	}
	return parseIP(r.RemoteAddr)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
