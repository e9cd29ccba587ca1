// Package request carries the authenticated user and the caller's address
// between middleware and handlers.
package request

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

type ctxKey int

const userKey ctxKey = iota

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

// UserID returns the authenticated user's ID
func UserID(r *http.Request) (uuid.UUID, bool) {
	if u := UserFromContext(r); u != nil {
		return u.ID, true
	}
	return uuid.Nil, false
}

// ClientIP returns the caller's address. X-Forwarded-For and X-Real-IP are
// honoured only when the direct peer is a loopback or private address, which
// is what a reverse proxy in front of the API looks like. Anyone else could
// spoof them to dodge rate limits.
func ClientIP(r *http.Request) string {
	peer := peerHost(r.RemoteAddr)
	if !trustedProxy(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func peerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func trustedProxy(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}
