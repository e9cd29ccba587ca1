package request

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "direct peer", remote: "198.51.100.4:5123", want: "198.51.100.4"},
		{name: "peer without port", remote: "198.51.100.4", want: "198.51.100.4"},
		{name: "ipv6 peer", remote: "[2001:db8::7]:443", want: "2001:db8::7"},
		{
			name:    "forwarded header from public peer is ignored",
			remote:  "198.51.100.4:5123",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    "198.51.100.4",
		},
		{
			name:    "first forwarded hop behind private proxy",
			remote:  "10.0.3.7:40000",
			headers: map[string]string{"X-Forwarded-For": " 203.0.113.50 , 10.0.3.1 "},
			want:    "203.0.113.50",
		},
		{
			name:    "real ip behind loopback proxy",
			remote:  "127.0.0.1:40000",
			headers: map[string]string{"X-Real-IP": "203.0.113.51"},
			want:    "203.0.113.51",
		},
		{
			name:    "forwarded wins over real ip",
			remote:  "192.168.1.2:40000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50", "X-Real-IP": "203.0.113.51"},
			want:    "203.0.113.50",
		},
		{
			name:    "empty forwarded entry falls back to peer",
			remote:  "10.0.3.7:40000",
			headers: map[string]string{"X-Forwarded-For": " , 203.0.113.50"},
			want:    "10.0.3.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/api/v1/leaderboard", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	anon := httptest.NewRequest("GET", "/api/v1/habits", nil)
	if u := UserFromContext(anon); u != nil {
		t.Errorf("Expected no user, got %+v", u)
	}
	if _, ok := UserID(anon); ok {
		t.Error("Expected UserID to report no user")
	}

	user := &models.User{ID: uuid.New(), Email: "runner@example.com"}
	authed := anon.WithContext(WithUser(anon.Context(), user))
	if got := UserFromContext(authed); got != user {
		t.Errorf("UserFromContext() = %p, want %p", got, user)
	}
	if id, ok := UserID(authed); !ok || id != user.ID {
		t.Errorf("UserID() = %s, %v; want %s, true", id, ok, user.ID)
	}

	wrong := anon.WithContext(context.WithValue(anon.Context(), userKey, "not a user"))
	if u := UserFromContext(wrong); u != nil {
		t.Errorf("Expected nil for a non-user value, got %+v", u)
	}
}
