package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNormalizeOrigins(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// When
	normalized, allowAll := normalizeOrigins(log, []string{" HTTP://Example.COM ", "", "not a url", "https://chat.example.com:8443"})

	// Then
	req.False(allowAll)
	req.Equal([]string{"http://example.com", "https://chat.example.com:8443"}, normalized)

	_, allowAll = normalizeOrigins(log, []string{"*"})
	req.True(allowAll)
}

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	policy := newOriginPolicy(log, []string{"http://localhost:8080"})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact", "http://localhost:8080", true},
		{"upper case", "HTTP://LOCALHOST:8080", true},
		{"other port", "http://localhost:9090", false},
		{"other host", "http://evil.example.com", false},
		{"empty", "", false},
		{"garbage", "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.check(r))
		})
	}
}

func TestOriginPolicy_Empty(t *testing.T) {
	req := require.New(t)
	policy := newOriginPolicy(logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")

	req.False(policy.allows(r))
}

func TestRateLimiter(t *testing.T) {
	req := require.New(t)

	// Given a bucket of three tokens
	limiter := newRateLimiter(3, time.Minute)

	// Then the burst passes and the next call is refused
	req.True(limiter.Allow())
	req.True(limiter.Allow())
	req.True(limiter.Allow())
	req.False(limiter.Allow())
}

func TestRateLimiter_Defaults(t *testing.T) {
	req := require.New(t)

	limiter := newRateLimiter(0, 0)

	req.Equal(1, limiter.Burst())
	req.Equal(rate.Limit(1), limiter.Limit())
}
