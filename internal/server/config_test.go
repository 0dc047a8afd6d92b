package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-0123456789"

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)

	// Given only the required secret
	t.Setenv("JWT_SECRET", testSecret)

	// When
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))

	// Then
	req.NoError(err)
	req.Equal(":8080", cfg.Port)
	req.Equal(int64(8192), cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimitBurst)
	req.Equal(time.Second, cfg.RateLimitRefillInterval)
	req.Equal(30*time.Minute, cfg.AccessTokenTTL)
	req.Equal(7*24*time.Hour, cfg.RefreshTokenTTL)
	req.Equal(50, cfg.HistoryPageLimit)
	req.Equal("INFO", cfg.LogLevel)
	req.Equal([]string{"http://localhost:8080"}, cfg.Origins())
}

func TestLoadConfig_Overrides(t *testing.T) {
	req := require.New(t)

	// Given
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("DELIVERY_TIMEOUT", "250ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STRICT_INVARIANTS", "true")

	// When
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))

	// Then
	req.NoError(err)
	req.Equal(":9090", cfg.Port)
	req.Equal([]string{"https://a.example.com", "https://b.example.com"}, cfg.Origins())
	req.Equal(10, cfg.RateLimitBurst)
	req.Equal(250*time.Millisecond, cfg.DeliveryTimeout)
	req.Equal("DEBUG", cfg.LogLevel)
	req.True(cfg.StrictInvariants)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	req := require.New(t)

	// Given a dotenv file carrying the secret
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("JWT_SECRET="+testSecret+"\nHISTORY_PAGE_LIMIT=20\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	req.NoError(os.Unsetenv("JWT_SECRET"))
	t.Setenv("HISTORY_PAGE_LIMIT", "")
	req.NoError(os.Unsetenv("HISTORY_PAGE_LIMIT"))

	// When
	cfg, err := LoadConfig(path)

	// Then
	req.NoError(err)
	req.Equal(testSecret, cfg.JWTSecret)
	req.Equal(20, cfg.HistoryPageLimit)
}

func TestLoadConfig_RejectsShortSecret(t *testing.T) {
	req := require.New(t)

	// Given
	t.Setenv("JWT_SECRET", "short")

	// When
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))

	// Then
	req.Error(err)
	req.ErrorContains(err, "JWTSecret")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"refresh shorter than access", func(c *Config) { c.RefreshTokenTTL = time.Minute }, true},
		{"page limit too large", func(c *Config) { c.HistoryPageLimit = 1000 }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "TRACE" }, true},
		{"zero fanout", func(c *Config) { c.FanoutConcurrency = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testSecret)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSanitizeConfig(t *testing.T) {
	req := require.New(t)

	// Given
	cfg := Config{Port: "7000", LogLevel: " warn "}

	// When
	cfg = sanitizeConfig(cfg)

	// Then
	req.Equal(":7000", cfg.Port)
	req.Equal("WARN", cfg.LogLevel)
	req.Equal(int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	req.Equal(defaultRateLimitBurst, cfg.RateLimitBurst)
	req.Equal(defaultRefillInterval, cfg.RateLimitRefillInterval)
	req.Equal(defaultSendBufferSize, cfg.SendBufferSize)
	req.Equal(defaultHistoryPageLimit, cfg.HistoryPageLimit)
}

func TestParseOrigins(t *testing.T) {
	req := require.New(t)
	req.Nil(parseOrigins("  "))
	req.Equal([]string{"a", "b"}, parseOrigins(" a ,b"))
}
