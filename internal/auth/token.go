// Package auth issues and verifies the bearer credentials presented by
// clients when they open a realtime connection.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenTypeAccess marks credentials accepted on the realtime handshake.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks long-lived credentials only valid for renewing access.
	TokenTypeRefresh = "refresh"
)

var (
	// ErrRejected is wrapped by every verification failure.
	ErrRejected = errors.New("credential rejected")
	// ErrMissingCredential is returned when no credential was presented.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrRejected)
	// ErrMalformedCredential is returned when the credential cannot be parsed or its signature is invalid.
	ErrMalformedCredential = fmt.Errorf("%w: malformed credential", ErrRejected)
	// ErrExpiredCredential is returned when the credential is past its expiry.
	ErrExpiredCredential = fmt.Errorf("%w: expired credential", ErrRejected)
	// ErrWrongTokenType is returned when a non access credential is presented.
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrRejected)
)

// Identity is the verified subject of an access credential.
type Identity struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// Config holds the signing secret and credential lifetimes.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultConfig returns the lifetimes used by the ChatWave API: 30 minutes
// for access credentials and 7 days for refresh credentials.
func DefaultConfig(secret string) Config {
	return Config{
		Secret:     secret,
		Issuer:     "chatwave",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// Claims is the payload carried by chatwave credentials.
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 credentials.
type Manager struct {
	config Config
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager for the given configuration.
func NewManager(config Config, opts ...Option) *Manager {
	m := &Manager{config: config, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueAccess creates an access credential for the user.
func (m *Manager) IssueAccess(userID, username string) (string, error) {
	return m.issue(userID, username, TokenTypeAccess, m.config.AccessTTL)
}

// IssueRefresh creates a refresh credential for the user.
func (m *Manager) IssueRefresh(userID, username string) (string, error) {
	return m.issue(userID, username, TokenTypeRefresh, m.config.RefreshTTL)
}

func (m *Manager) issue(userID, username, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.Secret))
}

// Verify validates an access credential and returns the identity it carries.
// Refresh credentials are rejected.
func (m *Manager) Verify(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(m.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrMalformedCredential
	}
	if claims.TokenType != TokenTypeAccess {
		return Identity{}, ErrWrongTokenType
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not a user id", ErrMalformedCredential)
	}
	if claims.Username == "" {
		return Identity{}, fmt.Errorf("%w: username claim is missing", ErrMalformedCredential)
	}

	return Identity{
		UserID:    claims.Subject,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
