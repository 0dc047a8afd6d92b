package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-enough-entropy"

func TestManager_IssueAndVerifyAccess(t *testing.T) {
	req := require.New(t)
	manager := NewManager(DefaultConfig(testSecret))
	userID := uuid.NewString()

	token, err := manager.IssueAccess(userID, "alice")
	req.NoError(err)
	req.NotEmpty(token)

	identity, err := manager.Verify(token)
	req.NoError(err)
	req.Equal(userID, identity.UserID)
	req.Equal("alice", identity.Username)
	req.False(identity.ExpiresAt.IsZero())
}

func TestManager_Verify_RejectsRefreshCredential(t *testing.T) {
	req := require.New(t)
	manager := NewManager(DefaultConfig(testSecret))

	token, err := manager.IssueRefresh(uuid.NewString(), "alice")
	req.NoError(err)

	_, err = manager.Verify(token)
	req.ErrorIs(err, ErrWrongTokenType)
	req.ErrorIs(err, ErrRejected)
}

func TestManager_Verify_RejectsExpiredCredential(t *testing.T) {
	req := require.New(t)
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := NewManager(DefaultConfig(testSecret), WithClock(func() time.Time { return issuedAt }))
	verifier := NewManager(DefaultConfig(testSecret))

	token, err := issuer.IssueAccess(uuid.NewString(), "alice")
	req.NoError(err)

	_, err = verifier.Verify(token)
	req.ErrorIs(err, ErrExpiredCredential)
	req.ErrorIs(err, ErrRejected)
}

func TestManager_Verify_Rejections(t *testing.T) {
	manager := NewManager(DefaultConfig(testSecret))
	other := NewManager(DefaultConfig("another-secret-key-entirely-different"))

	wrongSecret, err := other.IssueAccess(uuid.NewString(), "mallory")
	require.NoError(t, err)

	notUUID, err := manager.IssueAccess("user-123", "bob")
	require.NoError(t, err)

	noUsername, err := manager.IssueAccess(uuid.NewString(), "")
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Username:  "eve",
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		want       error
	}{
		{"missing credential", "", ErrMissingCredential},
		{"random string", "not.a.token", ErrMalformedCredential},
		{"truncated jwt", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid", ErrMalformedCredential},
		{"wrong secret", wrongSecret, ErrMalformedCredential},
		{"subject is not a uuid", notUUID, ErrMalformedCredential},
		{"missing username", noUsername, ErrMalformedCredential},
		{"unsigned token", noneAlg, ErrMalformedCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := manager.Verify(tt.credential)
			req.ErrorIs(err, tt.want)
			req.ErrorIs(err, ErrRejected)
		})
	}
}
