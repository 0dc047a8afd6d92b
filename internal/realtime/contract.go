//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_realtime.go -package=mocks
package realtime

import (
	"context"

	"github.com/Tyrowin/chatwave/internal/auth"
)

// Sink is the transport side of one live connection.
// Deliver must honor ctx and return promptly once it is done.
type Sink interface {
	Deliver(ctx context.Context, frame []byte) error
	Close() error
}

// Verifier turns a bearer credential into a verified identity.
type Verifier interface {
	Verify(credential string) (auth.Identity, error)
}

// Membership answers whether a user durably belongs to a room.
type Membership interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// Evictor schedules a connection for disconnection.
// It returns false when the request could not be queued.
type Evictor interface {
	Evict(handle Handle) bool
}
