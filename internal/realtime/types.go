package realtime

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// Handle identifies one live transport connection.
type Handle string

// NewHandle returns a fresh, lexically sortable connection handle.
func NewHandle() Handle {
	return Handle(ulid.Make().String())
}

// RoomID identifies a chat room.
type RoomID string

// State is the lifecycle position of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateIdle
	StateInRoom
	StateDisconnected
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionInfo is a point-in-time copy of a registered connection.
type ConnectionInfo struct {
	Handle      Handle
	UserID      string
	Username    string
	ConnectedAt time.Time
	Rooms       []RoomID
}

// State derives the lifecycle state from the joined rooms.
func (c ConnectionInfo) State() State {
	if len(c.Rooms) == 0 {
		return StateIdle
	}
	return StateInRoom
}

// InRoom reports whether the connection joined room.
func (c ConnectionInfo) InRoom(room RoomID) bool {
	return slices.Contains(c.Rooms, room)
}
