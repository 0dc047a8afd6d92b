package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/chatwave/internal/auth"
)

// Presence relays online status and typing indicators. It keeps no presence
// state of its own; the registry decides when a user's first or last
// connection moves. Announcements for one user are serialized through a
// per-user lock so an online and an offline broadcast never cross.
type Presence struct {
	dispatcher *Dispatcher
	log        *slog.Logger

	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewPresence creates a Presence broadcasting through dispatcher.
func NewPresence(log *slog.Logger, dispatcher *Dispatcher) *Presence {
	return &Presence{dispatcher: dispatcher, log: log, users: make(map[string]*userLock)}
}

// lockUser blocks until the caller owns userID's presence and returns the
// matching unlock. Idle users hold no entry.
func (p *Presence) lockUser(userID string) func() {
	p.mu.Lock()
	l, ok := p.users[userID]
	if !ok {
		l = &userLock{}
		p.users[userID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.users, userID)
		}
		p.mu.Unlock()
	}
}

// Online tells every other connection that identity came online.
func (p *Presence) Online(ctx context.Context, identity auth.Identity, h Handle) DeliveryReport {
	p.log.Debug("User online", "user_id", identity.UserID, "handle", h)
	return p.dispatcher.Broadcast(ctx, PresenceEvent(identity, true), ExcludeHandle(h))
}

// Offline tells every remaining connection that identity went offline.
func (p *Presence) Offline(ctx context.Context, identity auth.Identity, h Handle) DeliveryReport {
	p.log.Debug("User offline", "user_id", identity.UserID, "handle", h)
	return p.dispatcher.Broadcast(ctx, PresenceEvent(identity, false), ExcludeHandle(h))
}

// Typing relays an indicator to the room, skipping the typist.
func (p *Presence) Typing(ctx context.Context, h Handle, identity auth.Identity, room RoomID, started bool) DeliveryReport {
	return p.dispatcher.Dispatch(ctx, room, TypingEvent(room, identity, started), ExcludeHandle(h))
}
