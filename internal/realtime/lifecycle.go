package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatwave/internal/auth"
)

// ControllerConfig tunes invariant checking.
type ControllerConfig struct {
	// Strict turns invariant violations into panics. Tests run with it on.
	Strict bool
}

// Controller drives connections through their lifecycle:
// Connecting, Authenticated, Idle or InRoom, then Disconnected.
type Controller struct {
	registry   *Registry
	index      *Index
	dispatcher *Dispatcher
	presence   *Presence
	verifier   Verifier
	membership Membership
	config     ControllerConfig
	log        *slog.Logger
	now        func() time.Time
}

// NewController wires the lifecycle over the engine's parts. membership is
// consulted on every join.
func NewController(
	log *slog.Logger,
	registry *Registry,
	index *Index,
	dispatcher *Dispatcher,
	presence *Presence,
	verifier Verifier,
	membership Membership,
	config ControllerConfig,
) *Controller {
	return &Controller{
		registry:   registry,
		index:      index,
		dispatcher: dispatcher,
		presence:   presence,
		verifier:   verifier,
		membership: membership,
		config:     config,
		log:        log,
		now:        time.Now,
	}
}

// Connect verifies credential and registers the connection. On rejection the
// sink is closed and nothing is registered.
func (c *Controller) Connect(ctx context.Context, h Handle, credential string, sink Sink) (auth.Identity, error) {
	identity, err := c.verifier.Verify(credential)
	if err != nil {
		c.log.Info("Connection rejected", "handle", h, "error", err)
		_ = sink.Close()
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}

	unlock := c.presence.lockUser(identity.UserID)
	defer unlock()
	first, err := c.registry.Register(h, identity, sink)
	if err != nil {
		c.violation("duplicate registration", "handle", h, "error", err)
		_ = sink.Close()
		return auth.Identity{}, err
	}
	c.log.Info("Client connected", "handle", h, "user_id", identity.UserID, "username", identity.Username)

	if first {
		c.presence.Online(ctx, identity, h)
	}
	return identity, nil
}

// Join subscribes h to room after checking durable membership.
func (c *Controller) Join(ctx context.Context, h Handle, room RoomID) error {
	identity, ok := c.registry.Identity(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}

	member, err := c.membership.IsMember(ctx, string(room), identity.UserID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if !member {
		return fmt.Errorf("%w: %s", ErrNotAMember, room)
	}

	added, err := c.registry.Attach(h, room, c.index)
	if err != nil {
		return err
	}
	if added {
		c.log.Debug("Joined room", "handle", h, "room_id", room)
		c.dispatcher.Dispatch(ctx, room, JoinedEvent(room, identity))
	}
	return nil
}

// Leave is a no-op for rooms h never joined.
func (c *Controller) Leave(ctx context.Context, h Handle, room RoomID) error {
	identity, ok := c.registry.Identity(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	removed, err := c.registry.Detach(h, room, c.index)
	if err != nil {
		return err
	}
	if removed {
		c.log.Debug("Left room", "handle", h, "room_id", room)
		c.dispatcher.Dispatch(ctx, room, LeftEvent(room, identity))
	}
	return nil
}

// Authorize returns the identity behind h when it is subscribed to room.
func (c *Controller) Authorize(h Handle, room RoomID) (auth.Identity, error) {
	identity, ok := c.registry.Identity(h)
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	if !c.index.Contains(room, h) {
		return auth.Identity{}, fmt.Errorf("%w: %s", ErrNotAMember, room)
	}
	return identity, nil
}

// Send dispatches msg to its room. Sender fields come from the verified
// identity, never from the client.
func (c *Controller) Send(ctx context.Context, h Handle, msg Message) (DeliveryReport, error) {
	identity, err := c.Authorize(h, msg.Room)
	if err != nil {
		return DeliveryReport{}, err
	}
	msg.SenderID = identity.UserID
	msg.SenderUsername = identity.Username
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now().UTC()
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	return c.dispatcher.Dispatch(ctx, msg.Room, MessageEvent(msg)), nil
}

// React dispatches a reaction change under the same rules as Send.
func (c *Controller) React(ctx context.Context, h Handle, reaction Reaction, added bool) (DeliveryReport, error) {
	identity, err := c.Authorize(h, reaction.Room)
	if err != nil {
		return DeliveryReport{}, err
	}
	reaction.UserID = identity.UserID
	reaction.Username = identity.Username
	return c.dispatcher.Dispatch(ctx, reaction.Room, ReactionEvent(reaction, added)), nil
}

// Typing drops indicators for rooms h is not subscribed to.
func (c *Controller) Typing(ctx context.Context, h Handle, room RoomID, started bool) {
	identity, err := c.Authorize(h, room)
	if err != nil {
		c.log.Debug("Dropping typing indicator", "handle", h, "room_id", room, "error", err)
		return
	}
	c.presence.Typing(ctx, h, identity, room, started)
}

// Disconnect tears h down. It reports false when h was already gone.
func (c *Controller) Disconnect(ctx context.Context, h Handle, reason string) bool {
	dep, err := c.registry.Deregister(h)
	if err != nil {
		c.log.Debug("Duplicate disconnect", "handle", h, "reason", reason)
		return false
	}

	for _, room := range dep.Rooms {
		c.index.Unsubscribe(room, h)
	}
	if err := dep.Sink.Close(); err != nil {
		c.log.Debug("Closing sink", "handle", h, "error", err)
	}
	c.log.Info("Client disconnected", "handle", h, "user_id", dep.Identity.UserID, "reason", reason)

	for _, room := range dep.Rooms {
		c.dispatcher.Dispatch(ctx, room, LeftEvent(room, dep.Identity))
	}
	if dep.LastForUser {
		c.announceOffline(ctx, dep.Identity, h)
	}

	if c.config.Strict {
		if leaked := c.index.RoomsOf(h); len(leaked) > 0 {
			c.violation("index still references disconnected handle", "handle", h, "rooms", leaked)
		}
	}
	return true
}

// announceOffline broadcasts the offline transition unless the user came
// back while the room departures were being delivered.
func (c *Controller) announceOffline(ctx context.Context, identity auth.Identity, h Handle) {
	unlock := c.presence.lockUser(identity.UserID)
	defer unlock()
	if n := c.registry.UserConnections(identity.UserID); n > 0 {
		c.log.Debug("User reconnected before going offline", "user_id", identity.UserID, "connections", n)
		return
	}
	c.presence.Offline(ctx, identity, h)
}

// Handle routes one decoded client command.
func (c *Controller) Handle(ctx context.Context, h Handle, cmd Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		return c.Join(ctx, h, cmd.Room)
	case CommandLeaveRoom:
		return c.Leave(ctx, h, cmd.Room)
	case CommandSendMessage:
		if cmd.Message == nil {
			return fmt.Errorf("%w: send_message without message", ErrInvalidCommand)
		}
		_, err := c.Send(ctx, h, *cmd.Message)
		return err
	case CommandAddReaction, CommandRemoveReaction:
		if cmd.Reaction == nil {
			return fmt.Errorf("%w: %s without reaction", ErrInvalidCommand, cmd.Kind)
		}
		_, err := c.React(ctx, h, *cmd.Reaction, cmd.Kind == CommandAddReaction)
		return err
	case CommandTypingStart, CommandTypingStop:
		c.Typing(ctx, h, cmd.Room, cmd.Kind == CommandTypingStart)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Kind)
	}
}

// Reject answers a refused request on h only.
func (c *Controller) Reject(ctx context.Context, h Handle, request string, err error) {
	if code := ErrorCode(err); code == CodeUpstreamUnavailable || code == CodeInternal {
		c.log.Warn("Request failed", "handle", h, "request", request, "code", code, "error", err)
	}
	c.dispatcher.SendTo(ctx, h, RejectedEvent(request, err))
}

// State reports StateDisconnected for unknown handles.
func (c *Controller) State(h Handle) State {
	info, err := c.registry.Lookup(h)
	if err != nil {
		return StateDisconnected
	}
	return info.State()
}

func (c *Controller) violation(msg string, args ...any) {
	if c.config.Strict {
		panic(fmt.Sprintf("realtime: %s %v", msg, args))
	}
	c.log.Error("Invariant violation: "+msg, args...)
}
