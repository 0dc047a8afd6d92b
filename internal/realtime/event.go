package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tyrowin/chatwave/internal/auth"
)

// Kind tags an Event.
type Kind string

const (
	KindMessage         Kind = "message"
	KindMessageEdited   Kind = "message-edited"
	KindMessageDeleted  Kind = "message-deleted"
	KindReactionAdded   Kind = "reaction-added"
	KindReactionRemoved Kind = "reaction-removed"
	KindUserJoined      Kind = "user-joined"
	KindUserLeft        Kind = "user-left"
	KindTypingStart     Kind = "typing-start"
	KindTypingStop      Kind = "typing-stop"
	KindPresenceChanged Kind = "presence-changed"
	KindRejected        Kind = "rejected"
)

// Message is a chat message as seen by the engine. It is usually persisted
// by the caller before being handed to the Controller.
type Message struct {
	ID             string
	Room           RoomID
	SenderID       string
	SenderUsername string
	Content        string
	Type           string
	ReplyTo        string
	MediaURL       string
	CreatedAt      time.Time
}

// Reaction is an emoji reaction on a message.
type Reaction struct {
	MessageID string
	Room      RoomID
	UserID    string
	Username  string
	Emoji     string
}

// Rejection explains why a client request was refused.
type Rejection struct {
	Code    string
	Reason  string
	Request string
}

// Event is an ephemeral payload routed to connections. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind      Kind
	Room      RoomID
	UserID    string
	Username  string
	Online    bool
	Message   *Message
	Reaction  *Reaction
	Rejection *Rejection
	At        time.Time
}

// MessageEvent announces a new message, attributed to its sender.
func MessageEvent(msg Message) Event {
	return Event{
		Kind:     KindMessage,
		Room:     msg.Room,
		UserID:   msg.SenderID,
		Username: msg.SenderUsername,
		Message:  &msg,
		At:       msg.CreatedAt,
	}
}

// MessageEditedEvent carries the new content of msg. editor is who changed it.
func MessageEditedEvent(msg Message, editor auth.Identity, at time.Time) Event {
	return Event{
		Kind:     KindMessageEdited,
		Room:     msg.Room,
		UserID:   editor.UserID,
		Username: editor.Username,
		Message:  &msg,
		At:       at,
	}
}

// MessageDeletedEvent reports a soft delete by remover.
func MessageDeletedEvent(room RoomID, messageID string, remover auth.Identity, at time.Time) Event {
	return Event{
		Kind:     KindMessageDeleted,
		Room:     room,
		UserID:   remover.UserID,
		Username: remover.Username,
		Message:  &Message{ID: messageID, Room: room},
		At:       at,
	}
}

// ReactionEvent builds reaction-added or reaction-removed.
func ReactionEvent(reaction Reaction, added bool) Event {
	kind := KindReactionRemoved
	if added {
		kind = KindReactionAdded
	}
	return Event{
		Kind:     kind,
		Room:     reaction.Room,
		UserID:   reaction.UserID,
		Username: reaction.Username,
		Reaction: &reaction,
	}
}

// JoinedEvent announces that a live connection entered room.
func JoinedEvent(room RoomID, identity auth.Identity) Event {
	return Event{Kind: KindUserJoined, Room: room, UserID: identity.UserID, Username: identity.Username}
}

// LeftEvent announces that a live connection left room.
func LeftEvent(room RoomID, identity auth.Identity) Event {
	return Event{Kind: KindUserLeft, Room: room, UserID: identity.UserID, Username: identity.Username}
}

// TypingEvent builds typing-start or typing-stop.
func TypingEvent(room RoomID, identity auth.Identity, started bool) Event {
	kind := KindTypingStop
	if started {
		kind = KindTypingStart
	}
	return Event{Kind: kind, Room: room, UserID: identity.UserID, Username: identity.Username}
}

// PresenceEvent reports identity going online or offline.
func PresenceEvent(identity auth.Identity, online bool) Event {
	return Event{Kind: KindPresenceChanged, UserID: identity.UserID, Username: identity.Username, Online: online}
}

// RejectedEvent builds the per-connection answer to a refused request.
func RejectedEvent(request string, err error) Event {
	code := ErrorCode(err)
	return Event{
		Kind: KindRejected,
		Rejection: &Rejection{
			Code:    code,
			Reason:  ErrorMessage(code),
			Request: request,
		},
	}
}

// Server to client event names.
const (
	FrameUserConnected    = "user_connected"
	FrameUserDisconnected = "user_disconnected"
	FrameUserJoined       = "user_joined"
	FrameUserLeft         = "user_left"
	FrameReceiveMessage   = "receive_message"
	FrameMessageEdited    = "message_edited"
	FrameMessageDeleted   = "message_deleted"
	FrameTypingStart      = "typing_start"
	FrameTypingStop       = "typing_stop"
	FrameReactionAdded    = "reaction_added"
	FrameReactionRemoved  = "reaction_removed"
	FrameError            = "error"
)

// Frame is the JSON envelope written to clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type userPayload struct {
	RoomID   RoomID `json:"room_id,omitempty"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type typingPayload struct {
	RoomID   RoomID `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type messagePayload struct {
	RoomID         RoomID `json:"room_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	ReplyTo        string `json:"reply_to,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type messageChangePayload struct {
	RoomID    RoomID `json:"room_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp"`
}

type reactionPayload struct {
	RoomID    RoomID `json:"room_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Reaction  string `json:"reaction"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

// ToFrame maps an event to its wire envelope.
func ToFrame(evt Event) (Frame, error) {
	switch evt.Kind {
	case KindMessage:
		if evt.Message == nil {
			return Frame{}, fmt.Errorf("%w: message event without message", ErrInvalidCommand)
		}
		msg := evt.Message
		return Frame{Event: FrameReceiveMessage, Data: messagePayload{
			RoomID:         msg.Room,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			SenderUsername: msg.SenderUsername,
			Content:        msg.Content,
			MessageType:    msg.Type,
			ReplyTo:        msg.ReplyTo,
			MediaURL:       msg.MediaURL,
			Timestamp:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		}}, nil
	case KindMessageEdited, KindMessageDeleted:
		if evt.Message == nil {
			return Frame{}, fmt.Errorf("%w: %s event without message", ErrInvalidCommand, evt.Kind)
		}
		payload := messageChangePayload{
			RoomID:    evt.Room,
			MessageID: evt.Message.ID,
			UserID:    evt.UserID,
			Username:  evt.Username,
			Timestamp: evt.At.UTC().Format(time.RFC3339Nano),
		}
		name := FrameMessageDeleted
		if evt.Kind == KindMessageEdited {
			name = FrameMessageEdited
			payload.Content = evt.Message.Content
		}
		return Frame{Event: name, Data: payload}, nil
	case KindReactionAdded, KindReactionRemoved:
		if evt.Reaction == nil {
			return Frame{}, fmt.Errorf("%w: reaction event without reaction", ErrInvalidCommand)
		}
		name := FrameReactionRemoved
		if evt.Kind == KindReactionAdded {
			name = FrameReactionAdded
		}
		r := evt.Reaction
		return Frame{Event: name, Data: reactionPayload{
			RoomID:    r.Room,
			MessageID: r.MessageID,
			UserID:    r.UserID,
			Username:  r.Username,
			Reaction:  r.Emoji,
		}}, nil
	case KindUserJoined:
		return Frame{Event: FrameUserJoined, Data: userPayload{RoomID: evt.Room, UserID: evt.UserID, Username: evt.Username}}, nil
	case KindUserLeft:
		return Frame{Event: FrameUserLeft, Data: userPayload{RoomID: evt.Room, UserID: evt.UserID, Username: evt.Username}}, nil
	case KindTypingStart:
		return Frame{Event: FrameTypingStart, Data: typingPayload{RoomID: evt.Room, UserID: evt.UserID, Username: evt.Username}}, nil
	case KindTypingStop:
		return Frame{Event: FrameTypingStop, Data: typingPayload{RoomID: evt.Room, UserID: evt.UserID, Username: evt.Username}}, nil
	case KindPresenceChanged:
		name := FrameUserDisconnected
		if evt.Online {
			name = FrameUserConnected
		}
		return Frame{Event: name, Data: userPayload{UserID: evt.UserID, Username: evt.Username}}, nil
	case KindRejected:
		if evt.Rejection == nil {
			return Frame{}, fmt.Errorf("%w: rejection event without reason", ErrInvalidCommand)
		}
		return Frame{Event: FrameError, Data: errorPayload{
			Code:    evt.Rejection.Code,
			Message: evt.Rejection.Reason,
			Request: evt.Rejection.Request,
		}}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown event kind %q", ErrInvalidCommand, evt.Kind)
	}
}

// Encode serializes an event into a text frame.
func Encode(evt Event) ([]byte, error) {
	frame, err := ToFrame(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}
