package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrRoomFull = errors.New("room is full")
	ErrInvalid  = errors.New("invalid record")
)

const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"

	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"

	DefaultMaxMembers = 25
	MaxContentLength  = 5000
)

// Room is a chat room. CreatedBy is the user who may moderate its messages.
type Room struct {
	ID         string    `json:"id" validate:"required,uuid"`
	Name       string    `json:"name" validate:"required,max=100"`
	Type       string    `json:"type" validate:"oneof=private group"`
	MaxMembers int       `json:"max_members" validate:"gte=2,lte=500"`
	AvatarURL  string    `json:"avatar_url,omitempty" validate:"omitempty,url,max=500"`
	CreatedBy  string    `json:"created_by" validate:"required,uuid"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Member is a durable room membership.
type Member struct {
	RoomID   string    `json:"room_id" validate:"required,uuid"`
	UserID   string    `json:"user_id" validate:"required,uuid"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role" validate:"oneof=admin moderator member"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is a stored chat message.
type Message struct {
	ID             string    `json:"id" validate:"required,uuid"`
	RoomID         string    `json:"room_id" validate:"required,uuid"`
	SenderID       string    `json:"sender_id" validate:"required,uuid"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content,omitempty" validate:"required_without=MediaURL,max=5000"`
	MediaURL       string    `json:"media_url,omitempty" validate:"omitempty,url,max=500"`
	Type           string    `json:"message_type" validate:"oneof=text image voice file"`
	ReplyTo        string    `json:"reply_to,omitempty" validate:"omitempty,uuid"`
	IsEdited       bool      `json:"is_edited"`
	IsDeleted      bool      `json:"is_deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Reaction is one emoji from one user on one message.
type Reaction struct {
	MessageID string    `json:"message_id" validate:"required,uuid"`
	UserID    string    `json:"user_id" validate:"required,uuid"`
	Username  string    `json:"username,omitempty"`
	Emoji     string    `json:"reaction" validate:"required,max=10"`
	CreatedAt time.Time `json:"created_at"`
}
