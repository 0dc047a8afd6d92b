package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/chatwave/internal/realtime"
)

// envelope is the JSON frame clients send: {"event": name, "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	RoomID string `json:"room_id" validate:"required,max=64"`
}

type sendMessageRequest struct {
	RoomID      string `json:"room_id" validate:"required,max=64"`
	Content     string `json:"content" validate:"required_without=MediaURL,max=5000"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image voice file"`
	ReplyTo     string `json:"reply_to" validate:"omitempty,uuid"`
	MediaURL    string `json:"media_url" validate:"omitempty,url,max=500"`
}

type reactionRequest struct {
	RoomID    string `json:"room_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,uuid"`
	Reaction  string `json:"reaction" validate:"required,max=10"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func decodeData[T any](data json.RawMessage) (T, error) {
	var req T
	if len(data) == 0 {
		return req, fmt.Errorf("%w: missing data", realtime.ErrInvalidCommand)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %w", realtime.ErrInvalidCommand, err)
	}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %w", realtime.ErrInvalidCommand, err)
	}
	return req, nil
}

// decodeCommand parses one client frame. The event name is returned even when
// decoding fails so the rejection can name the request.
func decodeCommand(raw []byte) (string, realtime.Command, error) {
	var in envelope
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", realtime.Command{}, fmt.Errorf("%w: %w", realtime.ErrInvalidCommand, err)
	}

	switch realtime.CommandKind(in.Event) {
	case realtime.CommandJoinRoom, realtime.CommandLeaveRoom,
		realtime.CommandTypingStart, realtime.CommandTypingStop:
		req, err := decodeData[roomRequest](in.Data)
		if err != nil {
			return in.Event, realtime.Command{}, err
		}
		return in.Event, realtime.Command{Kind: realtime.CommandKind(in.Event), Room: realtime.RoomID(req.RoomID)}, nil

	case realtime.CommandSendMessage:
		req, err := decodeData[sendMessageRequest](in.Data)
		if err != nil {
			return in.Event, realtime.Command{}, err
		}
		return in.Event, realtime.SendMessage(realtime.Message{
			Room:     realtime.RoomID(req.RoomID),
			Content:  req.Content,
			Type:     req.MessageType,
			ReplyTo:  req.ReplyTo,
			MediaURL: req.MediaURL,
		}), nil

	case realtime.CommandAddReaction, realtime.CommandRemoveReaction:
		req, err := decodeData[reactionRequest](in.Data)
		if err != nil {
			return in.Event, realtime.Command{}, err
		}
		reaction := realtime.Reaction{
			MessageID: req.MessageID,
			Room:      realtime.RoomID(req.RoomID),
			Emoji:     req.Reaction,
		}
		if in.Event == string(realtime.CommandAddReaction) {
			return in.Event, realtime.AddReaction(reaction), nil
		}
		return in.Event, realtime.RemoveReaction(reaction), nil

	default:
		return in.Event, realtime.Command{}, fmt.Errorf("%w: unknown event %q", realtime.ErrInvalidCommand, in.Event)
	}
}
