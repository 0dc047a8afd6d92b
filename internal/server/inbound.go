package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/chatwave/internal/realtime"
	"github.com/Tyrowin/chatwave/internal/storage"
)

// route runs one decoded command. Messages and reactions are persisted before
// they are fanned out; everything else goes straight to the controller.
func (s *Server) route(ctx context.Context, h realtime.Handle, cmd realtime.Command) error {
	switch cmd.Kind {
	case realtime.CommandSendMessage:
		if cmd.Message == nil {
			return fmt.Errorf("%w: send_message without message", realtime.ErrInvalidCommand)
		}
		return s.sendMessage(ctx, h, *cmd.Message)
	case realtime.CommandAddReaction, realtime.CommandRemoveReaction:
		if cmd.Reaction == nil {
			return fmt.Errorf("%w: %s without reaction", realtime.ErrInvalidCommand, cmd.Kind)
		}
		return s.react(ctx, h, *cmd.Reaction, cmd.Kind == realtime.CommandAddReaction)
	default:
		return s.controller.Handle(ctx, h, cmd)
	}
}

func (s *Server) sendMessage(ctx context.Context, h realtime.Handle, msg realtime.Message) error {
	identity, err := s.controller.Authorize(h, msg.Room)
	if err != nil {
		return err
	}

	stored, err := s.store.PersistMessage(ctx, storage.Message{
		RoomID:         string(msg.Room),
		SenderID:       identity.UserID,
		SenderUsername: identity.Username,
		Content:        msg.Content,
		MediaURL:       msg.MediaURL,
		Type:           msg.Type,
		ReplyTo:        msg.ReplyTo,
	})
	if err != nil {
		return storageError(err)
	}

	msg.ID = stored.ID
	msg.Type = stored.Type
	msg.CreatedAt = stored.CreatedAt
	report, err := s.controller.Send(ctx, h, msg)
	if err != nil {
		return err
	}
	s.log.Debug("Message sent", "message_id", msg.ID, "room_id", msg.Room,
		"delivered", report.Delivered, "failed", report.Failed)
	return nil
}

func (s *Server) react(ctx context.Context, h realtime.Handle, reaction realtime.Reaction, add bool) error {
	identity, err := s.controller.Authorize(h, reaction.Room)
	if err != nil {
		return err
	}

	msg, err := s.store.GetMessage(ctx, reaction.MessageID)
	if err != nil {
		return storageError(err)
	}
	if msg.RoomID != string(reaction.Room) {
		return fmt.Errorf("%w: message %s is not in room %s", realtime.ErrInvalidCommand, msg.ID, reaction.Room)
	}

	var changed bool
	if add {
		changed, err = s.store.AddReaction(ctx, storage.Reaction{
			MessageID: reaction.MessageID,
			UserID:    identity.UserID,
			Username:  identity.Username,
			Emoji:     reaction.Emoji,
		})
	} else {
		changed, err = s.store.RemoveReaction(ctx, reaction.MessageID, identity.UserID, reaction.Emoji)
	}
	if err != nil {
		return storageError(err)
	}
	if !changed {
		return nil
	}

	_, err = s.controller.React(ctx, h, reaction, add)
	return err
}

// storageError maps store failures onto the codes clients see.
func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalid), errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrRoomFull):
		return fmt.Errorf("%w: %w", realtime.ErrInvalidCommand, err)
	default:
		return fmt.Errorf("%w: %w", realtime.ErrUpstreamUnavailable, err)
	}
}
