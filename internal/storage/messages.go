package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// PersistMessage stores msg, filling in its id and timestamps when missing.
func (s *Store) PersistMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.UpdatedAt = msg.CreatedAt
	if err := s.check(msg); err != nil {
		return Message{}, err
	}

	key := messageKey(msg.RoomID, msg.CreatedAt, msg.ID)
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(msg.RoomID)); err != nil {
			return fmt.Errorf("room %s: %w", msg.RoomID, ErrNotFound)
		}
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		return txn.Set(messageIDKey(msg.ID), key)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func lookupMessageKey(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return item.ValueCopy(nil)
}

// GetMessage looks a message up by id.
func (s *Store) GetMessage(ctx context.Context, id string) (Message, error) {
	var msg Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &msg)
	})
	return msg, err
}

func (s *Store) modifyMessage(ctx context.Context, id string, fn func(*Message) error) (Message, error) {
	var msg Message
	err := s.update(ctx, func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &msg); err != nil {
			return err
		}
		if err := fn(&msg); err != nil {
			return err
		}
		msg.UpdatedAt = s.now()
		return setJSON(txn, key, msg)
	})
	return msg, err
}

// EditMessage replaces the content and flags the message as edited. Deleted
// messages cannot be edited.
func (s *Store) EditMessage(ctx context.Context, id, content string) (Message, error) {
	return s.modifyMessage(ctx, id, func(msg *Message) error {
		if msg.IsDeleted {
			return fmt.Errorf("%w: message %s is deleted", ErrInvalid, id)
		}
		msg.Content = content
		msg.IsEdited = true
		return s.check(*msg)
	})
}

// SoftDeleteMessage flags the message; it stays in the room history.
func (s *Store) SoftDeleteMessage(ctx context.Context, id string) (Message, error) {
	return s.modifyMessage(ctx, id, func(msg *Message) error {
		msg.IsDeleted = true
		return nil
	})
}

// RoomMessages returns a page of the room history, newest first.
func (s *Store) RoomMessages(ctx context.Context, roomID string, skip, limit int) ([]Message, error) {
	if skip < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: skip %d limit %d", ErrInvalid, skip, limit)
	}
	var messages []Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seek := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		seen := 0
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if seen < skip {
				seen++
				continue
			}
			if len(messages) == limit {
				break
			}
			var msg Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	return messages, err
}
