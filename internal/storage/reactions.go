package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// AddReaction is idempotent; added is false when the same user already
// reacted with the same emoji.
func (s *Store) AddReaction(ctx context.Context, reaction Reaction) (added bool, err error) {
	reaction.CreatedAt = s.now()
	if err := s.check(reaction); err != nil {
		return false, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := lookupMessageKey(txn, reaction.MessageID); err != nil {
			return err
		}
		key := reactionKey(reaction.MessageID, reaction.UserID, reaction.Emoji)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return setJSON(txn, key, reaction)
	})
	return added, err
}

// RemoveReaction reports whether a reaction was removed.
func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	removed := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := reactionKey(messageID, userID, emoji)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		removed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("remove reaction on %s: %w", messageID, err)
	}
	return removed, nil
}

// Reactions lists every reaction on a message.
func (s *Store) Reactions(ctx context.Context, messageID string) ([]Reaction, error) {
	var reactions []Reaction
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		reactions, err = scanJSON[Reaction](txn, reactionPrefix(messageID))
		return err
	})
	return reactions, err
}
