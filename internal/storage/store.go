// Package storage keeps rooms, memberships, messages and reactions in an
// embedded badger database.
//
// Keys:
//
//	room:{room_id}
//	member:{room_id}:{user_id}
//	msg:{room_id}:{unix_nano_padded}:{message_id}
//	msgid:{message_id}                 -> msg key
//	reaction:{message_id}:{user_id}:{emoji}
//
// The 19 digit zero padding keeps messages in chronological order under a
// lexicographic prefix scan.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
)

// Store is safe for concurrent use.
type Store struct {
	db       *badger.DB
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Open opens the database at path. An empty path keeps everything in memory.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return New(db, log), nil
}

// New wraps an open badger database. The Store owns db from then on.
func New(db *badger.DB, log *slog.Logger) *Store {
	return &Store{
		db:       db,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func roomKey(roomID string) []byte { return []byte("room:" + roomID) }

func memberKey(roomID, userID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", roomID, userID))
}

func memberPrefix(roomID string) []byte { return []byte("member:" + roomID + ":") }

func messageKey(roomID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id))
}

func messagePrefix(roomID string) []byte { return []byte("msg:" + roomID + ":") }

func messageIDKey(id string) []byte { return []byte("msgid:" + id) }

func reactionKey(messageID, userID, emoji string) []byte {
	return []byte(fmt.Sprintf("reaction:%s:%s:%s", messageID, userID, emoji))
}

func reactionPrefix(messageID string) []byte { return []byte("reaction:" + messageID + ":") }

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scanJSON decodes every value under prefix, in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func countKeys(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}
