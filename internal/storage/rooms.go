package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// CreateRoom stores room and makes its creator an admin member.
func (s *Store) CreateRoom(ctx context.Context, room Room, creatorUsername string) (Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.Type == "" {
		room.Type = RoomTypeGroup
	}
	if room.MaxMembers == 0 {
		room.MaxMembers = DefaultMaxMembers
	}
	now := s.now()
	room.CreatedAt, room.UpdatedAt = now, now
	if err := s.check(room); err != nil {
		return Room{}, err
	}

	creator := Member{
		RoomID:   room.ID,
		UserID:   room.CreatedBy,
		Username: creatorUsername,
		Role:     RoleAdmin,
		JoinedAt: now,
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("%w: room %s already exists", ErrInvalid, room.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, roomKey(room.ID), room); err != nil {
			return err
		}
		return setJSON(txn, memberKey(room.ID, creator.UserID), creator)
	})
	if err != nil {
		return Room{}, err
	}
	s.log.Debug("Room created", "room_id", room.ID, "created_by", room.CreatedBy)
	return room, nil
}

// GetRoom returns ErrNotFound for unknown rooms.
func (s *Store) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(roomID), &room)
	})
	if err != nil {
		return Room{}, fmt.Errorf("room %s: %w", roomID, err)
	}
	return room, nil
}

// AddMember adds userID to the room, or updates the role of an existing
// member. ErrRoomFull is returned once MaxMembers is reached.
func (s *Store) AddMember(ctx context.Context, roomID, userID, username, role string) (Member, error) {
	if role == "" {
		role = RoleMember
	}
	member := Member{RoomID: roomID, UserID: userID, Username: username, Role: role, JoinedAt: s.now()}
	if err := s.check(member); err != nil {
		return Member{}, err
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		var room Room
		if err := getJSON(txn, roomKey(roomID), &room); err != nil {
			return fmt.Errorf("room %s: %w", roomID, err)
		}

		var existing Member
		err := getJSON(txn, memberKey(roomID, userID), &existing)
		switch {
		case err == nil:
			existing.Role = role
			if username != "" {
				existing.Username = username
			}
			member = existing
			return setJSON(txn, memberKey(roomID, userID), existing)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if countKeys(txn, memberPrefix(roomID)) >= room.MaxMembers {
			return fmt.Errorf("%w: %d members", ErrRoomFull, room.MaxMembers)
		}
		return setJSON(txn, memberKey(roomID, userID), member)
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

// RemoveMember returns ErrNotFound when userID is not a member.
func (s *Store) RemoveMember(ctx context.Context, roomID, userID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := memberKey(roomID, userID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("member %s of room %s: %w", userID, roomID, ErrNotFound)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// IsMember answers durable room membership for the realtime engine.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	found := false
	err := s.view(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(roomID, userID))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// Members lists a room's members in key order.
func (s *Store) Members(ctx context.Context, roomID string) ([]Member, error) {
	var members []Member
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		members, err = scanJSON[Member](txn, memberPrefix(roomID))
		return err
	})
	return members, err
}
