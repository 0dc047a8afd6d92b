package realtime

import (
	"sync"

	"github.com/samber/lo"
)

type roomShard struct {
	mu    sync.RWMutex
	rooms map[RoomID]map[Handle]struct{}
}

// Index maps rooms to the handles subscribed to them. Empty rooms are dropped.
type Index struct {
	shards [shardCount]roomShard
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i].rooms = make(map[RoomID]map[Handle]struct{})
	}
	return idx
}

func (idx *Index) shard(room RoomID) *roomShard { return &idx.shards[shardOf(string(room))] }

// Subscribe reports whether h was newly added to room.
func (idx *Index) Subscribe(room RoomID, h Handle) bool {
	s := idx.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[Handle]struct{})
		s.rooms[room] = members
	}
	if _, present := members[h]; present {
		return false
	}
	members[h] = struct{}{}
	return true
}

// Unsubscribe reports whether h was removed from room.
func (idx *Index) Unsubscribe(room RoomID, h Handle) bool {
	s := idx.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok {
		return false
	}
	if _, present := members[h]; !present {
		return false
	}
	delete(members, h)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
	return true
}

// Subscribers returns a snapshot that later mutations do not affect.
func (idx *Index) Subscribers(room RoomID) []Handle {
	s := idx.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.rooms[room])
}

// Contains reports whether h is subscribed to room.
func (idx *Index) Contains(room RoomID, h Handle) bool {
	s := idx.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room][h]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (idx *Index) RoomCount() int {
	n := 0
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		n += len(s.rooms)
		s.mu.RUnlock()
	}
	return n
}

// RoomsOf scans every shard for rooms containing h.
func (idx *Index) RoomsOf(h Handle) []RoomID {
	var out []RoomID
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		for room, members := range s.rooms {
			if _, ok := members[h]; ok {
				out = append(out, room)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
