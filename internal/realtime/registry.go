package realtime

import (
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/chatwave/internal/auth"
)

const shardCount = 32

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

type connEntry struct {
	mu          sync.Mutex
	identity    auth.Identity
	sink        Sink
	connectedAt time.Time
	rooms       map[RoomID]struct{}
	removed     bool
}

type connShard struct {
	mu    sync.RWMutex
	conns map[Handle]*connEntry
}

type userShard struct {
	mu     sync.Mutex
	counts map[string]int
}

// Departure describes a connection that was just deregistered.
type Departure struct {
	Identity    auth.Identity
	Sink        Sink
	Rooms       []RoomID
	LastForUser bool
}

// Registry is the authoritative table of live connections.
type Registry struct {
	conns [shardCount]connShard
	users [shardCount]userShard
	now   func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.conns {
		r.conns[i].conns = make(map[Handle]*connEntry)
		r.users[i].counts = make(map[string]int)
	}
	return r
}

func (r *Registry) connShard(h Handle) *connShard { return &r.conns[shardOf(string(h))] }
func (r *Registry) userShard(id string) *userShard { return &r.users[shardOf(id)] }

// Register inserts a verified connection. firstForUser is true when no other
// connection of the same user was live.
func (r *Registry) Register(h Handle, identity auth.Identity, sink Sink) (bool, error) {
	s := r.connShard(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[h]; ok {
		return false, fmt.Errorf("%w: %s", ErrAlreadyRegistered, h)
	}
	s.conns[h] = &connEntry{
		identity:    identity,
		sink:        sink,
		connectedAt: r.now(),
		rooms:       make(map[RoomID]struct{}),
	}

	u := r.userShard(identity.UserID)
	u.mu.Lock()
	u.counts[identity.UserID]++
	first := u.counts[identity.UserID] == 1
	u.mu.Unlock()
	return first, nil
}

func (r *Registry) entry(h Handle) (*connEntry, bool) {
	s := r.connShard(h)
	s.mu.RLock()
	e, ok := s.conns[h]
	s.mu.RUnlock()
	return e, ok
}

// Lookup returns a snapshot of h, or ErrNotRegistered.
func (r *Registry) Lookup(h Handle) (ConnectionInfo, error) {
	e, ok := r.entry(h)
	if !ok {
		return ConnectionInfo{}, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ConnectionInfo{}, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	return ConnectionInfo{
		Handle:      h,
		UserID:      e.identity.UserID,
		Username:    e.identity.Username,
		ConnectedAt: e.connectedAt,
		Rooms:       sortedRooms(e.rooms),
	}, nil
}

// Identity returns the verified identity bound to h.
func (r *Registry) Identity(h Handle) (auth.Identity, bool) {
	e, ok := r.entry(h)
	if !ok {
		return auth.Identity{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return auth.Identity{}, false
	}
	return e.identity, true
}

// JoinedRooms returns nil for unknown handles.
func (r *Registry) JoinedRooms(h Handle) []RoomID {
	e, ok := r.entry(h)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil
	}
	return sortedRooms(e.rooms)
}

// HasRoom reports whether h is registered and has joined room.
func (r *Registry) HasRoom(h Handle, room RoomID) bool {
	e, ok := r.entry(h)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	_, joined := e.rooms[room]
	return joined
}

// AddRoom records room in h's joined set. It reports whether the set changed.
func (r *Registry) AddRoom(h Handle, room RoomID) (bool, error) {
	e, ok := r.entry(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	if _, joined := e.rooms[room]; joined {
		return false, nil
	}
	e.rooms[room] = struct{}{}
	return true, nil
}

// RemoveRoom drops room from h's joined set. It reports whether the set changed.
func (r *Registry) RemoveRoom(h Handle, room RoomID) (bool, error) {
	e, ok := r.entry(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	if _, joined := e.rooms[room]; !joined {
		return false, nil
	}
	delete(e.rooms, room)
	return true, nil
}

// Attach adds room to h and subscribes h in idx while holding the
// connection lock, so a concurrent Deregister sees both or neither.
func (r *Registry) Attach(h Handle, room RoomID, idx *Index) (bool, error) {
	e, ok := r.entry(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	_, joined := e.rooms[room]
	e.rooms[room] = struct{}{}
	idx.Subscribe(room, h)
	return !joined, nil
}

// Detach is the inverse of Attach.
func (r *Registry) Detach(h Handle, room RoomID, idx *Index) (bool, error) {
	e, ok := r.entry(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	_, joined := e.rooms[room]
	delete(e.rooms, room)
	idx.Unsubscribe(room, h)
	return joined, nil
}

// Deregister removes h atomically. Only one caller ever gets a Departure for
// a given registration; the others get ErrNotRegistered.
func (r *Registry) Deregister(h Handle) (Departure, error) {
	s := r.connShard(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.conns[h]
	if !ok {
		return Departure{}, fmt.Errorf("%w: %s", ErrNotRegistered, h)
	}
	delete(s.conns, h)

	e.mu.Lock()
	e.removed = true
	dep := Departure{
		Identity: e.identity,
		Sink:     e.sink,
		Rooms:    sortedRooms(e.rooms),
	}
	e.rooms = nil
	e.mu.Unlock()

	u := r.userShard(dep.Identity.UserID)
	u.mu.Lock()
	u.counts[dep.Identity.UserID]--
	if u.counts[dep.Identity.UserID] <= 0 {
		delete(u.counts, dep.Identity.UserID)
		dep.LastForUser = true
	}
	u.mu.Unlock()
	return dep, nil
}

// Sink returns the transport sink of a live connection.
func (r *Registry) Sink(h Handle) (Sink, bool) {
	e, ok := r.entry(h)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, false
	}
	return e.sink, true
}

// Count is the number of live connections.
func (r *Registry) Count() int {
	n := 0
	for i := range r.conns {
		s := &r.conns[i]
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}

// Handles returns a snapshot of every registered handle.
func (r *Registry) Handles() []Handle {
	var out []Handle
	for i := range r.conns {
		s := &r.conns[i]
		s.mu.RLock()
		out = append(out, lo.Keys(s.conns)...)
		s.mu.RUnlock()
	}
	return out
}

// UserConnections returns how many live connections userID holds.
func (r *Registry) UserConnections(userID string) int {
	u := r.userShard(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[userID]
}

func sortedRooms(rooms map[RoomID]struct{}) []RoomID {
	out := lo.Keys(rooms)
	slices.Sort(out)
	return out
}
