package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Reasons sent to a participant in an error message.
const (
	ReasonMaxUsers   = "maxUsersLimitReached"
	ReasonNotAllowed = "notAllowed"
	ReasonBadSession = "invalidSession"
	ReasonBadRequest = "badRequest"
	ReasonInternal   = "internalError"
)

var (
	// ErrRoomFull is returned when a join would exceed MaxOccupants.
	ErrRoomFull = errors.New("room is full")

	// ErrAuthRequired is returned when the first occupant of a room has
	// not authenticated as host.
	ErrAuthRequired = errors.New("host authentication required")
)

// Credentials authenticate a room host.
type Credentials struct {
	Username string
	Password string
}

// Member is one occupant of a room.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	VideoType string `json:"videoType"`
	Media     bool   `json:"media"`
	Host      bool   `json:"host"`
	seq       uint64
}

type room struct {
	name    string
	members map[string]*Member
	subs    map[string]func([]Member)
}

// Rooms tracks occupants of every room on the server.
type Rooms struct {
	maxOccupants int
	hostAuth     bool
	limits       map[string]int

	mu    sync.Mutex
	seq   uint64
	rooms map[string]*room
}

// NewRooms creates an empty room set. maxOccupants <= 0 means unlimited.
// When hostAuth is set, the first occupant of an empty room must be
// authenticated.
func NewRooms(maxOccupants int, hostAuth bool) *Rooms {
	return &Rooms{
		maxOccupants: maxOccupants,
		hostAuth:     hostAuth,
		limits:       make(map[string]int),
		rooms:        make(map[string]*room),
	}
}

// SetLimit overrides the occupant cap of one room. n <= 0 removes the
// override.
func (r *Rooms) SetLimit(name string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		delete(r.limits, name)
		return
	}
	r.limits[name] = n
}

func (r *Rooms) limitLocked(name string) int {
	if n, ok := r.limits[name]; ok {
		return n
	}
	return r.maxOccupants
}

// NeedsHost reports whether a join into name must be authenticated.
func (r *Rooms) NeedsHost(name string) bool {
	if !r.hostAuth {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	return !ok || len(rm.members) == 0
}

// Join adds a member to room name and returns it. notify is called with a
// snapshot of the membership whenever it changes.
func (r *Rooms) Join(name, display, videoType string, host bool, notify func([]Member)) (*Member, error) {
	r.mu.Lock()
	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{
			name:    name,
			members: make(map[string]*Member),
			subs:    make(map[string]func([]Member)),
		}
		r.rooms[name] = rm
	}
	if r.hostAuth && len(rm.members) == 0 && !host {
		r.mu.Unlock()
		return nil, ErrAuthRequired
	}
	if limit := r.limitLocked(name); limit > 0 && len(rm.members) >= limit {
		r.mu.Unlock()
		return nil, ErrRoomFull
	}
	if videoType == "" {
		videoType = "camera"
	}
	r.seq++
	m := &Member{
		ID:        uuid.NewString()[:8],
		Name:      display,
		VideoType: videoType,
		Host:      host,
		seq:       r.seq,
	}
	rm.members[m.ID] = m
	if notify != nil {
		rm.subs[m.ID] = notify
	}
	r.broadcastLocked(rm)
	r.mu.Unlock()
	return m, nil
}

// SetMedia marks that media from member id is flowing.
func (r *Rooms) SetMedia(name, id string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	m, ok := rm.members[id]
	if !ok || m.Media == on {
		return
	}
	m.Media = on
	r.broadcastLocked(rm)
}

// Leave removes member id from room name. Empty rooms are dropped.
func (r *Rooms) Leave(name, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	if _, ok := rm.members[id]; !ok {
		return
	}
	delete(rm.members, id)
	delete(rm.subs, id)
	if len(rm.members) == 0 {
		delete(r.rooms, name)
		return
	}
	r.broadcastLocked(rm)
}

// Members returns the occupants of room name in join order.
func (r *Rooms) Members(name string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	if !ok {
		return []Member{}
	}
	return snapshot(rm)
}

func (r *Rooms) broadcastLocked(rm *room) {
	members := snapshot(rm)
	for _, notify := range rm.subs {
		notify(members)
	}
}

func snapshot(rm *room) []Member {
	out := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}
