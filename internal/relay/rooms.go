package relay

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/VoiceChat/internal/domain"
)

// Room is the set of members currently in one chat. Rooms guards it.
type Room struct {
	name    domain.ChatName
	members map[SessionID]*member
}

func (r *Room) others(id SessionID) []*member {
	out := make([]*member, 0, len(r.members))
	for mid, m := range r.members {
		if mid != id {
			out = append(out, m)
		}
	}
	return out
}

type RoomInfo struct {
	Name        domain.ChatName `json:"name"`
	MemberCount int             `json:"memberCount"`
}

// Rooms owns every chat known to the relay. A room exists while it has
// members.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[domain.ChatName]*Room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[domain.ChatName]*Room)}
}

func (f *Rooms) getOrCreate(name domain.ChatName) *Room {
	room, ok := f.rooms[name]
	if !ok {
		room = &Room{name: name, members: make(map[SessionID]*member)}
		f.rooms[name] = room
	}
	return room
}

// Join adds m to name and returns the members already there. ok is false
// when m was in the room already.
func (f *Rooms) Join(name domain.ChatName, m *member) (others []*member, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.getOrCreate(name)
	if _, dup := room.members[m.id]; dup {
		return nil, false
	}
	others = room.others(m.id)
	room.members[m.id] = m
	return others, true
}

// Leave removes id from name and returns the members left behind.
func (f *Rooms) Leave(name domain.ChatName, id SessionID) (others []*member, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, found := f.rooms[name]
	if !found {
		return nil, false
	}
	if _, in := room.members[id]; !in {
		return nil, false
	}
	delete(room.members, id)
	if len(room.members) == 0 {
		delete(f.rooms, name)
	}
	return room.others(id), true
}

// Member returns id if both it and from are in name.
func (f *Rooms) Member(name domain.ChatName, from, id SessionID) (*member, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	if !ok {
		return nil, false
	}
	if _, in := room.members[from]; !in {
		return nil, false
	}
	m, ok := room.members[id]
	return m, ok
}

func (f *Rooms) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for name, r := range f.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: len(r.members)})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

// Members lists the session ids in name, sorted.
func (f *Rooms) Members(name domain.ChatName) []SessionID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(room.members))
}
