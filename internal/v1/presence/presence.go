// Package presence tracks which users are online, how many connections
// (tabs) each has open, and which room each user currently occupies. It owns
// three of the Gateway's four global registries; the fourth (rooms by id)
// lives with the Gateway itself since a Room owns its own lock.
package presence

import (
	"sync"
)

// UserRef is the public shape of a user as seen in an online list.
type UserRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Directory is the process-wide presence index. All mutations are guarded by
// a single mutex; callers hold no lock across a call into Directory (it never
// calls back out).
type Directory struct {
	mu          sync.Mutex
	connections map[string]map[string]struct{} // userId -> set of connectionId
	profiles    map[string]UserRef              // userId -> profile, present iff online
	roomByUser  map[string]string               // userId -> roomId
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		connections: make(map[string]map[string]struct{}),
		profiles:    make(map[string]UserRef),
		roomByUser:  make(map[string]string),
	}
}

// Connect registers a new connection for a user. Returns true if this is the
// user's first connection (they were previously offline).
func (d *Directory) Connect(userID, username, connectionID string) (becameOnline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.connections[userID]
	if !ok {
		set = make(map[string]struct{})
		d.connections[userID] = set
	}
	becameOnline = len(set) == 0
	set[connectionID] = struct{}{}
	d.profiles[userID] = UserRef{UserID: userID, Username: username}
	return becameOnline
}

// Disconnect removes one connection for a user. Returns true if this was the
// user's last connection (they are now offline). The room assignment, if
// any, is left untouched — reconnection is permitted.
func (d *Directory) Disconnect(userID, connectionID string) (wentOffline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.connections[userID]
	if !ok {
		return false
	}
	delete(set, connectionID)
	if len(set) > 0 {
		return false
	}

	delete(d.connections, userID)
	delete(d.profiles, userID)
	return true
}

// IsOnline reports whether a user has at least one open connection.
func (d *Directory) IsOnline(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.connections[userID]) > 0
}

// ConnectionsOf returns a snapshot of a user's open connection IDs.
func (d *Directory) ConnectionsOf(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	set := d.connections[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Online returns a snapshot of every currently-online user.
func (d *Directory) Online() []UserRef {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]UserRef, 0, len(d.profiles))
	for _, ref := range d.profiles {
		out = append(out, ref)
	}
	return out
}

// SetRoom records the room a user currently occupies, mutated atomically
// with the Gateway's own room-membership update.
func (d *Directory) SetRoom(userID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.roomByUser[userID] = roomID
}

// ClearRoom removes a user's room assignment, e.g. on leave or when a room
// empties out.
func (d *Directory) ClearRoom(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.roomByUser, userID)
}

// RoomOf returns the room a user currently occupies, if any.
func (d *Directory) RoomOf(userID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.roomByUser[userID]
	return roomID, ok
}

// Reset clears all state. Exposed so tests can start from a clean directory
// without constructing a fresh process.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connections = make(map[string]map[string]struct{})
	d.profiles = make(map[string]UserRef)
	d.roomByUser = make(map[string]string)
}
