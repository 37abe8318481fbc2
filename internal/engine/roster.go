package engine

import (
	"sort"
	"sync"
	"time"
)

// Player is a participant present in the room.
type Player struct {
	UserID   string
	Username string
	JoinedAt time.Time
}

// Roster tracks the players present in a room.
// All methods are safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	players map[string]*Player // user ID → player
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		players: make(map[string]*Player),
	}
}

// Add registers a player, or refreshes the username of one already present.
//
// Postcondition: Returns a copy of the player and true if newly added.
func (r *Roster) Add(userID, username string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.players[userID]; exists {
		p.Username = username
		return *p, false
	}
	p := &Player{UserID: userID, Username: username, JoinedAt: time.Now()}
	r.players[userID] = p
	return *p, true
}

// Remove removes a player.
//
// Postcondition: Returns the removed player and true, or (Player{}, false) if absent.
func (r *Roster) Remove(userID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.players[userID]
	if !exists {
		return Player{}, false
	}
	delete(r.players, userID)
	return *p, true
}

// Get returns the player with the given user ID.
func (r *Roster) Get(userID string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[userID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Names returns the usernames of all players, sorted.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.Username)
	}
	sort.Strings(names)
	return names
}

// Others returns the usernames of every player except userID, sorted.
func (r *Roster) Others(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.players))
	for id, p := range r.players {
		if id != userID {
			names = append(names, p.Username)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of players present.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
