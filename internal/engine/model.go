// Package engine provides a small in-memory room engine: a single room with
// exits and items, the set of players present, and the verbs they can use.
package engine

import (
	"fmt"
	"sort"
)

// Direction represents a compass direction or vertical movement.
type Direction string

// Standard compass directions and vertical movements.
const (
	North     Direction = "north"
	South     Direction = "south"
	East      Direction = "east"
	West      Direction = "west"
	Northeast Direction = "northeast"
	Northwest Direction = "northwest"
	Southeast Direction = "southeast"
	Southwest Direction = "southwest"
	Up        Direction = "up"
	Down      Direction = "down"
)

// StandardDirections contains all standard compass and vertical directions.
var StandardDirections = []Direction{
	North, South, East, West,
	Northeast, Northwest, Southeast, Southwest,
	Up, Down,
}

var directionAliases = map[string]Direction{
	"n": North, "s": South, "e": East, "w": West,
	"ne": Northeast, "nw": Northwest, "se": Southeast, "sw": Southwest,
	"u": Up, "d": Down,
}

// IsStandard reports whether d is one of the ten standard directions.
func (d Direction) IsStandard() bool {
	for _, sd := range StandardDirections {
		if d == sd {
			return true
		}
	}
	return false
}

// ParseDirection resolves a direction name or its short alias ("n", "sw").
//
// Postcondition: Returns (direction, true) for a standard direction, or ("", false).
func ParseDirection(s string) (Direction, bool) {
	if d, ok := directionAliases[s]; ok {
		return d, true
	}
	d := Direction(s)
	if d.IsStandard() {
		return d, true
	}
	return "", false
}

// Exit is a door leading out of the room.
type Exit struct {
	Direction Direction
	// Target names the room on the other side. It is informational; this
	// engine serves a single room.
	Target string
	// Door describes the exit when examined or used.
	Door string
}

// Item is something in the room that can be examined.
type Item struct {
	Name        string
	Description string
}

// Room is the room served by an Engine.
type Room struct {
	ID          string
	Name        string
	FullName    string
	Description string
	Exits       []Exit
	Items       []Item
}

// ExitForDirection returns the exit in the given direction, if one exists.
//
// Postcondition: Returns (exit, true) if found, or (Exit{}, false) otherwise.
func (r *Room) ExitForDirection(dir Direction) (Exit, bool) {
	for _, e := range r.Exits {
		if e.Direction == dir {
			return e, true
		}
	}
	return Exit{}, false
}

// Item returns the item with the given name, if present.
func (r *Room) Item(name string) (Item, bool) {
	for _, it := range r.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// ExitDirections returns the room's exit directions in sorted order.
func (r *Room) ExitDirections() []string {
	dirs := make([]string, 0, len(r.Exits))
	for _, e := range r.Exits {
		dirs = append(dirs, string(e.Direction))
	}
	sort.Strings(dirs)
	return dirs
}

// Validate checks room invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (r *Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("room ID must not be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("room %q: name must not be empty", r.ID)
	}
	if r.Description == "" {
		return fmt.Errorf("room %q: description must not be empty", r.ID)
	}
	seen := make(map[Direction]bool, len(r.Exits))
	for _, e := range r.Exits {
		if !e.Direction.IsStandard() {
			return fmt.Errorf("room %q: exit direction %q is not a standard direction", r.ID, e.Direction)
		}
		if seen[e.Direction] {
			return fmt.Errorf("room %q: duplicate exit %q", r.ID, e.Direction)
		}
		seen[e.Direction] = true
	}
	items := make(map[string]bool, len(r.Items))
	for _, it := range r.Items {
		if it.Name == "" {
			return fmt.Errorf("room %q: item name must not be empty", r.ID)
		}
		if items[it.Name] {
			return fmt.Errorf("room %q: duplicate item %q", r.ID, it.Name)
		}
		items[it.Name] = true
	}
	return nil
}

// Location is what a player sees when looking around.
type Location struct {
	Name        string
	FullName    string
	Description string
	// Exits maps direction to door description.
	Exits map[string]string
}
