package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlRoomFile is the top-level YAML structure for room files.
type yamlRoomFile struct {
	Room yamlRoom `yaml:"room"`
}

type yamlRoom struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	FullName    string     `yaml:"full_name"`
	Description string     `yaml:"description"`
	Exits       []yamlExit `yaml:"exits"`
	Items       []yamlItem `yaml:"items"`
}

type yamlExit struct {
	Direction string `yaml:"direction"`
	Target    string `yaml:"target"`
	Door      string `yaml:"door"`
}

type yamlItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadRoomFromFile reads and validates a room YAML file.
//
// Precondition: path must point to a valid YAML room file.
// Postcondition: Returns a validated Room or a non-nil error.
func LoadRoomFromFile(path string) (*Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading room file %s: %w", path, err)
	}
	return LoadRoomFromBytes(data)
}

// LoadRoomFromBytes parses and validates a room from YAML bytes.
//
// Postcondition: Returns a validated Room or a non-nil error.
func LoadRoomFromBytes(data []byte) (*Room, error) {
	var file yamlRoomFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing room YAML: %w", err)
	}

	room := convertYAMLRoom(file.Room)
	if err := room.Validate(); err != nil {
		return nil, fmt.Errorf("validating room: %w", err)
	}
	return room, nil
}

func convertYAMLRoom(yr yamlRoom) *Room {
	room := &Room{
		ID:          yr.ID,
		Name:        yr.Name,
		FullName:    yr.FullName,
		Description: strings.TrimSpace(yr.Description),
	}
	if room.FullName == "" {
		room.FullName = room.Name
	}
	for _, ye := range yr.Exits {
		dir := Direction(strings.ToLower(ye.Direction))
		if d, ok := ParseDirection(string(dir)); ok {
			dir = d
		}
		room.Exits = append(room.Exits, Exit{
			Direction: dir,
			Target:    ye.Target,
			Door:      strings.TrimSpace(ye.Door),
		})
	}
	for _, yi := range yr.Items {
		room.Items = append(room.Items, Item{
			Name:        strings.ToLower(strings.TrimSpace(yi.Name)),
			Description: strings.TrimSpace(yi.Description),
		})
	}
	return room
}

// DefaultRoom returns the room used when no room file is configured.
func DefaultRoom() *Room {
	return &Room{
		ID:          "recroom",
		Name:        "RecRoom",
		FullName:    "A Rec Room",
		Description: "A dimly lit shabby space. There are a few chairs scattered about, and an old jukebox in the corner.",
		Exits: []Exit{
			{Direction: North, Target: "firstroom", Door: "A plain wooden door with a brass handle."},
		},
		Items: []Item{
			{Name: "jukebox", Description: "An old jukebox. It seems to only play one song, badly."},
			{Name: "chair", Description: "A plastic chair, slightly wobbly."},
		},
	}
}
