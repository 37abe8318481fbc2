package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Responder receives everything the engine says to players.
type Responder interface {
	// PlayerEvent sends text to a single player.
	PlayerEvent(userID, text string) error
	// RoomEvent sends text to everyone in the room. When self is non-empty,
	// that player sees selfText instead; an empty selfText shows them nothing.
	RoomEvent(text, self, selfText string) error
	// Location describes the room to a single player.
	Location(userID string, loc Location) error
	// Exit tells a player they are leaving through exitID.
	Exit(userID, exitID, text string) error
}

type verbFunc func(p Player, args ParseResult) error

// Engine is the in-memory room: a roster of players and the verbs they use.
// All methods are safe for concurrent use.
type Engine struct {
	room     *Room
	roster   *Roster
	commands *Registry
	verbs    map[string]verbFunc
	out      Responder
	logger   *zap.Logger
}

// New creates an Engine serving room and replying through out.
//
// Precondition: room, out and logger must be non-nil.
// Postcondition: Returns an Engine or an error if room is invalid.
func New(room *Room, out Responder, logger *zap.Logger) (*Engine, error) {
	if room == nil {
		return nil, fmt.Errorf("room must not be nil")
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}
	cmds, err := NewRegistry(BuiltinCommands())
	if err != nil {
		return nil, fmt.Errorf("building command registry: %w", err)
	}

	e := &Engine{
		room:     room,
		roster:   NewRoster(),
		commands: cmds,
		out:      out,
		logger:   logger.With(zap.String("room", room.ID)),
	}
	e.verbs = map[string]verbFunc{
		HandlerLook:    e.look,
		HandlerGo:      e.goThrough,
		HandlerExits:   e.exits,
		HandlerWho:     e.who,
		HandlerHelp:    e.help,
		HandlerExamine: e.examine,
	}
	return e, nil
}

// Room returns the room definition.
func (e *Engine) Room() *Room {
	return e.room
}

// Roster returns the players present.
func (e *Engine) Roster() *Roster {
	return e.roster
}

// AddUserToRoom adds a player and announces the arrival. Re-joining refreshes
// the username without a second announcement.
func (e *Engine) AddUserToRoom(userID, username string) error {
	p, added := e.roster.Add(userID, username)
	if !added {
		e.logger.Debug("player rejoined", zap.String("user_id", userID))
		return nil
	}
	e.logger.Info("player joined",
		zap.String("user_id", userID),
		zap.String("username", p.Username),
		zap.Int("players", e.roster.Count()),
	)
	if err := e.out.RoomEvent(fmt.Sprintf("%s enters the room.", p.Username), userID, ""); err != nil {
		return fmt.Errorf("announcing arrival: %w", err)
	}
	return nil
}

// RemoveUserFromRoom removes a player and announces the departure. Unknown
// players are ignored.
func (e *Engine) RemoveUserFromRoom(userID string) error {
	p, removed := e.roster.Remove(userID)
	if !removed {
		return nil
	}
	e.logger.Info("player left",
		zap.String("user_id", userID),
		zap.Int("players", e.roster.Count()),
	)
	if err := e.out.RoomEvent(fmt.Sprintf("%s leaves the room.", p.Username), userID, ""); err != nil {
		return fmt.Errorf("announcing departure: %w", err)
	}
	return nil
}

// Command runs a verb typed by a player. Players not on the roster still get
// a reply, since they may have joined over another connection.
func (e *Engine) Command(userID, text string) error {
	p, ok := e.roster.Get(userID)
	if !ok {
		p = Player{UserID: userID, Username: userID}
	}

	pr := Parse(text)
	if pr.Command == "" {
		return e.out.PlayerEvent(userID, "Try /help to see what you can do here.")
	}

	var verb verbFunc
	if cmd, found := e.commands.Resolve(pr.Command); found {
		verb = e.verbs[cmd.Handler]
	} else if _, isDir := ParseDirection(pr.Command); isDir {
		// A bare direction is shorthand for go <direction>.
		pr = ParseResult{Command: "go", Args: []string{pr.Command}, RawArgs: pr.Command}
		verb = e.goThrough
	}
	if verb == nil {
		e.logger.Debug("unknown verb", zap.String("user_id", userID), zap.String("verb", pr.Command))
		return e.out.PlayerEvent(userID,
			fmt.Sprintf("This room is a basic model and doesn't understand `%s`.", strings.TrimSpace(text)))
	}

	if err := verb(p, pr); err != nil {
		return fmt.Errorf("%s: %w", pr.Command, err)
	}
	return nil
}

// Location returns the player's view of the room.
func (e *Engine) Location() Location {
	exits := make(map[string]string, len(e.room.Exits))
	for _, ex := range e.room.Exits {
		exits[string(ex.Direction)] = ex.Door
	}
	return Location{
		Name:        e.room.Name,
		FullName:    e.room.FullName,
		Description: e.room.Description,
		Exits:       exits,
	}
}

func (e *Engine) look(p Player, _ ParseResult) error {
	if err := e.out.Location(p.UserID, e.Location()); err != nil {
		return err
	}
	if others := e.roster.Others(p.UserID); len(others) > 0 {
		return e.out.PlayerEvent(p.UserID, "Also here: "+strings.Join(others, ", ")+".")
	}
	return nil
}

func (e *Engine) goThrough(p Player, args ParseResult) error {
	if len(args.Args) == 0 {
		return e.out.PlayerEvent(p.UserID, "Go where?")
	}
	dir, ok := ParseDirection(strings.ToLower(args.Args[0]))
	if !ok {
		return e.out.PlayerEvent(p.UserID, fmt.Sprintf("`%s` is not a direction.", args.Args[0]))
	}
	exit, ok := e.room.ExitForDirection(dir)
	if !ok {
		return e.out.PlayerEvent(p.UserID, fmt.Sprintf("There is no door to the %s.", dir))
	}
	text := fmt.Sprintf("You head %s.", dir)
	if exit.Door != "" {
		text = fmt.Sprintf("You head %s through %s", dir, lowerFirst(exit.Door))
	}
	e.logger.Debug("player exiting", zap.String("user_id", p.UserID), zap.String("exit", string(dir)))
	return e.out.Exit(p.UserID, string(dir), text)
}

func (e *Engine) exits(p Player, _ ParseResult) error {
	dirs := e.room.ExitDirections()
	if len(dirs) == 0 {
		return e.out.PlayerEvent(p.UserID, "There are no doors out of here.")
	}
	return e.out.PlayerEvent(p.UserID, "Doors lead "+strings.Join(dirs, ", ")+".")
}

func (e *Engine) who(p Player, _ ParseResult) error {
	others := e.roster.Others(p.UserID)
	if len(others) == 0 {
		return e.out.PlayerEvent(p.UserID, "You are alone here.")
	}
	return e.out.PlayerEvent(p.UserID, "Also here: "+strings.Join(others, ", ")+".")
}

func (e *Engine) help(p Player, _ ParseResult) error {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, cmd := range e.commands.Commands() {
		fmt.Fprintf(&b, "\n  /%-16s %s", cmd.Usage, cmd.Help)
	}
	return e.out.PlayerEvent(p.UserID, b.String())
}

func (e *Engine) examine(p Player, args ParseResult) error {
	if args.RawArgs == "" {
		return e.out.PlayerEvent(p.UserID, e.room.Description)
	}
	target := strings.ToLower(args.RawArgs)
	if it, ok := e.room.Item(target); ok {
		return e.out.PlayerEvent(p.UserID, it.Description)
	}
	if dir, ok := ParseDirection(target); ok {
		if exit, found := e.room.ExitForDirection(dir); found && exit.Door != "" {
			return e.out.PlayerEvent(p.UserID, exit.Door)
		}
	}
	return e.out.PlayerEvent(p.UserID, fmt.Sprintf("You don't see %s here.", args.RawArgs))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
