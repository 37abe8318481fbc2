package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Handler identifiers mapping commands to engine verbs.
const (
	HandlerLook    = "look"
	HandlerGo      = "go"
	HandlerExits   = "exits"
	HandlerWho     = "who"
	HandlerHelp    = "help"
	HandlerExamine = "examine"
)

// Command defines a player-invocable verb.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage is shown by help, e.g. "go <direction>".
	Usage string
	// Help is the short help text displayed to players.
	Help string
	// Handler names the engine verb that runs this command.
	Handler string
}

// BuiltinCommands returns the verbs understood by the room.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "look", Aliases: []string{"l"}, Usage: "look", Help: "Look around the room", Handler: HandlerLook},
		{Name: "go", Aliases: []string{"exit"}, Usage: "go <direction>", Help: "Leave the room through a door", Handler: HandlerGo},
		{Name: "exits", Usage: "exits", Help: "List the doors out of the room", Handler: HandlerExits},
		{Name: "who", Usage: "who", Help: "List who is in the room", Handler: HandlerWho},
		{Name: "examine", Aliases: []string{"x", "ex"}, Usage: "examine <thing>", Help: "Take a closer look at something", Handler: HandlerExamine},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "List available commands", Handler: HandlerHelp},
	}
}

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command.
	RawArgs string
}

// Parse splits a text line into a command and arguments.
//
// Postcondition: Returns a ParseResult. If line is blank, Command is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	spaceIdx := strings.IndexAny(line, " \t")
	if spaceIdx < 0 {
		return ParseResult{Command: strings.ToLower(line)}
	}

	rest := strings.TrimSpace(line[spaceIdx+1:])
	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{
		Command: strings.ToLower(line[:spaceIdx]),
		Args:    args,
		RawArgs: rest,
	}
}

// Registry maps command names and aliases to Command definitions.
type Registry struct {
	commands map[string]*Command // canonical name → command
	aliases  map[string]string   // alias → canonical name
}

// NewRegistry creates a Registry populated with the given commands.
//
// Precondition: No two commands may share a canonical name or alias.
// Postcondition: Returns a Registry or an error on name/alias collisions.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{
		commands: make(map[string]*Command, len(cmds)),
		aliases:  make(map[string]string),
	}

	for i := range cmds {
		cmd := &cmds[i]
		if _, exists := r.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		if _, exists := r.aliases[cmd.Name]; exists {
			return nil, fmt.Errorf("command name %q conflicts with an existing alias", cmd.Name)
		}
		r.commands[cmd.Name] = cmd

		for _, alias := range cmd.Aliases {
			if _, exists := r.commands[alias]; exists {
				return nil, fmt.Errorf("alias %q conflicts with command name %q", alias, alias)
			}
			if existing, exists := r.aliases[alias]; exists {
				return nil, fmt.Errorf("duplicate alias %q: used by %q and %q", alias, existing, cmd.Name)
			}
			r.aliases[alias] = cmd.Name
		}
	}
	return r, nil
}

// Resolve looks up a command by name or alias.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(input string) (*Command, bool) {
	if cmd, ok := r.commands[input]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[input]; ok {
		return r.commands[canonical], true
	}
	return nil, false
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
