package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNotCommand means the message does not start with the prefix.
	ErrNotCommand = errors.New("not a command")
	// ErrUnknownCommand means the prefix is followed by an unrecognised name.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage matches every *UsageError.
	ErrUsage = errors.New("usage")
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
)

const (
	Start = "start"
	Stop  = "stop"
	Stats = "stats"
	Graph = "graph"
	Duels = "duels"
)

// Usage is the help line of each command, without the prefix.
var Usage = map[string]string{
	Start: "start",
	Stop:  "stop",
	Stats: "stats [server|player <name>]",
	Graph: "graph <metric> [minutes=60]",
	Duels: "duels <username>",
}

// Command is a parsed chat command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a chat message into a command name and arguments.
// Names are case-insensitive.
func ParseCommand(content, prefix string) (Command, error) {
	s := strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(s, prefix) {
		return Command{}, ErrNotCommand
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	if s == "" {
		return Command{}, ErrNotCommand
	}

	fields := spaceRe.Split(s, -1)
	name := strings.ToLower(fields[0])
	if _, ok := Usage[name]; !ok {
		return Command{Name: name}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return Command{Name: name, Args: fields[1:]}, nil
}

// UsageError reports malformed arguments to Command. It matches ErrUsage.
type UsageError struct {
	Command string
}

func (e *UsageError) Error() string {
	return "usage: " + Usage[e.Command]
}

func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

func usageErr(name string) error {
	return &UsageError{Command: name}
}

// StatsQuery is the parsed form of the stats command.
type StatsQuery struct {
	Player string // empty for server stats
}

// ParseStats accepts no arguments, "server", or "player <name>".
func ParseStats(args []string) (StatsQuery, error) {
	if len(args) == 0 {
		return StatsQuery{}, nil
	}
	switch strings.ToLower(args[0]) {
	case "server":
		if len(args) != 1 {
			return StatsQuery{}, usageErr(Stats)
		}
		return StatsQuery{}, nil
	case "player":
		if len(args) != 2 || !usernameRe.MatchString(args[1]) {
			return StatsQuery{}, usageErr(Stats)
		}
		return StatsQuery{Player: args[1]}, nil
	}
	return StatsQuery{}, usageErr(Stats)
}

// GraphQuery is the parsed form of the graph command.
type GraphQuery struct {
	Metric  string
	Minutes int // zero means the default window
}

// ParseGraph accepts "<metric> [minutes]". The metric is not validated
// here; minutes must be a positive integer.
func ParseGraph(args []string) (GraphQuery, error) {
	if len(args) < 1 || len(args) > 2 {
		return GraphQuery{}, usageErr(Graph)
	}
	q := GraphQuery{Metric: strings.ToLower(args[0])}
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return GraphQuery{}, usageErr(Graph)
		}
		q.Minutes = n
	}
	return q, nil
}

// ParseDuels accepts exactly one username.
func ParseDuels(args []string) (string, error) {
	if len(args) != 1 || !usernameRe.MatchString(args[0]) {
		return "", usageErr(Duels)
	}
	return args[0], nil
}
