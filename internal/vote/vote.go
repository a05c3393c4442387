// Package vote collects distinct acknowledgements on a single prompt message
// until a threshold is reached.
package vote

import (
	"sync"
)

// Result is the outcome of one vote.
type Result int

const (
	// Ignored means the vote did not count: stale prompt, duplicate voter,
	// or a bot.
	Ignored Result = iota
	// Counted means the vote was recorded but the threshold is not met.
	Counted
	// Reached means this vote met the threshold. The session is closed.
	Reached
)

func (r Result) String() string {
	switch r {
	case Counted:
		return "counted"
	case Reached:
		return "reached"
	default:
		return "ignored"
	}
}

// Session is the active prompt and who has voted on it.
type Session struct {
	MessageID string
	Voters    map[string]struct{}
}

// Gate holds at most one active session.
type Gate struct {
	Required int

	mu      sync.Mutex
	session *Session
}

// NewGate creates a gate that opens at required distinct voters.
func NewGate(required int) *Gate {
	if required < 1 {
		required = 1
	}
	return &Gate{Required: required}
}

// Open starts a session for messageID, replacing any earlier one.
func (g *Gate) Open(messageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = &Session{MessageID: messageID, Voters: make(map[string]struct{})}
}

// Active reports whether a session is open and, if so, its message id.
func (g *Gate) Active() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return "", false
	}
	return g.session.MessageID, true
}

// Vote records voterID on messageID and returns the vote count with the
// result.
func (g *Gate) Vote(messageID, voterID string, isBot bool) (Result, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if isBot || s == nil || s.MessageID != messageID {
		return Ignored, 0
	}
	if _, dup := s.Voters[voterID]; dup {
		return Ignored, len(s.Voters)
	}
	s.Voters[voterID] = struct{}{}
	n := len(s.Voters)
	if n >= g.Required {
		g.session = nil
		return Reached, n
	}
	return Counted, n
}

// Close drops the active session.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = nil
}
