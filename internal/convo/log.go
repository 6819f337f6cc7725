package convo

import (
	"strings"
	"sync"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in the conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Log is the shared conversation history for one call. The live dialogue
// driver appends user/assistant turns while the transcript poller reads
// snapshots; one-shot system directives are appended then popped so they
// never persist as history.
type Log struct {
	mu    sync.Mutex
	turns []Turn
}

// NewLog creates a log seeded with a system instruction turn.
func NewLog(systemInstructions string) *Log {
	return &Log{turns: []Turn{{Role: RoleSystem, Content: systemInstructions}}}
}

// Append adds a turn at the end of the log.
func (l *Log) Append(role Role, content string) {
	l.mu.Lock()
	l.turns = append(l.turns, Turn{Role: role, Content: content})
	l.mu.Unlock()
}

// ReplaceSystem swaps the leading system instruction wholesale. If the log
// somehow has no system turn, one is prepended.
func (l *Log) ReplaceSystem(instructions string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) > 0 && l.turns[0].Role == RoleSystem {
		l.turns[0].Content = instructions
		return
	}
	l.turns = append([]Turn{{Role: RoleSystem, Content: instructions}}, l.turns...)
}

// PopLast removes and returns the most recent turn. Used to retire one-shot
// directives after they have been consumed.
func (l *Log) PopLast() (Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	t := l.turns[len(l.turns)-1]
	l.turns = l.turns[:len(l.turns)-1]
	return t, true
}

// Snapshot returns a copy of the current turns. Each poll tick works off
// one snapshot so the tick sees a consistent view of the log.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	cp := make([]Turn, len(l.turns))
	copy(cp, l.turns)
	l.mu.Unlock()
	return Snapshot(cp)
}

// Len reports the number of turns currently in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Snapshot is a point-in-time copy of the log.
type Snapshot []Turn

// LatestUser returns the content of the most recent user turn, or "".
func (s Snapshot) LatestUser() string { return s.latest(RoleUser) }

// LatestAssistant returns the content of the most recent assistant turn, or "".
func (s Snapshot) LatestAssistant() string { return s.latest(RoleAssistant) }

func (s Snapshot) latest(role Role) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Role == role {
			return s[i].Content
		}
	}
	return ""
}

// JoinedUser concatenates all user turns in order, space separated.
func (s Snapshot) JoinedUser() string { return s.joined(RoleUser) }

// JoinedAssistant concatenates all assistant turns in order, space separated.
func (s Snapshot) JoinedAssistant() string { return s.joined(RoleAssistant) }

func (s Snapshot) joined(role Role) string {
	var b strings.Builder
	for _, t := range s {
		if t.Role != role {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
