package agg

import (
	"sync"

	"github.com/google/uuid"
	"github.com/victhorio/arkchat/agg/core"
)

// HistoryLimit is the maximum number of messages a Session holds after any append.
const HistoryLimit = 20

// Session owns the ordered message history of one conversation. It's safe for concurrent
// use, every method is serialized.
type Session struct {
	id   string
	mu   sync.Mutex
	msgs []core.Msg
}

func NewSession() *Session {
	return NewSessionWithID(uuid.NewString())
}

// NewSessionWithID is useful when the caller already keys conversations, e.g. for the usage
// ledger.
func NewSessionWithID(id string) *Session {
	return &Session{
		id:   id,
		msgs: make([]core.Msg, 0, HistoryLimit+1),
	}
}

func (s *Session) ID() string {
	return s.id
}

// SetSystemPrompt drops any existing system message and puts the new one at the front.
func (s *Session) SetSystemPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]core.Msg, 0, len(s.msgs)+1)
	msgs = append(msgs, core.NewMsgSystem(text))
	for _, m := range s.msgs {
		if !m.IsSystem() {
			msgs = append(msgs, m)
		}
	}
	s.msgs = msgs

	// a session with a full history and no system prompt would go one over the cap here
	s.trim()
}

func (s *Session) AppendUser(text string) {
	s.append(core.NewMsgUser(text))
}

func (s *Session) AppendAssistant(text string) {
	s.append(core.NewMsgAssistant(text))
}

func (s *Session) append(m core.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, m)
	s.trim()
}

// trim keeps every system message plus the most recent HistoryLimit-1 others once the
// history goes over the cap. Must be called with mu held.
func (s *Session) trim() {
	if len(s.msgs) <= HistoryLimit {
		return
	}

	system := make([]core.Msg, 0, 1)
	others := make([]core.Msg, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.IsSystem() {
			system = append(system, m)
		} else {
			others = append(others, m)
		}
	}

	if keep := HistoryLimit - 1; len(others) > keep {
		others = others[len(others)-keep:]
	}

	s.msgs = append(system, others...)
}

// ClearHistory keeps only the system prompt.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]core.Msg, 0, HistoryLimit+1)
	for _, m := range s.msgs {
		if m.IsSystem() {
			msgs = append(msgs, m)
		}
	}
	s.msgs = msgs
}

// Snapshot returns a copy of the current history. Changes to the session after the call are
// not reflected in it.
func (s *Session) Snapshot() []core.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Msg, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// History is Snapshot under the name display code expects.
func (s *Session) History() []core.Msg {
	return s.Snapshot()
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// appendUserAndSnapshot appends a user message and takes the snapshot for the request in a
// single critical section, so a concurrent append can't sneak into the request.
func (s *Session) appendUserAndSnapshot(text string) []core.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, core.NewMsgUser(text))
	s.trim()

	out := make([]core.Msg, len(s.msgs))
	copy(out, s.msgs)
	return out
}
