// Package session tracks per-conversation exchange history so follow-up
// questions can see what was already asked and answered.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxHistory is how many recent exchanges are replayed to the model.
const DefaultMaxHistory = 2

// Exchange is one user query and the assistant answer it produced.
type Exchange struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Store persists exchanges per session.
type Store interface {
	Exchanges(sessionID string) []Exchange
	Extend(sessionID string, ex Exchange) error
}

// Manager issues session IDs and formats bounded conversation history.
type Manager struct {
	store      Store
	maxHistory int
}

// NewManager creates a Manager over a store. maxHistory <= 0 selects
// DefaultMaxHistory.
func NewManager(store Store, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{store: store, maxHistory: maxHistory}
}

// NewSessionID returns a fresh unique session identifier.
func (m *Manager) NewSessionID() string {
	return uuid.NewString()
}

// AddExchange records one completed query/answer pair for a session.
func (m *Manager) AddExchange(sessionID, query, answer string) error {
	return m.store.Extend(sessionID, Exchange{Query: query, Answer: answer})
}

// History flattens the most recent exchanges of a session into the text
// block the system prompt carries. Returns "" for an unknown or empty
// session.
func (m *Manager) History(sessionID string) string {
	exchanges := m.store.Exchanges(sessionID)
	if len(exchanges) > m.maxHistory {
		exchanges = exchanges[len(exchanges)-m.maxHistory:]
	}

	lines := make([]string, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		lines = append(lines, fmt.Sprintf("User: %s", ex.Query))
		lines = append(lines, fmt.Sprintf("Assistant: %s", ex.Answer))
	}

	return strings.Join(lines, "\n")
}
