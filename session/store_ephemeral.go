package session

// EphemeralStore keeps exchanges in memory only. It backs short-lived chat
// sessions and serves as the read cache inside SQLiteStore.
type EphemeralStore struct {
	m map[string][]Exchange
}

func NewEphemeralStore() EphemeralStore {
	return EphemeralStore{
		m: make(map[string][]Exchange),
	}
}

func (s EphemeralStore) Exchanges(sessionID string) []Exchange {
	ex, ok := s.m[sessionID]
	if !ok {
		return []Exchange{}
	}
	return ex
}

func (s *EphemeralStore) Extend(sessionID string, ex Exchange) error {
	s.m[sessionID] = append(s.m[sessionID], ex)
	return nil
}

// extendAll replaces nothing: it appends a batch, used when the SQLite
// store hydrates the cache for a session.
func (s *EphemeralStore) extendAll(sessionID string, exchanges []Exchange) {
	s.m[sessionID] = append(s.m[sessionID], exchanges...)
}
