package session

import (
	"os"

	"capgen/internal/workspace"
)

// Save writes all open sessions to path as a JSON array. Closed sessions
// are not persisted. Each session is copied under its entry lock so a
// request mutating it concurrently never shows Save a half-written state.
func (st *Store) Save(path string) error {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	sessions := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.closed.Load() {
			sessions = append(sessions, e.session.clone())
		}
		e.mu.Unlock()
	}
	return workspace.WriteJSON(path, sessions)
}

// Restore loads sessions saved by Save. A missing file is not an error;
// existing in-memory sessions with the same ID are replaced.
func (st *Store) Restore(path string) error {
	var sessions []*Session
	if err := workspace.ReadJSON(path, &sessions); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range sessions {
		if s.ID == "" {
			continue
		}
		st.sessions[s.ID] = &entry{session: s}
	}
	return nil
}
