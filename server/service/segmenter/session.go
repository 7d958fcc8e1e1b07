package segmenter

import (
	"sync"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/store"
)

// SessionContext owns the mutable per-session pipeline state: the session
// id, the observation buffer and the private-mode flag. It is passed
// explicitly to the components that need it rather than living as global
// state, so multiple sessions can be driven side by side in tests.
type SessionContext struct {
	mu          sync.Mutex
	sessionID   string
	buffer      []*store.Observation
	privateMode bool
}

// NewSessionContext starts a fresh session.
func NewSessionContext() *SessionContext {
	return &SessionContext{sessionID: util.GenUID()}
}

// SessionID returns the current session id.
func (s *SessionContext) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Private reports whether private mode is active.
func (s *SessionContext) Private() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privateMode
}

// SetPrivateMode toggles private mode. Enabling it discards the in-flight
// buffer rather than flushing it into an episode; disabling it starts a
// fresh session id and never resumes the old buffer.
func (s *SessionContext) SetPrivateMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled == s.privateMode {
		return
	}
	s.privateMode = enabled
	s.buffer = nil
	if !enabled {
		s.sessionID = util.GenUID()
	}
}

// Append adds an observation to the buffer. Observations arriving while
// private mode is active are dropped.
func (s *SessionContext) Append(obs *store.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateMode {
		return
	}
	s.buffer = append(s.buffer, obs)
}

// Last returns the newest buffered observation, or nil when empty.
func (s *SessionContext) Last() *store.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return nil
	}
	return s.buffer[len(s.buffer)-1]
}

// Drain returns the buffered observations and clears the buffer in one
// step, so no observation can ever be attributed to two episodes.
func (s *SessionContext) Drain() []*store.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	buffer := s.buffer
	s.buffer = nil
	return buffer
}

// Len returns the buffered observation count.
func (s *SessionContext) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
