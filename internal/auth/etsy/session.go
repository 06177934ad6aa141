package etsy

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/ebooklister/ebooklister/internal/config"
	log "github.com/sirupsen/logrus"
)

// Session is one pending authorization attempt. It is consumed by the first callback
// that presents its State.
type Session struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// SessionStore tracks pending authorization attempts keyed by state. When more than capacity
// attempts are pending the oldest is evicted, so with capacity 1 starting a new login
// invalidates the previous one. All methods are safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	capacity int
	ttl      time.Duration
	etsy     config.EtsyConfig
	now      func() time.Time
}

// NewSessionStore builds a store using the OAuth limits and client settings from cfg.
func NewSessionStore(cfg *config.Config) *SessionStore {
	capacity := cfg.OAuth.MaxPendingSessions
	if capacity <= 0 {
		capacity = config.DefaultMaxPendingSessions
	}
	ttl := time.Duration(cfg.OAuth.SessionTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = config.DefaultSessionTTLSeconds * time.Second
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		capacity: capacity,
		ttl:      ttl,
		etsy:     cfg.Etsy,
		now:      time.Now,
	}
}

// Begin starts an authorization attempt and returns the provider URL to redirect the user to.
func (s *SessionStore) Begin() (string, *Session, error) {
	codes, err := GeneratePKCECodes()
	if err != nil {
		return "", nil, err
	}
	state, err := GenerateCorrelationToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	session := &Session{
		State:         state,
		CodeVerifier:  codes.CodeVerifier,
		CodeChallenge: codes.CodeChallenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	s.Put(session)
	return BuildAuthURL(s.etsy, state, codes.CodeChallenge), session, nil
}

// Put registers an externally created session, evicting expired and surplus entries.
func (s *SessionStore) Put(session *Session) {
	if session == nil || session.State == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(s.now())
	if _, exists := s.sessions[session.State]; !exists {
		s.order = append(s.order, session.State)
	}
	s.sessions[session.State] = session
	for len(s.order) > s.capacity {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.sessions, evicted)
		log.Debug("oauth: evicted superseded authorization session")
	}
}

// Complete validates a callback and consumes the matching session.
//
// Parameters:
//   - code: The authorization code from the callback
//   - state: The state value from the callback
//   - providerErr: The error parameter from the callback, if any
//
// Returns:
//   - string: The authorization code
//   - string: The code verifier of the matching session
//   - error: *OAuthError (matches ErrProviderError), ErrMissingCode or ErrStateMismatch
func (s *SessionStore) Complete(code, state, providerErr string) (string, string, error) {
	return s.CompleteWithDescription(code, state, providerErr, "")
}

// CompleteWithDescription is Complete with the provider's error_description attached to
// the returned *OAuthError.
func (s *SessionStore) CompleteWithDescription(code, state, providerErr, description string) (string, string, error) {
	if strings.TrimSpace(providerErr) != "" {
		return "", "", NewOAuthError(providerErr, description, 0)
	}
	if code == "" {
		return "", "", ErrMissingCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(s.now())
	var match *Session
	for _, candidate := range s.sessions {
		if subtle.ConstantTimeCompare([]byte(candidate.State), []byte(state)) == 1 {
			match = candidate
		}
	}
	if match == nil {
		return "", "", ErrStateMismatch
	}
	s.removeLocked(match.State)
	return code, match.CodeVerifier, nil
}

// Pending reports how many unexpired sessions are waiting for a callback.
func (s *SessionStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(s.now())
	return len(s.sessions)
}

func (s *SessionStore) purgeExpiredLocked(now time.Time) {
	for state, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && now.After(session.ExpiresAt) {
			s.removeLocked(state)
		}
	}
}

func (s *SessionStore) removeLocked(state string) {
	delete(s.sessions, state)
	for i, candidate := range s.order {
		if candidate == state {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
