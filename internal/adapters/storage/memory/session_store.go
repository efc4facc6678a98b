package memory

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// SessionStore is a bounded in-memory session registry. When full, the least
// recently used session is evicted and handed to the eviction callback.
type SessionStore struct {
	cache *lru.Cache[domain.SessionID, *domain.Session]
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(capacity int, onEvict func(*domain.Session)) (*SessionStore, error) {
	cache, err := lru.NewWithEvict[domain.SessionID, *domain.Session](capacity, func(_ domain.SessionID, s *domain.Session) {
		if onEvict != nil {
			onEvict(s)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

func (s *SessionStore) CreateSession(session *domain.Session) error {
	if ok, _ := s.cache.ContainsOrAdd(session.ID, clone(session)); ok {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) UpdateSession(session *domain.Session) error {
	if !s.cache.Contains(session.ID) {
		return domain.ErrSessionNotFound
	}
	s.cache.Add(session.ID, clone(session))
	return nil
}

// GetSession returns a copy of the stored session and marks it recently used.
func (s *SessionStore) GetSession(id domain.SessionID) (*domain.Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return clone(sess), nil
}

// DeleteSession removes a session. The eviction callback runs for it too.
func (s *SessionStore) DeleteSession(id domain.SessionID) error {
	if !s.cache.Remove(id) {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

// Purge drops every session, running the eviction callback for each.
func (s *SessionStore) Purge() {
	s.cache.Purge()
}
