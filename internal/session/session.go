// Package session holds the per-console-session token, profile and identity
// credentials, and mirrors every change to a durable Persister.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"paydesk/internal/models"
)

// Persister stores snapshots by key. Load returns models.ErrNoRecord when
// nothing is stored under key.
type Persister interface {
	Load(ctx context.Context, key string) (models.SessionSnapshot, error)
	Save(ctx context.Context, key string, snap models.SessionSnapshot) error
	Delete(ctx context.Context, key string) error
}

// Session is the explicit session object handed to the request pipeline and
// the auth service. Persistence is best effort: failures are logged and the
// in-memory state stays authoritative.
type Session struct {
	key    string
	store  Persister
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	snap models.SessionSnapshot
}

func New(key string, store Persister, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{
		key:    key,
		store:  store,
		logger: logger.With("session", key),
		now:    time.Now,
	}
}

func (s *Session) Key() string { return s.key }

// Restore loads the last persisted snapshot. A missing snapshot is not an error.
func (s *Session) Restore(ctx context.Context) error {
	snap, err := s.store.Load(ctx, s.key)
	if errors.Is(err, models.ErrNoRecord) {
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Token
}

func (s *Session) SetToken(ctx context.Context, token string) {
	s.update(ctx, func(snap *models.SessionSnapshot) { snap.Token = token })
}

// Profile returns the cached profile, if any.
func (s *Session) Profile() (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Profile == nil {
		return models.UserProfile{}, false
	}
	return *s.snap.Profile, true
}

func (s *Session) SetProfile(ctx context.Context, p models.UserProfile) {
	s.update(ctx, func(snap *models.SessionSnapshot) { snap.Profile = &p })
}

func (s *Session) Credentials() (models.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Credentials == nil || s.snap.Credentials.IsZero() {
		return models.Credentials{}, false
	}
	return *s.snap.Credentials, true
}

func (s *Session) SetCredentials(ctx context.Context, c models.Credentials) {
	s.update(ctx, func(snap *models.SessionSnapshot) { snap.Credentials = &c })
}

func (s *Session) ClearCredentials(ctx context.Context) {
	s.update(ctx, func(snap *models.SessionSnapshot) { snap.Credentials = nil })
}

// Clear drops token, profile and credentials and deletes the persisted snapshot.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	s.snap = models.SessionSnapshot{}
	s.mu.Unlock()
	if err := s.store.Delete(ctx, s.key); err != nil {
		s.logger.Warn("session delete failed", "err", err)
	}
}

func (s *Session) update(ctx context.Context, fn func(*models.SessionSnapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.snap.SavedAt = s.now()
	snap := s.snap
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.key, snap); err != nil {
		s.logger.Warn("session save failed", "err", err)
	}
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]models.SessionSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]models.SessionSnapshot)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (models.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.items[key]
	if !ok {
		return models.SessionSnapshot{}, models.ErrNoRecord
	}
	return snap, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, snap models.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = snap
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
