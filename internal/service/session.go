package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionService persists wizard sessions and serializes access per session id.
type SessionService struct {
	repo   domain.SessionRepository
	locks  *keyedMutex
	logger *zerolog.Logger
}

func NewSessionService(repo domain.SessionRepository, logger *zerolog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// NewID returns a random session id.
func (s *SessionService) NewID() string {
	return uuid.NewString()
}

// Lock holds the per-session mutex until the returned func is called.
func (s *SessionService) Lock(id string) func() {
	return s.locks.Lock(id)
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.BookingSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("Failed to get booking session")
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionExpired)
	}
	return session, nil
}

func (s *SessionService) Save(ctx context.Context, session *models.BookingSession) error {
	if err := s.repo.SetSession(ctx, session); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to save booking session")
		return err
	}
	return nil
}

func (s *SessionService) Clear(ctx context.Context, id string) error {
	return s.repo.ClearSession(ctx, id)
}

// Allow applies the public visitor rate limit to key.
func (s *SessionService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.repo.CheckRateLimit(ctx, key, limit, window)
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex is a set of mutexes created on demand and dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
