package repository

import (
	"context"
	"sync"
	"time"

	"agendei/internal/models"
)

type sessionEntry struct {
	session   *models.BookingSession
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemorySessionRepository keeps sessions in process. Used as the Redis
// fallback and in tests.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]sessionEntry
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]sessionEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, id string) (*models.BookingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.sessions, id)
		return nil, nil
	}
	return entry.session.Clone(), nil
}

func (r *MemorySessionRepository) SetSession(_ context.Context, session *models.BookingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = sessionEntry{session: session.Clone(), expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemorySessionRepository) ClearSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

// Sweep drops expired sessions and rate-limit windows.
func (r *MemorySessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, entry := range r.sessions {
		if r.ttl > 0 && now.After(entry.expiresAt) {
			delete(r.sessions, id)
			removed++
		}
	}
	for key, entry := range r.rateLimits {
		if now.After(entry.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
	return removed
}
