package repository

import (
	"context"
	"sync/atomic"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary until it errors, then from
// fallback, probing primary again once recoveryInterval has passed.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// IsDegraded reports whether calls are currently served by the fallback.
func (r *FailoverSessionRepository) IsDegraded() bool {
	return r.isDown.Load()
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func withFailover[T any](r *FailoverSessionRepository, primary, fallback func() (T, error)) (T, error) {
	if r.usePrimary() {
		v, err := primary()
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary session repository recovered")
			}
			return v, nil
		}
		r.markDown(err)
	}
	return fallback()
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.BookingSession, error) {
	return withFailover(r,
		func() (*models.BookingSession, error) { return r.primary.GetSession(ctx, id) },
		func() (*models.BookingSession, error) { return r.fallback.GetSession(ctx, id) },
	)
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, session *models.BookingSession) error {
	_, err := withFailover(r,
		func() (struct{}, error) { return struct{}{}, r.primary.SetSession(ctx, session) },
		func() (struct{}, error) { return struct{}{}, r.fallback.SetSession(ctx, session) },
	)
	return err
}

func (r *FailoverSessionRepository) ClearSession(ctx context.Context, id string) error {
	_, err := withFailover(r,
		func() (struct{}, error) { return struct{}{}, r.primary.ClearSession(ctx, id) },
		func() (struct{}, error) { return struct{}{}, r.fallback.ClearSession(ctx, id) },
	)
	return err
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return withFailover(r,
		func() (bool, error) { return r.primary.CheckRateLimit(ctx, key, limit, window) },
		func() (bool, error) { return r.fallback.CheckRateLimit(ctx, key, limit, window) },
	)
}
