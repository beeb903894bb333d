package repository

import (
	"context"
	"testing"
	"time"

	"agendei/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionRepository(t *testing.T) {
	repo := NewMemorySessionRepository(time.Hour)
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	session := &models.BookingSession{ID: "abc", State: models.StateSelectingService}
	require.NoError(t, repo.SetSession(ctx, session))

	got, err := repo.GetSession(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateSelectingService, got.State)

	got.State = models.StateConfirmed
	again, _ := repo.GetSession(ctx, "abc")
	assert.Equal(t, models.StateSelectingService, again.State, "stored copy must not alias callers")

	now = now.Add(2 * time.Hour)
	got, err = repo.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SetSession(ctx, session))
	require.NoError(t, repo.ClearSession(ctx, "abc"))
	got, _ = repo.GetSession(ctx, "abc")
	assert.Nil(t, got)
}

func TestMemorySessionRepository_RateLimitAndSweep(t *testing.T) {
	repo := NewMemorySessionRepository(time.Minute)
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, _ := repo.CheckRateLimit(ctx, "ip", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Minute)
	assert.False(t, allowed)

	require.NoError(t, repo.SetSession(ctx, &models.BookingSession{ID: "a"}))
	require.NoError(t, repo.SetSession(ctx, &models.BookingSession{ID: "b"}))

	now = now.Add(2 * time.Minute)
	allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Minute)
	assert.True(t, allowed)

	assert.Equal(t, 2, repo.Sweep())
	assert.Empty(t, repo.sessions)
}
