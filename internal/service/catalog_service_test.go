package service

import (
	"context"
	"testing"
	"time"

	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(bus *events.EventBus, eventType string) chan events.Event {
	ch := make(chan events.Event, 8)
	bus.Subscribe(eventType, func(e *events.Event) error {
		ch <- *e
		return nil
	})
	return ch
}

func receive(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	return events.Event{}
}

func TestCatalogService_Services(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.db, f.bus, f.logger)
	ctx := context.Background()
	changes := collect(f.bus, events.EventServiceChanged)

	created, err := svc.CreateService(ctx, f.business.ID, ServiceInput{Name: " Manicure ", Duration: "40min", Price: "R$ 35,00"})
	require.NoError(t, err)
	assert.Equal(t, "Manicure", created.Name)
	assert.True(t, created.IsActive, "new services are active by default")

	var payload events.BusinessEventPayload
	e := receive(t, changes)
	require.NoError(t, e.Decode(&payload))
	assert.Equal(t, created.ID, payload.EntityID)

	inactive := false
	updated, err := svc.UpdateService(ctx, f.business.ID, created.ID, ServiceInput{Name: "Manicure", Duration: "45min", Price: "R$ 40,00", IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "45min", updated.Duration)
	assert.False(t, updated.IsActive)
	receive(t, changes)

	require.NoError(t, svc.DeactivateService(ctx, f.business.ID, f.active.ID))
	receive(t, changes)

	all, err := svc.ListServices(ctx, f.business.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, s := range all {
		assert.False(t, s.IsActive)
	}

	_, err = svc.CreateService(ctx, f.business.ID, ServiceInput{Name: "", Duration: "1h", Price: "R$ 1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.UpdateService(ctx, f.business.ID, 9999, ServiceInput{Name: "X", Duration: "1h", Price: "R$ 1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogService_Clients(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.db, f.bus, f.logger)
	ctx := context.Background()
	created := collect(f.bus, events.EventClientCreated)

	c, err := svc.CreateClient(ctx, f.business.ID, ClientInput{Name: "Beatriz", Phone: "11 97777-1111"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	receive(t, created)

	clients, err := svc.ListClients(ctx, f.business.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 2)

	_, err = svc.CreateClient(ctx, f.business.ID, ClientInput{Name: "Carla", Email: "not-an-email"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
}

func TestBusinessService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	svc := NewBusinessService(f.db, f.bus, f.logger)
	ctx := context.Background()
	updates := collect(f.bus, events.EventProfileUpdated)

	b, err := svc.UpdateProfile(ctx, f.business.ID, models.BusinessProfile{
		BusinessName: "  Studio Bela Centro ",
		Description:  "Cabelo e unhas",
		LogoURL:      "https://cdn.example.com/logo.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Studio Bela Centro", b.BusinessName)
	assert.Equal(t, "https://cdn.example.com/logo.png", b.LogoURL)
	assert.Equal(t, "studio-bela", b.Slug, "slug is not editable")
	receive(t, updates)

	bySlug, err := svc.GetBySlug(ctx, "studio-bela")
	require.NoError(t, err)
	assert.Equal(t, "Cabelo e unhas", bySlug.Description)

	tests := []struct {
		name    string
		profile models.BusinessProfile
		field   string
	}{
		{"short name", models.BusinessProfile{BusinessName: " A "}, "business_name"},
		{"relative logo", models.BusinessProfile{BusinessName: "Studio", LogoURL: "/logo.png"}, "logo_url"},
		{"ftp cover", models.BusinessProfile{BusinessName: "Studio", CoverImageURL: "ftp://host/cover.png"}, "cover_image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateProfile(ctx, f.business.ID, tt.profile)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	unchanged, err := svc.Get(ctx, f.business.ID)
	require.NoError(t, err)
	assert.Equal(t, "Studio Bela Centro", unchanged.BusinessName)
}
