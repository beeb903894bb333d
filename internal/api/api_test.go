package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agendei/internal/config"
	"agendei/internal/database"
	"agendei/internal/events"
	"agendei/internal/models"
	"agendei/internal/repository"
	"agendei/internal/service"
	"agendei/internal/store"
	"agendei/internal/wizard"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

const (
	ownerKey    = "owner-key"
	ownerExtra  = "owner-extra"
	readerKey   = "reader-key"
	readerExtra = "reader-extra"
	otherKey    = "other-key"
	otherExtra  = "other-extra"
)

type fakeMirror struct {
	got []*models.Appointment
	err error
}

func (m *fakeMirror) ReplaceAppointmentsSheet(_ context.Context, appointments []*models.Appointment) error {
	m.got = appointments
	return m.err
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	db       *database.DB
	cfg      *config.Config
	server   *HTTPServer
	ts       *httptest.Server
	business *models.Business
	other    *models.Business
	service  *models.Service
	client   *models.Client
	mirror   *fakeMirror
	pinger   *fakePinger
}

func newTestAPI(t *testing.T, tweak ...func(*config.Config)) *testAPI {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := &models.Business{
		Slug:         "studio-bela",
		BusinessName: "Studio Bela",
		Timezone:     "UTC",
		TimeSlots:    []string{"09:00", "10:00", "14:00", "16:00"},
	}
	require.NoError(t, db.CreateBusiness(ctx, b))
	other := &models.Business{Slug: "barbearia-centro", BusinessName: "Barbearia Centro", Timezone: "UTC", TimeSlots: []string{"08:00"}}
	require.NoError(t, db.CreateBusiness(ctx, other))

	svc := &models.Service{BusinessID: b.ID, Name: "Corte Feminino", Duration: "1h", Price: "R$ 120,00", IsActive: true, SortOrder: 1}
	require.NoError(t, db.CreateService(ctx, svc))
	client := &models.Client{BusinessID: b.ID, Name: "Ana Souza", Phone: "11 99999-0000", Email: "ana@example.com"}
	require.NoError(t, db.CreateClient(ctx, client))

	cfg := &config.Config{
		Booking: config.BookingConfig{RateLimitRequests: 1000, RateLimitWindow: time.Minute},
		API: config.APIConfig{
			Auth: config.APIAuthConfig{
				APIKeys: []config.APIClientKey{
					{Key: ownerKey, Extra: ownerExtra, Name: "owner", BusinessID: b.ID},
					{Key: readerKey, Extra: readerExtra, Name: "reader", BusinessID: b.ID, Permissions: []string{config.PermReadAgenda}},
					{Key: otherKey, Extra: otherExtra, Name: "other", BusinessID: other.ID},
				},
			},
			RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
		},
	}
	for _, fn := range tweak {
		fn(cfg)
	}

	bus := events.NewEventBus()
	st := store.New(db, bus, &logger)
	sessions := service.NewSessionService(repository.NewMemorySessionRepository(time.Hour), &logger)
	wz := wizard.New(wizard.Flow{Steps: 4, MaxBookingDays: 30}).WithClock(func() time.Time { return fixedNow })

	mirror := &fakeMirror{}
	pinger := &fakePinger{}
	srv := NewHTTPServer(cfg, Services{
		Booking:      service.NewBookingService(db, st, sessions, wz, nil, &logger),
		Businesses:   service.NewBusinessService(db, bus, &logger),
		Catalog:      service.NewCatalogService(db, bus, &logger),
		Appointments: service.NewAppointmentService(db, st, nil, &logger),
		Sessions:     sessions,
		Agenda:       st,
		Mirror:       mirror,
		Pinger:       pinger,
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testAPI{
		db:       db,
		cfg:      cfg,
		server:   srv,
		ts:       ts,
		business: b,
		other:    other,
		service:  svc,
		client:   client,
		mirror:   mirror,
		pinger:   pinger,
	}
}

// call sends body as JSON. key/extra may be empty for public routes.
func (a *testAPI) call(t *testing.T, method, path, key, extra string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(apiKeyHeaderDefault, key)
		req.Header.Set(apiExtraHeaderDefault, extra)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) owner(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return a.call(t, method, path, ownerKey, ownerExtra, body)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var errBoom = errors.New("boom")
