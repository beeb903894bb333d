package service

import (
	"context"
	"testing"
	"time"

	"agendei/internal/database"
	"agendei/internal/events"
	"agendei/internal/models"
	"agendei/internal/repository"
	"agendei/internal/store"
	"agendei/internal/wizard"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, a *models.Appointment) error {
	args := m.Called(ctx, taskType, a)
	return args.Error(0)
}

type fixture struct {
	db       *database.DB
	bus      *events.EventBus
	store    *store.Store
	sessions *SessionService
	sync     *mockSyncWorker
	business *models.Business
	active   *models.Service
	inactive *models.Service
	client   *models.Client
	logger   *zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
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

	active := &models.Service{BusinessID: b.ID, Name: "Corte Feminino", Duration: "1h", Price: "R$ 120,00", IsActive: true, SortOrder: 1}
	inactive := &models.Service{BusinessID: b.ID, Name: "Escova", Duration: "45min", Price: "R$ 60,00", IsActive: false, SortOrder: 2}
	require.NoError(t, db.CreateService(ctx, active))
	require.NoError(t, db.CreateService(ctx, inactive))

	client := &models.Client{BusinessID: b.ID, Name: "Ana Souza", Phone: "11 99999-0000", Email: "ana@example.com"}
	require.NoError(t, db.CreateClient(ctx, client))

	bus := events.NewEventBus()
	return &fixture{
		db:       db,
		bus:      bus,
		store:    store.New(db, bus, &logger),
		sessions: NewSessionService(repository.NewMemorySessionRepository(time.Hour), &logger),
		sync:     &mockSyncWorker{},
		business: b,
		active:   active,
		inactive: inactive,
		client:   client,
		logger:   &logger,
	}
}

func (f *fixture) bookingService(flow wizard.Flow) *BookingService {
	wz := wizard.New(flow).WithClock(func() time.Time { return fixedNow })
	return NewBookingService(f.db, f.store, f.sessions, wz, f.sync, f.logger)
}
