package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

type stubCreator struct {
	calls int
	got   *models.Appointment
	id    int64
	err   error
}

func (c *stubCreator) Create(_ context.Context, _ int64, a *models.Appointment) (int64, error) {
	c.calls++
	c.got = a
	return c.id, c.err
}

func testBusiness() *models.Business {
	return &models.Business{
		ID:           1,
		Slug:         "studio-bela",
		BusinessName: "Studio Bela",
		Timezone:     "UTC",
		TimeSlots:    []string{"09:00", "10:00", "14:00", "16:00"},
	}
}

func testServices() []*models.Service {
	return []*models.Service{
		{ID: 10, BusinessID: 1, Name: "Corte Feminino", Duration: "1h", Price: "R$ 120,00", IsActive: true},
		{ID: 11, BusinessID: 1, Name: "Escova", Duration: "45min", Price: "R$ 60,00", IsActive: false},
		{ID: 12, BusinessID: 2, Name: "Barba", Duration: "30min", Price: "R$ 40,00", IsActive: true},
	}
}

func newTestWizard(flow Flow) *Wizard {
	return New(flow).WithClock(func() time.Time { return fixedNow })
}

func atDetails(t *testing.T, w *Wizard) *models.BookingSession {
	t.Helper()
	b := testBusiness()
	s := w.Start("sess-1", b)
	s, err := w.ChooseService(s, testServices(), 10)
	require.NoError(t, err)
	s, err = w.ChooseTime(s, b, "14:00")
	require.NoError(t, err)
	if s.State != models.StateEnteringDetails {
		s, err = w.Advance(s)
		require.NoError(t, err)
	}
	return s
}

func TestStart(t *testing.T) {
	w := newTestWizard(Flow{})
	s := w.Start("abc", testBusiness())

	assert.Equal(t, models.StateSelectingService, s.State)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Empty(t, s.Time)
	assert.Nil(t, s.Service)
	assert.Equal(t, 1, w.StepNumber(s.State))
}

func TestStepNumber(t *testing.T) {
	four := New(Flow{Steps: 4})
	three := New(Flow{Steps: 3})

	assert.Equal(t, 2, four.StepNumber(models.StateSelectingDateTime))
	assert.Equal(t, 3, four.StepNumber(models.StateEnteringDetails))
	assert.Equal(t, 4, four.StepNumber(models.StateConfirmed))
	assert.Equal(t, 3, three.StepNumber(models.StateEnteringDetails))
	assert.Equal(t, 3, three.StepNumber(models.StateConfirmed))
	assert.Equal(t, 0, three.StepNumber("bogus"))
	assert.Equal(t, 4, New(Flow{Steps: 7}).Flow().Steps)
}

func TestChooseService_InactiveNeverSelectable(t *testing.T) {
	w := newTestWizard(Flow{})
	s := w.Start("abc", testBusiness())
	before := s.Clone()

	for _, svc := range testServices() {
		selectable := svc.IsActive && svc.BusinessID == s.BusinessID
		next, err := w.ChooseService(s, testServices(), svc.ID)
		if selectable {
			require.NoError(t, err)
			assert.Equal(t, svc.Name, next.Service.Name)
			continue
		}
		assert.ErrorIs(t, err, domain.ErrValidation, svc.Name)
		assert.Same(t, s, next)
	}

	assert.Equal(t, before, s)
	for _, svc := range Selectable(testServices(), 1) {
		assert.True(t, svc.IsActive)
	}
	assert.Len(t, Selectable(testServices(), 1), 1)
}

func TestChooseService_WrongState(t *testing.T) {
	w := newTestWizard(Flow{})
	s := atDetails(t, w)
	before := s.Clone()

	_, err := w.ChooseService(s, testServices(), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, before, s)
}

func TestChooseDate(t *testing.T) {
	w := newTestWizard(Flow{})
	b := testBusiness()
	s, err := w.ChooseService(w.Start("abc", b), testServices(), 10)
	require.NoError(t, err)

	tests := []struct {
		name    string
		date    time.Time
		wantErr error
	}{
		{"today", fixedNow, nil},
		{"tomorrow", fixedNow.AddDate(0, 0, 1), nil},
		{"last allowed day", fixedNow.AddDate(0, 0, 364), nil},
		{"two days ago", fixedNow.AddDate(0, 0, -2), domain.ErrPastDate},
		{"last month", fixedNow.AddDate(0, -1, 0), domain.ErrPastDate},
		{"too far", fixedNow.AddDate(0, 0, 400), domain.ErrDateTooFar},
		{"zero", time.Time{}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Clone()
			next, err := w.ChooseDate(s, b, tt.date)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrValidation)
				assert.Equal(t, before, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StartOfDay(tt.date, time.UTC), next.Date)
		})
	}
}

func TestChooseDate_KeepsOfferedTime(t *testing.T) {
	w := newTestWizard(Flow{})
	b := testBusiness()
	s, err := w.ChooseService(w.Start("abc", b), testServices(), 10)
	require.NoError(t, err)
	s, err = w.ChooseTime(s, b, "14:00")
	require.NoError(t, err)

	s, err = w.ChooseDate(s, b, fixedNow.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, "14:00", s.Time)

	b.TimeSlots = []string{"09:00"}
	s, err = w.ChooseDate(s, b, fixedNow.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Empty(t, s.Time)
}

func TestChooseTime(t *testing.T) {
	w := newTestWizard(Flow{})
	b := testBusiness()
	s, err := w.ChooseService(w.Start("abc", b), testServices(), 10)
	require.NoError(t, err)

	_, err = w.ChooseTime(s, b, "13:00")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, w.CanAdvance(s))

	next, err := w.ChooseTime(s, b, "16:00")
	require.NoError(t, err)
	assert.Equal(t, models.StateSelectingDateTime, next.State)
	assert.True(t, w.CanAdvance(next))

	auto := newTestWizard(Flow{AutoAdvance: true})
	next, err = auto.ChooseTime(s, b, "16:00")
	require.NoError(t, err)
	assert.Equal(t, models.StateEnteringDetails, next.State)
}

func TestAdvance_RequiresTime(t *testing.T) {
	w := newTestWizard(Flow{})
	s, err := w.ChooseService(w.Start("abc", testBusiness()), testServices(), 10)
	require.NoError(t, err)

	before := s.Clone()
	_, err = w.Advance(s)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "time", ve.Field)
	assert.Equal(t, before, s)
}

func TestGoBack(t *testing.T) {
	w := newTestWizard(Flow{})
	b := testBusiness()

	_, err := w.GoBack(w.Start("abc", b))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	s := atDetails(t, w)
	back, err := w.GoBack(s)
	require.NoError(t, err)
	assert.Equal(t, models.StateSelectingDateTime, back.State)
	assert.Equal(t, "14:00", back.Time)

	back, err = w.GoBack(back)
	require.NoError(t, err)
	assert.Equal(t, models.StateSelectingService, back.State)
	require.NotNil(t, back.Service)
	assert.Equal(t, int64(10), back.Service.ID)
}

func TestGoBack_ReselectIsIdempotent(t *testing.T) {
	w := newTestWizard(Flow{})
	b := testBusiness()
	direct := atDetails(t, w)

	s := direct
	var err error
	s, err = w.GoBack(s)
	require.NoError(t, err)
	s, err = w.GoBack(s)
	require.NoError(t, err)
	s, err = w.ChooseService(s, testServices(), 10)
	require.NoError(t, err)
	s, err = w.ChooseDate(s, b, direct.Date)
	require.NoError(t, err)
	s, err = w.ChooseTime(s, b, "14:00")
	require.NoError(t, err)
	s, err = w.Advance(s)
	require.NoError(t, err)

	assert.Equal(t, direct, s)
}

func TestSubmit_Scenario(t *testing.T) {
	for _, flow := range []Flow{{Steps: 4}, {Steps: 3}, {Steps: 4, AutoAdvance: true}} {
		w := newTestWizard(flow)
		s := atDetails(t, w)
		creator := &stubCreator{id: 77}

		done, err := w.Submit(context.Background(), s, Details{Name: " Ana Silva ", Phone: "(11) 99999-9999"}, creator)
		require.NoError(t, err)
		assert.Equal(t, models.StateConfirmed, done.State)
		assert.Equal(t, 1, creator.calls)

		a := creator.got
		assert.Nil(t, a.ClientID)
		assert.Equal(t, "Ana Silva", a.ClientName)
		assert.Equal(t, "Corte Feminino", a.ServiceName)
		assert.Equal(t, "R$ 120,00", a.ServicePrice)
		assert.Equal(t, models.StatusConfirmed, a.Status)
		assert.Equal(t, models.SourceBooking, a.Source)

		summary, err := w.Summary(done)
		require.NoError(t, err)
		assert.Equal(t, &models.Summary{
			AppointmentID:   77,
			ServiceName:     "Corte Feminino",
			ServiceDuration: "1h",
			Price:           "R$ 120,00",
			Date:            "2026-10-19",
			Time:            "14:00",
			CustomerName:    "Ana Silva",
			CustomerPhone:   "(11) 99999-9999",
			Status:          models.StatusConfirmed,
		}, summary)

		_, err = w.GoBack(done)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
}

func TestSubmit_Validation(t *testing.T) {
	w := newTestWizard(Flow{})
	s := atDetails(t, w)
	before := s.Clone()

	tests := []struct {
		name    string
		details Details
		field   string
	}{
		{"missing name", Details{Name: "   ", Phone: "123"}, "name"},
		{"missing phone", Details{Name: "Ana"}, "phone"},
		{"bad email", Details{Name: "Ana", Phone: "123", Email: "ana@"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &stubCreator{}
			_, err := w.Submit(context.Background(), s, tt.details, creator)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, creator.calls)
			assert.Equal(t, before, s)
		})
	}
}

func TestSubmit_WriteFailure(t *testing.T) {
	w := newTestWizard(Flow{})
	s := atDetails(t, w)
	before := s.Clone()
	creator := &stubCreator{err: errors.New("permission denied")}

	next, err := w.Submit(context.Background(), s, Details{Name: "Ana", Phone: "123"}, creator)
	assert.ErrorIs(t, err, domain.ErrWrite)
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, before, next)
	assert.Equal(t, models.StateEnteringDetails, s.State)

	_, err = w.Summary(s)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
