package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agendei/internal/domain"
	"agendei/internal/metrics"
	"agendei/internal/models"
	"agendei/internal/wizard"

	"github.com/rs/zerolog"
)

// BusinessReader is the part of the repository the public flow needs.
type BusinessReader interface {
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error)
}

// SessionView is what the public API returns after every transition.
type SessionView struct {
	Session    *models.BookingSession `json:"session"`
	Step       int                    `json:"step"`
	TotalSteps int                    `json:"total_steps"`
	CanAdvance bool                   `json:"can_advance"`
}

// Landing is the public page of a business.
type Landing struct {
	Business *models.Business  `json:"business"`
	Services []*models.Service `json:"services"`
	Slots    []string          `json:"slots"`
}

// BookingService drives the public booking wizard: every call loads the
// session, applies one transition and saves the result.
type BookingService struct {
	businesses   BusinessReader
	store        domain.AppointmentStore
	sessions     *SessionService
	wizard       *wizard.Wizard
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewBookingService(businesses BusinessReader, store domain.AppointmentStore, sessions *SessionService, wz *wizard.Wizard, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		businesses:   businesses,
		store:        store,
		sessions:     sessions,
		wizard:       wz,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

func (s *BookingService) Landing(ctx context.Context, slug string) (*Landing, error) {
	business, err := s.businesses.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	services, err := s.activeServices(ctx, business.ID)
	if err != nil {
		return nil, err
	}
	return &Landing{Business: business, Services: services, Slots: business.SlotsFor(time.Now())}, nil
}

// ListServices returns only the services a visitor may select.
func (s *BookingService) ListServices(ctx context.Context, slug string) ([]*models.Service, error) {
	business, err := s.businesses.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.activeServices(ctx, business.ID)
}

func (s *BookingService) activeServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	services, err := s.store.ListServices(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return wizard.Selectable(services, businessID), nil
}

// ListSlots returns the slots offered on date, rejecting days outside the booking window.
func (s *BookingService) ListSlots(ctx context.Context, slug string, date time.Time) ([]string, error) {
	business, err := s.businesses.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	day := models.StartOfDay(date, business.Location())
	if err := s.wizard.ValidateDate(day); err != nil {
		return nil, err
	}
	return business.SlotsFor(day), nil
}

func (s *BookingService) Start(ctx context.Context, slug string) (*SessionView, error) {
	business, err := s.businesses.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	session := s.wizard.Start(s.sessions.NewID(), business)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().Str("session_id", session.ID).Int64("business_id", business.ID).Msg("Booking session started")
	return s.view(session), nil
}

func (s *BookingService) Get(ctx context.Context, slug, id string) (*SessionView, error) {
	_, session, err := s.load(ctx, slug, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

func (s *BookingService) ChooseService(ctx context.Context, slug, id string, serviceID int64) (*SessionView, error) {
	return s.apply(ctx, slug, id, "choose_service", func(b *models.Business, sess *models.BookingSession) (*models.BookingSession, error) {
		services, err := s.store.ListServices(ctx, b.ID)
		if err != nil {
			return sess, fmt.Errorf("list services: %w", err)
		}
		return s.wizard.ChooseService(sess, services, serviceID)
	})
}

func (s *BookingService) ChooseDate(ctx context.Context, slug, id string, date time.Time) (*SessionView, error) {
	return s.apply(ctx, slug, id, "choose_date", func(b *models.Business, sess *models.BookingSession) (*models.BookingSession, error) {
		return s.wizard.ChooseDate(sess, b, date)
	})
}

func (s *BookingService) ChooseTime(ctx context.Context, slug, id, slot string) (*SessionView, error) {
	return s.apply(ctx, slug, id, "choose_time", func(b *models.Business, sess *models.BookingSession) (*models.BookingSession, error) {
		return s.wizard.ChooseTime(sess, b, slot)
	})
}

func (s *BookingService) Advance(ctx context.Context, slug, id string) (*SessionView, error) {
	return s.apply(ctx, slug, id, "advance", func(_ *models.Business, sess *models.BookingSession) (*models.BookingSession, error) {
		return s.wizard.Advance(sess)
	})
}

func (s *BookingService) GoBack(ctx context.Context, slug, id string) (*SessionView, error) {
	return s.apply(ctx, slug, id, "go_back", func(_ *models.Business, sess *models.BookingSession) (*models.BookingSession, error) {
		return s.wizard.GoBack(sess)
	})
}

// Submit creates the appointment and returns the recap. The session is
// cleared once the appointment exists.
func (s *BookingService) Submit(ctx context.Context, slug, id string, details wizard.Details) (*models.Summary, error) {
	unlock := s.sessions.Lock(id)
	defer unlock()

	_, session, err := s.load(ctx, slug, id)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.wizard.Submit(ctx, session, details, s.store)
	s.record("submit", err)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Booking submission rejected")
		return nil, err
	}

	summary, err := s.wizard.Summary(confirmed)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Clear(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to clear confirmed session")
	}
	s.enqueueSync(ctx, confirmed.BusinessID, confirmed.AppointmentID)

	s.logger.Info().
		Str("session_id", id).
		Int64("appointment_id", summary.AppointmentID).
		Str("service", summary.ServiceName).
		Str("date", summary.Date).
		Str("time", summary.Time).
		Msg("Booking confirmed")
	return summary, nil
}

func (s *BookingService) enqueueSync(ctx context.Context, businessID, appointmentID int64) {
	if s.sheetsWorker == nil {
		return
	}
	a, err := s.store.Get(ctx, businessID, appointmentID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", appointmentID).Msg("Sheets enqueue skipped")
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, models.TaskUpsert, a); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", appointmentID).Msg("Sheets enqueue error")
	}
}

type transition func(b *models.Business, sess *models.BookingSession) (*models.BookingSession, error)

func (s *BookingService) apply(ctx context.Context, slug, id, name string, fn transition) (*SessionView, error) {
	unlock := s.sessions.Lock(id)
	defer unlock()

	business, session, err := s.load(ctx, slug, id)
	if err != nil {
		return nil, err
	}

	next, err := fn(business, session)
	s.record(name, err)
	if err != nil {
		s.logger.Debug().Err(err).Str("session_id", id).Str("transition", name).Msg("Transition rejected")
		return nil, err
	}

	if err := s.sessions.Save(ctx, next); err != nil {
		return nil, err
	}
	return s.view(next), nil
}

func (s *BookingService) load(ctx context.Context, slug, id string) (*models.Business, *models.BookingSession, error) {
	business, err := s.businesses.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.BusinessID != business.ID {
		return nil, nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionExpired)
	}
	return business, session, nil
}

func (s *BookingService) record(name string, err error) {
	switch {
	case err == nil:
		metrics.IncTransition(name, "ok")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		metrics.IncTransition(name, "rejected")
	default:
		metrics.IncTransition(name, "error")
	}
}

func (s *BookingService) view(session *models.BookingSession) *SessionView {
	return &SessionView{
		Session:    session,
		Step:       s.wizard.StepNumber(session.State),
		TotalSteps: s.wizard.Flow().Steps,
		CanAdvance: s.wizard.CanAdvance(session),
	}
}
