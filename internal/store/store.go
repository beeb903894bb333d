// Package store is the appointment store shared by the booking wizard and
// the dashboard agenda. Writes go to the configured repository and are
// announced on the event bus; subscriptions re-query on every relevant event.
package store

import (
	"context"
	"errors"
	"time"

	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/metrics"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

var _ domain.AppointmentStore = (*Store)(nil)

type Store struct {
	repo   domain.Repository
	bus    *events.EventBus
	logger *zerolog.Logger
}

func New(repo domain.Repository, bus *events.EventBus, logger *zerolog.Logger) *Store {
	l := logger.With().Str("component", "appointment_store").Logger()
	return &Store{repo: repo, bus: bus, logger: &l}
}

// Create appends the appointment for businessID and returns its id.
func (s *Store) Create(ctx context.Context, businessID int64, a *models.Appointment) (int64, error) {
	a.BusinessID = businessID
	if a.Status == "" {
		a.Status = models.StatusConfirmed
	}
	if err := s.repo.CreateAppointment(ctx, a); err != nil {
		s.logger.Error().Err(err).Int64("business_id", businessID).Msg("Failed to create appointment")
		return 0, domain.WriteError("create appointment", err)
	}

	metrics.IncAppointmentCreated(a.Source)
	s.publish(events.EventAppointmentCreated, a)
	return a.ID, nil
}

// UpdateStatus applies an owner-driven status change.
func (s *Store) UpdateStatus(ctx context.Context, businessID, id int64, status string) (*models.Appointment, error) {
	if err := s.repo.UpdateAppointmentStatus(ctx, businessID, id, status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.WriteError("update appointment status", err)
	}

	a, err := s.repo.GetAppointment(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventAppointmentStatusChanged, a)
	return a, nil
}

func (s *Store) Get(ctx context.Context, businessID, id int64) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, businessID, id)
}

// List is a one-shot read of the range ordered by date then time.
func (s *Store) List(ctx context.Context, businessID int64, r models.DateRange) ([]*models.Appointment, error) {
	return s.repo.ListAppointments(ctx, businessID, r.Start, r.End)
}

func (s *Store) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	return s.repo.ListServices(ctx, businessID)
}

func (s *Store) ListClients(ctx context.Context, businessID int64) ([]*models.Client, error) {
	return s.repo.ListClients(ctx, businessID)
}

func (s *Store) publish(eventType string, a *models.Appointment) {
	payload := events.AppointmentEventPayload{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		ClientName:    a.ClientName,
		ServiceName:   a.ServiceName,
		Date:          a.Date,
		Time:          a.Time,
		Status:        a.Status,
		Source:        a.Source,
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish appointment event")
	}
}

// Subscribe starts a live query over r. The first snapshot is the current
// state; a new one follows every appointment event for the business whose
// date falls in r.
func (s *Store) Subscribe(ctx context.Context, businessID int64, r models.DateRange) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.SubscriptionError("subscribe", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		out:    make(chan domain.Snapshot, 1),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}

	onEvent := func(event *events.Event) error {
		var p events.AppointmentEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		if p.BusinessID != businessID || !r.Contains(p.Date) {
			return nil
		}
		sub.notify()
		return nil
	}
	sub.unsubs = []func(){
		s.bus.Subscribe(events.EventAppointmentCreated, onEvent),
		s.bus.Subscribe(events.EventAppointmentStatusChanged, onEvent),
	}

	metrics.SubscriptionOpened()
	go s.run(subCtx, sub, businessID, r)
	return sub, nil
}

func (s *Store) run(ctx context.Context, sub *subscription, businessID int64, r models.DateRange) {
	defer func() {
		sub.detach()
		close(sub.out)
		metrics.SubscriptionClosed()
	}()

	for {
		list, err := s.repo.ListAppointments(ctx, businessID, r.Start, r.End)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Int64("business_id", businessID).Msg("Subscription query failed")
			sub.deliver(domain.Snapshot{Err: domain.SubscriptionError("list appointments", err), At: time.Now()})
			return
		}
		sub.deliver(domain.Snapshot{Appointments: list, At: time.Now()})
		metrics.IncSnapshot()

		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		}
	}
}
