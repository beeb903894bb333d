package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

// DashboardReader resolves the references of a dashboard-created appointment.
type DashboardReader interface {
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	GetClient(ctx context.Context, businessID, id int64) (*models.Client, error)
	GetService(ctx context.Context, businessID, id int64) (*models.Service, error)
}

type AppointmentService struct {
	repo         DashboardReader
	store        domain.AppointmentStore
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewAppointmentService(repo DashboardReader, store domain.AppointmentStore, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *AppointmentService {
	return &AppointmentService{
		repo:         repo,
		store:        store,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// CreateFromDashboard books clientID for serviceID on day at slot. Client and
// service display fields are copied onto the appointment. A reference that
// no longer exists is replaced by a placeholder label instead of failing.
func (s *AppointmentService) CreateFromDashboard(ctx context.Context, businessID, clientID, serviceID int64, day time.Time, slot string) (*models.Appointment, error) {
	slot = strings.TrimSpace(slot)
	switch {
	case clientID == 0:
		return nil, domain.NewValidationError("client_id", "client is required")
	case serviceID == 0:
		return nil, domain.NewValidationError("service_id", "service is required")
	case slot == "":
		return nil, domain.NewValidationError("time", "time is required")
	case day.IsZero():
		return nil, domain.NewValidationError("date", "date is required")
	}
	if _, err := time.Parse(models.TimeLayout, slot); err != nil {
		return nil, domain.NewValidationError("time", "time must be HH:MM")
	}

	business, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	a := &models.Appointment{
		ClientID:  &clientID,
		ServiceID: serviceID,
		Date:      models.StartOfDay(day, business.Location()),
		Time:      slot,
		Status:    models.StatusConfirmed,
		Source:    models.SourceDashboard,
		CreatedAt: time.Now(),
	}

	client, err := s.repo.GetClient(ctx, businessID, clientID)
	switch {
	case err == nil:
		a.ClientName = client.Name
		a.ClientPhone = client.Phone
		a.ClientEmail = client.Email
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Int64("business_id", businessID).Int64("client_id", clientID).Msg("Client not found, using placeholder")
		a.ClientName = models.PlaceholderClientName
	default:
		return nil, fmt.Errorf("resolve client: %w", err)
	}

	service, err := s.repo.GetService(ctx, businessID, serviceID)
	switch {
	case err == nil:
		a.ServiceName = service.Name
		a.ServicePrice = service.Price
		a.ServiceDuration = service.Duration
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Int64("business_id", businessID).Int64("service_id", serviceID).Msg("Service not found, using placeholder")
		a.ServiceName = models.PlaceholderServiceName
	default:
		return nil, fmt.Errorf("resolve service: %w", err)
	}

	if _, err := s.store.Create(ctx, businessID, a); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, models.TaskUpsert, a)
	s.logger.Info().
		Int64("business_id", businessID).
		Int64("appointment_id", a.ID).
		Str("date", a.Date.Format(models.DateLayout)).
		Str("time", a.Time).
		Msg("Appointment created from dashboard")
	return a, nil
}

// ListDay returns the appointments of one calendar day in the business timezone.
func (s *AppointmentService) ListDay(ctx context.Context, businessID int64, day time.Time) ([]*models.Appointment, error) {
	business, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, businessID, models.DayRange(day, business.Location()))
}

// ListRange returns appointments for the days from..to inclusive.
func (s *AppointmentService) ListRange(ctx context.Context, businessID int64, from, to time.Time) ([]*models.Appointment, error) {
	if to.Before(from) {
		return nil, domain.NewValidationError("to", "end date is before start date")
	}
	business, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	loc := business.Location()
	r := models.DateRange{
		Start: models.StartOfDay(from, loc),
		End:   models.StartOfDay(to, loc).AddDate(0, 0, 1),
	}
	return s.store.List(ctx, businessID, r)
}

// UpdateStatus applies an owner-driven status change. Any status of the set
// may follow any other.
func (s *AppointmentService) UpdateStatus(ctx context.Context, businessID, id int64, status string) (*models.Appointment, error) {
	if !models.ValidStatus(status) {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	a, err := s.store.UpdateStatus(ctx, businessID, id, status)
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, models.TaskUpdateStatus, a)
	s.logger.Info().Int64("appointment_id", id).Str("status", status).Msg("Appointment status changed")
	return a, nil
}

func (s *AppointmentService) enqueueSync(ctx context.Context, taskType string, a *models.Appointment) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, a); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", a.ID).Str("task", taskType).Msg("Sheets enqueue error")
	}
}
