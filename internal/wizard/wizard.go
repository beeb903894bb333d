// Package wizard implements the public booking flow as a pure state machine
// over models.BookingSession. Every transition works on a copy of the
// session: a rejected call returns an error and the caller's session is
// left untouched.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"
)

// Flow selects one of the wizard variants.
type Flow struct {
	// Steps is 3 when details and the recap share one screen, 4 otherwise.
	Steps int
	// AutoAdvance moves to the details step as soon as a time is chosen.
	AutoAdvance    bool
	MaxBookingDays int
}

// Details is the customer form of the third step.
type Details struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required,max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type Wizard struct {
	flow Flow
	now  func() time.Time
}

func New(flow Flow) *Wizard {
	if flow.Steps != 3 {
		flow.Steps = 4
	}
	if flow.MaxBookingDays <= 0 {
		flow.MaxBookingDays = models.DefaultMaxBookingDays
	}
	return &Wizard{flow: flow, now: time.Now}
}

// WithClock replaces the wall clock, used by tests.
func (w *Wizard) WithClock(now func() time.Time) *Wizard {
	c := *w
	c.now = now
	return &c
}

func (w *Wizard) Flow() Flow {
	return w.flow
}

// Start opens a fresh session for business with today preselected.
func (w *Wizard) Start(id string, business *models.Business) *models.BookingSession {
	now := w.now()
	return &models.BookingSession{
		ID:         id,
		BusinessID: business.ID,
		State:      models.StateSelectingService,
		Date:       models.StartOfDay(now, business.Location()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StepNumber maps a state to the screen number shown to the visitor.
func (w *Wizard) StepNumber(state string) int {
	switch state {
	case models.StateSelectingService:
		return 1
	case models.StateSelectingDateTime:
		return 2
	case models.StateEnteringDetails:
		return 3
	case models.StateConfirmed:
		if w.flow.Steps == 3 {
			return 3
		}
		return 4
	default:
		return 0
	}
}

// CanAdvance reports whether the advance control is enabled.
func (w *Wizard) CanAdvance(s *models.BookingSession) bool {
	return s != nil && s.State == models.StateSelectingDateTime && !s.Date.IsZero() && s.Time != ""
}

// Selectable filters the catalog down to what the visitor may pick.
func Selectable(services []*models.Service, businessID int64) []*models.Service {
	out := make([]*models.Service, 0, len(services))
	for _, svc := range services {
		if svc.IsActive && svc.BusinessID == businessID {
			out = append(out, svc)
		}
	}
	return out
}

func (w *Wizard) ChooseService(s *models.BookingSession, services []*models.Service, serviceID int64) (*models.BookingSession, error) {
	if err := requireState(s, "choose service", models.StateSelectingService); err != nil {
		return s, err
	}

	var chosen *models.Service
	for _, svc := range Selectable(services, s.BusinessID) {
		if svc.ID == serviceID {
			chosen = svc
			break
		}
	}
	if chosen == nil {
		return s, domain.NewValidationError("service_id", "service is not available for booking")
	}

	next := w.touch(s)
	next.Service = &models.Selected{
		ID:       chosen.ID,
		Name:     chosen.Name,
		Duration: chosen.Duration,
		Price:    chosen.Price,
	}
	next.State = models.StateSelectingDateTime
	return next, nil
}

// ValidateDate applies the booking window: today is the earliest day and
// MaxBookingDays ahead is the latest.
func (w *Wizard) ValidateDate(date time.Time) error {
	now := w.now()
	if date.Before(now.AddDate(0, 0, -1)) {
		return domain.WrapValidation("date", domain.ErrPastDate)
	}
	if date.After(now.AddDate(0, 0, w.flow.MaxBookingDays)) {
		return domain.WrapValidation("date", domain.ErrDateTooFar)
	}
	return nil
}

func (w *Wizard) ChooseDate(s *models.BookingSession, business *models.Business, date time.Time) (*models.BookingSession, error) {
	if err := requireState(s, "choose date", models.StateSelectingDateTime); err != nil {
		return s, err
	}
	if date.IsZero() {
		return s, domain.NewValidationError("date", "date is required")
	}

	day := models.StartOfDay(date, business.Location())
	if err := w.ValidateDate(day); err != nil {
		return s, err
	}

	next := w.touch(s)
	next.Date = day
	if next.Time != "" && !contains(business.SlotsFor(day), next.Time) {
		next.Time = ""
	}
	return next, nil
}

func (w *Wizard) ChooseTime(s *models.BookingSession, business *models.Business, slot string) (*models.BookingSession, error) {
	if err := requireState(s, "choose time", models.StateSelectingDateTime); err != nil {
		return s, err
	}
	if s.Date.IsZero() {
		return s, domain.NewValidationError("date", "choose a date first")
	}
	if !contains(business.SlotsFor(s.Date), slot) {
		return s, domain.NewValidationError("time", fmt.Sprintf("%q is not an offered slot", slot))
	}

	next := w.touch(s)
	next.Time = slot
	if w.flow.AutoAdvance {
		next.State = models.StateEnteringDetails
	}
	return next, nil
}

func (w *Wizard) Advance(s *models.BookingSession) (*models.BookingSession, error) {
	if err := requireState(s, "advance", models.StateSelectingDateTime); err != nil {
		return s, err
	}
	if s.Date.IsZero() {
		return s, domain.NewValidationError("date", "date is required")
	}
	if s.Time == "" {
		return s, domain.NewValidationError("time", "time is required")
	}

	next := w.touch(s)
	next.State = models.StateEnteringDetails
	return next, nil
}

// GoBack returns to the previous step without clearing any selection.
func (w *Wizard) GoBack(s *models.BookingSession) (*models.BookingSession, error) {
	if err := requireState(s, "go back", models.StateSelectingDateTime, models.StateEnteringDetails); err != nil {
		return s, err
	}

	next := w.touch(s)
	switch s.State {
	case models.StateSelectingDateTime:
		next.State = models.StateSelectingService
	case models.StateEnteringDetails:
		next.State = models.StateSelectingDateTime
	}
	return next, nil
}

// Submit validates the customer details, creates the appointment through
// creator in a single attempt and moves the session to confirmed.
func (w *Wizard) Submit(ctx context.Context, s *models.BookingSession, details Details, creator domain.AppointmentCreator) (*models.BookingSession, error) {
	if err := requireState(s, "submit", models.StateEnteringDetails); err != nil {
		return s, err
	}
	if s.Service == nil {
		return s, domain.NewValidationError("service_id", "service is required")
	}

	details = Details{
		Name:  strings.TrimSpace(details.Name),
		Phone: strings.TrimSpace(details.Phone),
		Email: strings.TrimSpace(details.Email),
	}
	if err := domain.ValidateStruct(details); err != nil {
		return s, err
	}

	now := w.now()
	appointment := &models.Appointment{
		BusinessID:      s.BusinessID,
		ClientName:      details.Name,
		ClientPhone:     details.Phone,
		ClientEmail:     details.Email,
		ServiceID:       s.Service.ID,
		ServiceName:     s.Service.Name,
		ServicePrice:    s.Service.Price,
		ServiceDuration: s.Service.Duration,
		Date:            s.Date,
		Time:            s.Time,
		Status:          models.StatusConfirmed,
		Source:          models.SourceBooking,
		CreatedAt:       now,
	}

	id, err := creator.Create(ctx, s.BusinessID, appointment)
	if err != nil {
		if errors.Is(err, domain.ErrWrite) {
			return s, err
		}
		return s, domain.WriteError("create appointment", err)
	}

	next := w.touch(s)
	next.CustomerName = details.Name
	next.CustomerPhone = details.Phone
	next.CustomerEmail = details.Email
	next.AppointmentID = id
	next.State = models.StateConfirmed
	return next, nil
}

// Summary is the recap of a confirmed session.
func (w *Wizard) Summary(s *models.BookingSession) (*models.Summary, error) {
	if err := requireState(s, "summary", models.StateConfirmed); err != nil {
		return nil, err
	}
	return &models.Summary{
		AppointmentID:   s.AppointmentID,
		ServiceName:     s.Service.Name,
		ServiceDuration: s.Service.Duration,
		Price:           s.Service.Price,
		Date:            s.Date.Format(models.DateLayout),
		Time:            s.Time,
		CustomerName:    s.CustomerName,
		CustomerPhone:   s.CustomerPhone,
		Status:          models.StatusConfirmed,
	}, nil
}

func (w *Wizard) touch(s *models.BookingSession) *models.BookingSession {
	next := s.Clone()
	next.UpdatedAt = w.now()
	return next
}

func requireState(s *models.BookingSession, op string, allowed ...string) error {
	if s == nil {
		return fmt.Errorf("%s: %w", op, domain.ErrSessionExpired)
	}
	for _, state := range allowed {
		if s.State == state {
			return nil
		}
	}
	return fmt.Errorf("%s in state %s: %w", op, s.State, domain.ErrInvalidTransition)
}

func contains(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
