// Package agenda holds the per-connection state of the owner's daily agenda:
// the selected day, its live appointment list, the create dialog and the
// notifications shown to the owner.
package agenda

import (
	"context"
	"errors"
	"sync"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// ErrClosed is returned by operations on a closed view.
var ErrClosed = errors.New("agenda view closed")

// Subscriber opens live appointment queries.
type Subscriber interface {
	Subscribe(ctx context.Context, businessID int64, r models.DateRange) (domain.Subscription, error)
}

// Creator creates appointments on behalf of the owner.
type Creator interface {
	CreateFromDashboard(ctx context.Context, businessID, clientID, serviceID int64, day time.Time, slot string) (*models.Appointment, error)
}

type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State is a consistent copy of the view.
type State struct {
	Token         uint64                `json:"token"`
	Day           time.Time             `json:"day"`
	Appointments  []*models.Appointment `json:"appointments"`
	Seq           uint64                `json:"seq"`
	Loading       bool                  `json:"loading"`
	DialogOpen    bool                  `json:"dialog_open"`
	Notifications []Notification        `json:"notifications"`
}

// View is bound to one business for its whole life. It is safe for
// concurrent use; Changes signals every state change.
type View struct {
	businessID int64
	loc        *time.Location
	subscriber Subscriber
	creator    Creator
	logger     *zerolog.Logger

	mu            sync.Mutex
	token         uint64
	day           time.Time
	appointments  []*models.Appointment
	seq           uint64
	loading       bool
	dialogOpen    bool
	notifications []Notification
	sub           domain.Subscription
	closed        bool

	changes chan struct{}
}

func New(businessID int64, loc *time.Location, subscriber Subscriber, creator Creator, logger *zerolog.Logger) *View {
	if loc == nil {
		loc = time.UTC
	}
	return &View{
		businessID: businessID,
		loc:        loc,
		subscriber: subscriber,
		creator:    creator,
		logger:     logger,
		changes:    make(chan struct{}, 1),
	}
}

func (v *View) BusinessID() int64 {
	return v.businessID
}

// Changes receives a value after one or more state changes.
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	appointments := make([]*models.Appointment, len(v.appointments))
	copy(appointments, v.appointments)
	notifications := make([]Notification, len(v.notifications))
	copy(notifications, v.notifications)

	return State{
		Token:         v.token,
		Day:           v.day,
		Appointments:  appointments,
		Seq:           v.seq,
		Loading:       v.loading,
		DialogOpen:    v.dialogOpen,
		Notifications: notifications,
	}
}

// SelectDay replaces the active day. The previous subscription is cancelled
// and any snapshot it still delivers is discarded.
func (v *View) SelectDay(ctx context.Context, day time.Time) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.token++
	token := v.token
	prev := v.sub
	v.sub = nil
	v.day = models.StartOfDay(day, v.loc)
	v.appointments = nil
	v.loading = true
	r := models.DayRange(v.day, v.loc)
	v.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	v.signal()

	sub, err := v.subscriber.Subscribe(ctx, v.businessID, r)
	if err != nil {
		v.logger.Error().Err(err).Int64("business_id", v.businessID).Msg("Agenda subscribe failed")
		v.mu.Lock()
		if v.token == token {
			v.loading = false
		}
		v.mu.Unlock()
		v.notify(LevelError, "", err)
		return err
	}

	v.mu.Lock()
	if v.closed || v.token != token {
		v.mu.Unlock()
		sub.Cancel()
		return nil
	}
	v.sub = sub
	v.mu.Unlock()

	go v.forward(token, sub)
	return nil
}

func (v *View) forward(token uint64, sub domain.Subscription) {
	for snap := range sub.Snapshots() {
		v.mu.Lock()
		if v.token != token {
			v.mu.Unlock()
			continue
		}
		v.loading = false
		if snap.Err != nil {
			v.mu.Unlock()
			v.logger.Warn().Err(snap.Err).Int64("business_id", v.businessID).Msg("Agenda subscription failed")
			v.notify(LevelError, "", snap.Err)
			continue
		}
		v.appointments = snap.Appointments
		v.seq++
		v.mu.Unlock()
		v.signal()
	}
}

func (v *View) OpenDialog() {
	v.setDialog(true)
}

func (v *View) CloseDialog() {
	v.setDialog(false)
}

func (v *View) setDialog(open bool) {
	v.mu.Lock()
	changed := v.dialogOpen != open
	v.dialogOpen = open
	v.mu.Unlock()
	if changed {
		v.signal()
	}
}

// CreateAppointment books on the selected day. Validation happens before any
// store call. On failure a notification is added and the dialog is left as
// it was; on success the dialog closes.
func (v *View) CreateAppointment(ctx context.Context, clientID, serviceID int64, slot string) (*models.Appointment, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrClosed
	}
	day := v.day
	v.mu.Unlock()

	var verr *domain.ValidationError
	switch {
	case clientID == 0:
		verr = domain.NewValidationError("client_id", "client is required")
	case serviceID == 0:
		verr = domain.NewValidationError("service_id", "service is required")
	case slot == "":
		verr = domain.NewValidationError("time", "time is required")
	case day.IsZero():
		verr = domain.NewValidationError("date", "select a day first")
	}
	if verr != nil {
		v.notify(LevelWarning, verr.Field, verr)
		return nil, verr
	}

	a, err := v.creator.CreateFromDashboard(ctx, v.businessID, clientID, serviceID, day, slot)
	if err != nil {
		level := LevelError
		field := ""
		if errors.As(err, &verr) {
			level = LevelWarning
			field = verr.Field
		}
		v.notify(level, field, err)
		return nil, err
	}

	v.CloseDialog()
	return a, nil
}

func (v *View) Notifications() []Notification {
	return v.State().Notifications
}

// Dismiss removes a notification and reports whether it existed.
func (v *View) Dismiss(id string) bool {
	v.mu.Lock()
	found := false
	for i, n := range v.notifications {
		if n.ID == id {
			v.notifications = append(v.notifications[:i:i], v.notifications[i+1:]...)
			found = true
			break
		}
	}
	v.mu.Unlock()
	if found {
		v.signal()
	}
	return found
}

// Close cancels the active subscription. Later snapshots are discarded.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.token++
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

func (v *View) notify(level, field string, err error) {
	msg := err.Error()
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Message
	}

	v.mu.Lock()
	v.notifications = append(v.notifications, Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		Field:     field,
		CreatedAt: time.Now(),
	})
	v.mu.Unlock()
	v.signal()
}

func (v *View) signal() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}
