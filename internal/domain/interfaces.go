package domain

import (
	"context"
	"time"

	"agendei/internal/models"
)

// Repository is the persistent backend behind the appointment store.
// Implemented by the sqlite database and the mongo document store.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateBusiness(ctx context.Context, business *models.Business) error
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error)
	UpdateBusinessProfile(ctx context.Context, id int64, profile models.BusinessProfile) error

	CreateService(ctx context.Context, service *models.Service) error
	UpdateService(ctx context.Context, service *models.Service) error
	DeactivateService(ctx context.Context, businessID, id int64) error
	GetService(ctx context.Context, businessID, id int64) (*models.Service, error)
	ListServices(ctx context.Context, businessID int64) ([]*models.Service, error)

	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, businessID, id int64) (*models.Client, error)
	ListClients(ctx context.Context, businessID int64) ([]*models.Client, error)

	CreateAppointment(ctx context.Context, appointment *models.Appointment) error
	GetAppointment(ctx context.Context, businessID, id int64) (*models.Appointment, error)
	ListAppointments(ctx context.Context, businessID int64, start, end time.Time) ([]*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, businessID, id int64, status string) error
}

// AppointmentStore is the shared store consumed by the wizard and the agenda.
type AppointmentStore interface {
	Create(ctx context.Context, businessID int64, appointment *models.Appointment) (int64, error)
	Subscribe(ctx context.Context, businessID int64, r models.DateRange) (Subscription, error)
	ListServices(ctx context.Context, businessID int64) ([]*models.Service, error)
	ListClients(ctx context.Context, businessID int64) ([]*models.Client, error)

	Get(ctx context.Context, businessID, id int64) (*models.Appointment, error)
	List(ctx context.Context, businessID int64, r models.DateRange) ([]*models.Appointment, error)
	UpdateStatus(ctx context.Context, businessID, id int64, status string) (*models.Appointment, error)
}

// Subscription is a live query. Snapshots delivers full ordered result sets
// until Cancel is called or a SubscriptionError is delivered.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Cancel()
}

type Snapshot struct {
	Appointments []*models.Appointment
	Err          error
	At           time.Time
}

// AppointmentCreator is the write side of the store used by the wizard.
type AppointmentCreator interface {
	Create(ctx context.Context, businessID int64, appointment *models.Appointment) (int64, error)
}

type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.BookingSession, error)
	SetSession(ctx context.Context, session *models.BookingSession) error
	ClearSession(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appointment *models.Appointment) error
}
