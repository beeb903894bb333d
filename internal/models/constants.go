package models

import "time"

const (
	StatusConfirmed       = "confirmed"
	StatusPending         = "pending"
	StatusAwaitingDeposit = "awaiting_deposit"
	StatusCancelled       = "cancelled"
)

const (
	SourceBooking   = "booking"
	SourceDashboard = "dashboard"
)

// Sheets sync task types.
const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

const (
	StateSelectingService  = "selecting_service"
	StateSelectingDateTime = "selecting_date_time"
	StateEnteringDetails   = "entering_details"
	StateConfirmed         = "confirmed"
)

const (
	// DateLayout is the wire and storage format of calendar days.
	DateLayout = "2006-01-02"

	// TimeLayout is the format of slot wall-clock times.
	TimeLayout = "15:04"

	// DefaultSessionTTL lifetime of an idle booking session.
	DefaultSessionTTL = 2 * time.Hour

	// DefaultMaxBookingDays how far ahead a visitor can book.
	DefaultMaxBookingDays = 365

	// RateLimitRequests public booking requests per window per visitor.
	RateLimitRequests = 60

	// RateLimitWindow public booking window in seconds.
	RateLimitWindow = 60

	// WorkerQueueSize size of the in-memory sync queue.
	WorkerQueueSize = 128

	PlaceholderClientName  = "Cliente removido"
	PlaceholderServiceName = "Serviço removido"
)

// ValidStatus reports whether status is one of the appointment statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusConfirmed, StatusPending, StatusAwaitingDeposit, StatusCancelled:
		return true
	}
	return false
}
