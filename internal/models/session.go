package models

import "time"

// BookingSession holds one visitor's in-progress selections.
type BookingSession struct {
	ID         string    `json:"id"`
	BusinessID int64     `json:"business_id"`
	State      string    `json:"state"`
	Service    *Selected `json:"service,omitempty"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time,omitempty"`

	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	AppointmentID int64     `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Selected is the service snapshot captured when the visitor picks it.
type Selected struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Price    string `json:"price"`
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (s *BookingSession) Clone() *BookingSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Service != nil {
		svc := *s.Service
		c.Service = &svc
	}
	return &c
}

// Summary is the read-only recap shown once a booking is confirmed.
type Summary struct {
	AppointmentID   int64  `json:"appointment_id"`
	ServiceName     string `json:"service_name"`
	ServiceDuration string `json:"service_duration"`
	Price           string `json:"price"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	Status          string `json:"status"`
}
