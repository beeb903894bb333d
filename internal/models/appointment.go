package models

import "time"

// Appointment carries copies of the client and service display fields taken
// at creation time. They are not refreshed when the client or service is
// renamed later.
type Appointment struct {
	ID              int64     `json:"id" bson:"_id"`
	BusinessID      int64     `json:"business_id" bson:"business_id"`
	ClientID        *int64    `json:"client_id" bson:"client_id"`
	ClientName      string    `json:"client_name" bson:"client_name"`
	ClientPhone     string    `json:"client_phone" bson:"client_phone"`
	ClientEmail     string    `json:"client_email,omitempty" bson:"client_email"`
	ServiceID       int64     `json:"service_id" bson:"service_id"`
	ServiceName     string    `json:"service_name" bson:"service_name"`
	ServicePrice    string    `json:"service_price" bson:"service_price"`
	ServiceDuration string    `json:"service_duration" bson:"service_duration"`
	Date            time.Time `json:"date" bson:"date"`
	Time            string    `json:"time" bson:"time"`
	Status          string    `json:"status" bson:"status"` // confirmed, pending, awaiting_deposit, cancelled
	Source          string    `json:"source" bson:"source"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayRange returns [startOfDay, startOfNextDay) for day in loc.
func DayRange(day time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	start := StartOfDay(day, loc)
	return DateRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// CalendarDays counts the calendar days from from to to inclusive, as seen in
// loc. DST changes between the two do not shift the count.
func CalendarDays(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	f, t := from.In(loc), to.In(loc)
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start)/(24*time.Hour)) + 1
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
