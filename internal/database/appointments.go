package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agendei/internal/models"
)

const appointmentColumns = `id, business_id, client_id, client_name, client_phone, client_email,
                 service_id, service_name, service_price, service_duration,
                 date, time, status, source, created_at`

func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	query := `INSERT INTO appointments (business_id, client_id, client_name, client_phone, client_email,
                 service_id, service_name, service_price, service_duration,
                 date, time, status, source, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	var clientID sql.NullInt64
	if a.ClientID != nil {
		clientID = sql.NullInt64{Int64: *a.ClientID, Valid: true}
	}

	result, err := db.ExecContext(ctx, query,
		a.BusinessID,
		clientID,
		a.ClientName,
		a.ClientPhone,
		a.ClientEmail,
		a.ServiceID,
		a.ServiceName,
		a.ServicePrice,
		a.ServiceDuration,
		formatInstant(a.Date),
		a.Time,
		a.Status,
		a.Source,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, businessID, id int64) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ? AND business_id = ?`, id, businessID)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound("get appointment", err)
	}
	a.Date = a.Date.In(db.businessLocation(ctx, businessID))
	return a, nil
}

// ListAppointments returns the appointments whose date falls in [start, end)
// ordered by date then time.
func (db *DB) ListAppointments(ctx context.Context, businessID int64, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE business_id = ? AND date >= ? AND date < ?
              ORDER BY date ASC, time ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, businessID, formatInstant(start), formatInstant(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	if len(appointments) > 0 {
		loc := db.businessLocation(ctx, businessID)
		for _, a := range appointments {
			a.Date = a.Date.In(loc)
		}
	}
	return appointments, nil
}

// businessLocation is the zone appointment dates are read back in, so the
// stored midnight keeps its calendar day.
func (db *DB) businessLocation(ctx context.Context, businessID int64) *time.Location {
	var tz string
	if err := db.QueryRowContext(ctx, `SELECT timezone FROM businesses WHERE id = ?`, businessID).Scan(&tz); err != nil {
		return time.UTC
	}
	return models.LoadLocation(tz)
}

func (db *DB) UpdateAppointmentStatus(ctx context.Context, businessID, id int64, status string) error {
	result, err := db.ExecContext(ctx, `UPDATE appointments SET status = ? WHERE id = ? AND business_id = ?`, status, id, businessID)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return requireRows(result, "update appointment status")
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var clientID sql.NullInt64
	var date string
	if err := row.Scan(&a.ID, &a.BusinessID, &clientID, &a.ClientName, &a.ClientPhone, &a.ClientEmail,
		&a.ServiceID, &a.ServiceName, &a.ServicePrice, &a.ServiceDuration,
		&date, &a.Time, &a.Status, &a.Source, &a.CreatedAt); err != nil {
		return nil, err
	}
	if clientID.Valid {
		id := clientID.Int64
		a.ClientID = &id
	}
	parsed, err := parseInstant(date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse appointment date %s: %w", date, err)
	}
	a.Date = parsed
	return &a, nil
}
