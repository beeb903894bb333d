package database

import (
	"context"
	"fmt"
	"time"

	"agendei/internal/models"
)

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	query := `INSERT INTO services (business_id, name, duration, price, is_active, sort_order, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		service.BusinessID,
		service.Name,
		service.Duration,
		service.Price,
		service.IsActive,
		service.SortOrder,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	service.ID = id
	service.CreatedAt = now
	service.UpdatedAt = now
	return nil
}

func (db *DB) UpdateService(ctx context.Context, service *models.Service) error {
	query := `UPDATE services SET name = ?, duration = ?, price = ?, is_active = ?, sort_order = ?, updated_at = ?
              WHERE id = ? AND business_id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		service.Name, service.Duration, service.Price, service.IsActive, service.SortOrder, now,
		service.ID, service.BusinessID)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if err := requireRows(result, "update service"); err != nil {
		return err
	}
	service.UpdatedAt = now
	return nil
}

func (db *DB) DeactivateService(ctx context.Context, businessID, id int64) error {
	query := `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ? AND business_id = ?`
	result, err := db.ExecContext(ctx, query, time.Now(), id, businessID)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	return requireRows(result, "deactivate service")
}

func (db *DB) GetService(ctx context.Context, businessID, id int64) (*models.Service, error) {
	var s models.Service
	query := `SELECT id, business_id, name, duration, price, is_active, sort_order, created_at, updated_at
              FROM services WHERE id = ? AND business_id = ?`
	err := db.QueryRowContext(ctx, query, id, businessID).Scan(
		&s.ID, &s.BusinessID, &s.Name, &s.Duration, &s.Price, &s.IsActive, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound("get service", err)
	}
	return &s, nil
}

// ListServices returns every service of the business, inactive ones included.
func (db *DB) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	query := `SELECT id, business_id, name, duration, price, is_active, sort_order, created_at, updated_at
              FROM services WHERE business_id = ? ORDER BY sort_order, id`
	rows, err := db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s := &models.Service{}
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Duration, &s.Price, &s.IsActive, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (db *DB) CreateClient(ctx context.Context, client *models.Client) error {
	query := `INSERT INTO clients (business_id, name, phone, email, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, client.BusinessID, client.Name, client.Phone, client.Email, now)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	client.ID = id
	client.CreatedAt = now
	return nil
}

func (db *DB) GetClient(ctx context.Context, businessID, id int64) (*models.Client, error) {
	var c models.Client
	query := `SELECT id, business_id, name, phone, email, created_at FROM clients WHERE id = ? AND business_id = ?`
	err := db.QueryRowContext(ctx, query, id, businessID).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFound("get client", err)
	}
	return &c, nil
}

func (db *DB) ListClients(ctx context.Context, businessID int64) ([]*models.Client, error) {
	query := `SELECT id, business_id, name, phone, email, created_at FROM clients WHERE business_id = ? ORDER BY name, id`
	rows, err := db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c := &models.Client{}
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
