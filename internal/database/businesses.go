package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agendei/internal/models"
)

const businessColumns = `id, slug, business_name, description, logo_url, cover_image_url,
                 time_slots, timezone, deposit_price, created_at, updated_at`

func (db *DB) CreateBusiness(ctx context.Context, business *models.Business) error {
	slots, err := json.Marshal(business.TimeSlots)
	if err != nil {
		return fmt.Errorf("failed to encode time slots: %w", err)
	}
	if business.Timezone == "" {
		business.Timezone = "UTC"
	}

	query := `INSERT INTO businesses (slug, business_name, description, logo_url, cover_image_url,
                 time_slots, timezone, deposit_price, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		business.Slug,
		business.BusinessName,
		business.Description,
		business.LogoURL,
		business.CoverImageURL,
		string(slots),
		business.Timezone,
		business.DepositPrice,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	business.ID = id
	business.CreatedAt = now
	business.UpdatedAt = now
	return nil
}

func (db *DB) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	row := db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFound("get business", err)
	}
	return b, nil
}

func (db *DB) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	row := db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = ?`, slug)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFound("get business by slug", err)
	}
	return b, nil
}

func (db *DB) UpdateBusinessProfile(ctx context.Context, id int64, profile models.BusinessProfile) error {
	query := `UPDATE businesses SET business_name = ?, description = ?, logo_url = ?, cover_image_url = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		profile.BusinessName, profile.Description, profile.LogoURL, profile.CoverImageURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update business profile: %w", err)
	}
	return requireRows(result, "update business profile")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBusiness(row rowScanner) (*models.Business, error) {
	var b models.Business
	var slots string
	if err := row.Scan(&b.ID, &b.Slug, &b.BusinessName, &b.Description, &b.LogoURL, &b.CoverImageURL,
		&slots, &b.Timezone, &b.DepositPrice, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slots), &b.TimeSlots); err != nil {
		return nil, fmt.Errorf("failed to decode time slots: %w", err)
	}
	return &b, nil
}
