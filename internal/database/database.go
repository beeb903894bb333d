package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agendei/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// sqlTimeLayout keeps stored instants in UTC with a fixed width so that
// string comparison in SQL matches chronological order.
const sqlTimeLayout = "2006-01-02T15:04:05Z"

var _ domain.Repository = (*DB)(nil)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite serializes writers anyway and :memory: is per-connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// Path is the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            slug TEXT UNIQUE NOT NULL,
            business_name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            logo_url TEXT NOT NULL DEFAULT '',
            cover_image_url TEXT NOT NULL DEFAULT '',
            time_slots TEXT NOT NULL DEFAULT '[]',
            timezone TEXT NOT NULL DEFAULT 'UTC',
            deposit_price TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            business_id INTEGER NOT NULL REFERENCES businesses(id),
            name TEXT NOT NULL,
            duration TEXT NOT NULL DEFAULT '',
            price TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            sort_order INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS clients (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            business_id INTEGER NOT NULL REFERENCES businesses(id),
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            business_id INTEGER NOT NULL REFERENCES businesses(id),
            client_id INTEGER,
            client_name TEXT NOT NULL,
            client_phone TEXT NOT NULL DEFAULT '',
            client_email TEXT NOT NULL DEFAULT '',
            service_id INTEGER NOT NULL,
            service_name TEXT NOT NULL,
            service_price TEXT NOT NULL DEFAULT '',
            service_duration TEXT NOT NULL DEFAULT '',
            date TEXT NOT NULL,
            time TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'confirmed',
            source TEXT NOT NULL DEFAULT 'booking',
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_services_business ON services(business_id, sort_order)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_business ON clients(business_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_business_date ON appointments(business_id, date, time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

func parseInstant(s string) (time.Time, error) {
	return time.Parse(sqlTimeLayout, s)
}

// notFound maps sql.ErrNoRows onto the domain not-found error.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func requireRows(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return domain.NotFoundError(op, nil)
	}
	return nil
}
