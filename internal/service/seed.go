package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// CatalogFile is the YAML layout of a seed catalog.
type CatalogFile struct {
	Businesses []CatalogBusiness `yaml:"businesses"`
}

type CatalogBusiness struct {
	models.Business `yaml:",inline"`
	Services        []SeedService `yaml:"services"`
	Clients         []SeedClient  `yaml:"clients"`
}

type SeedService struct {
	Name      string `yaml:"name"`
	Duration  string `yaml:"duration"`
	Price     string `yaml:"price"`
	SortOrder int64  `yaml:"sort_order"`
	Active    *bool  `yaml:"is_active"`
}

type SeedClient struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
}

// LoadCatalog reads a seed catalog from disk.
func LoadCatalog(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var catalog CatalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &catalog, nil
}

// SeedCatalog creates every business of the catalog that does not exist yet,
// together with its services and clients. Businesses already present by slug
// are left untouched. It returns the number of businesses created.
func SeedCatalog(ctx context.Context, repo domain.Repository, catalog *CatalogFile, logger *zerolog.Logger) (int, error) {
	created := 0
	for i := range catalog.Businesses {
		entry := catalog.Businesses[i]
		if entry.Slug == "" {
			return created, domain.NewValidationError("slug", fmt.Sprintf("business #%d has no slug", i+1))
		}

		_, err := repo.GetBusinessBySlug(ctx, entry.Slug)
		if err == nil {
			logger.Info().Str("slug", entry.Slug).Msg("Business already seeded, skipping")
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}

		business := entry.Business
		business.ID = 0
		if err := repo.CreateBusiness(ctx, &business); err != nil {
			return created, fmt.Errorf("seed business %s: %w", entry.Slug, err)
		}

		for j, svc := range entry.Services {
			service := &models.Service{
				BusinessID: business.ID,
				Name:       svc.Name,
				Duration:   svc.Duration,
				Price:      svc.Price,
				SortOrder:  svc.SortOrder,
				IsActive:   svc.Active == nil || *svc.Active,
			}
			if service.SortOrder == 0 {
				service.SortOrder = int64(j + 1)
			}
			if err := repo.CreateService(ctx, service); err != nil {
				return created, fmt.Errorf("seed service %s: %w", svc.Name, err)
			}
		}

		for _, c := range entry.Clients {
			client := &models.Client{BusinessID: business.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
			if err := repo.CreateClient(ctx, client); err != nil {
				return created, fmt.Errorf("seed client %s: %w", c.Name, err)
			}
		}

		logger.Info().
			Str("slug", business.Slug).
			Int64("business_id", business.ID).
			Int("services", len(entry.Services)).
			Int("clients", len(entry.Clients)).
			Msg("Business seeded")
		created++
	}
	return created, nil
}
