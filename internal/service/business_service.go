package service

import (
	"context"
	"strings"

	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

type BusinessService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBusinessService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *BusinessService {
	return &BusinessService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *BusinessService) Get(ctx context.Context, id int64) (*models.Business, error) {
	return s.repo.GetBusiness(ctx, id)
}

func (s *BusinessService) GetBySlug(ctx context.Context, slug string) (*models.Business, error) {
	return s.repo.GetBusinessBySlug(ctx, slug)
}

// UpdateProfile validates and stores the owner-editable fields. The name must
// have at least two characters after trimming; URLs are empty or absolute http(s).
func (s *BusinessService) UpdateProfile(ctx context.Context, businessID int64, profile models.BusinessProfile) (*models.Business, error) {
	profile = models.BusinessProfile{
		BusinessName:  strings.TrimSpace(profile.BusinessName),
		Description:   strings.TrimSpace(profile.Description),
		LogoURL:       strings.TrimSpace(profile.LogoURL),
		CoverImageURL: strings.TrimSpace(profile.CoverImageURL),
	}
	if err := domain.ValidateStruct(profile); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateBusinessProfile(ctx, businessID, profile); err != nil {
		s.logger.Error().Err(err).Int64("business_id", businessID).Msg("Failed to update business profile")
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.BusinessEventPayload{BusinessID: businessID, Name: profile.BusinessName}
		if err := s.eventBus.PublishJSON(events.EventProfileUpdated, payload); err != nil {
			s.logger.Error().Err(err).Msg("Publish event error")
		}
	}

	return s.repo.GetBusiness(ctx, businessID)
}
