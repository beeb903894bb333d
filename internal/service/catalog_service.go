package service

import (
	"context"
	"strings"

	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

// ServiceInput is the dashboard form for a service.
type ServiceInput struct {
	Name      string `json:"name" validate:"required,max=120"`
	Duration  string `json:"duration" validate:"required,max=40"`
	Price     string `json:"price" validate:"required,max=40"`
	SortOrder int64  `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

// ClientInput is the dashboard form for a client.
type ClientInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type CatalogService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewCatalogService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ListServices returns the whole catalog, inactive services included.
func (s *CatalogService) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	return s.repo.ListServices(ctx, businessID)
}

func (s *CatalogService) CreateService(ctx context.Context, businessID int64, in ServiceInput) (*models.Service, error) {
	in = trimServiceInput(in)
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}

	svc := &models.Service{
		BusinessID: businessID,
		Name:       in.Name,
		Duration:   in.Duration,
		Price:      in.Price,
		SortOrder:  in.SortOrder,
		IsActive:   in.IsActive == nil || *in.IsActive,
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, err
	}

	s.publish(events.EventServiceChanged, businessID, svc.ID, svc.Name)
	return svc, nil
}

func (s *CatalogService) UpdateService(ctx context.Context, businessID, id int64, in ServiceInput) (*models.Service, error) {
	in = trimServiceInput(in)
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	svc.Name = in.Name
	svc.Duration = in.Duration
	svc.Price = in.Price
	svc.SortOrder = in.SortOrder
	if in.IsActive != nil {
		svc.IsActive = *in.IsActive
	}
	if err := s.repo.UpdateService(ctx, svc); err != nil {
		return nil, err
	}

	s.publish(events.EventServiceChanged, businessID, svc.ID, svc.Name)
	return svc, nil
}

// DeactivateService hides a service from the booking flow. Existing
// appointments keep their copied service name.
func (s *CatalogService) DeactivateService(ctx context.Context, businessID, id int64) error {
	if err := s.repo.DeactivateService(ctx, businessID, id); err != nil {
		return err
	}
	s.publish(events.EventServiceChanged, businessID, id, "")
	return nil
}

func (s *CatalogService) ListClients(ctx context.Context, businessID int64) ([]*models.Client, error) {
	return s.repo.ListClients(ctx, businessID)
}

func (s *CatalogService) CreateClient(ctx context.Context, businessID int64, in ClientInput) (*models.Client, error) {
	in = ClientInput{
		Name:  strings.TrimSpace(in.Name),
		Phone: strings.TrimSpace(in.Phone),
		Email: strings.TrimSpace(in.Email),
	}
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}

	client := &models.Client{BusinessID: businessID, Name: in.Name, Phone: in.Phone, Email: in.Email}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	s.publish(events.EventClientCreated, businessID, client.ID, client.Name)
	return client, nil
}

func (s *CatalogService) publish(eventType string, businessID, entityID int64, name string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BusinessEventPayload{BusinessID: businessID, EntityID: entityID, Name: name}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("Publish event error")
	}
}

func trimServiceInput(in ServiceInput) ServiceInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Duration = strings.TrimSpace(in.Duration)
	in.Price = strings.TrimSpace(in.Price)
	return in
}
