// Package docstore is the MongoDB implementation of domain.Repository.
// Documents are keyed by int64 ids drawn from a counters collection so that
// ids look the same as the sqlite backend's.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	businessesCollection   = "businesses"
	servicesCollection     = "services"
	clientsCollection      = "clients"
	appointmentsCollection = "appointments"
	countersCollection     = "counters"

	connectTimeout = 10 * time.Second
)

var _ domain.Repository = (*Store)(nil)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zerolog.Logger
}

// Connect dials uri, pings it and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := New(client.Database(database), logger)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().Str("database", database).Msg("Mongo document store connected")
	return s, nil
}

// New wraps an already connected database.
func New(db *mongo.Database, logger *zerolog.Logger) *Store {
	return &Store{client: db.Client(), db: db, logger: logger}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		businessesCollection: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		servicesCollection: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "sort_order", Value: 1}}},
		},
		clientsCollection: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		appointmentsCollection: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// nextID atomically increments the named sequence.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return counter.Seq, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NotFoundError(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func requireMatch(result *mongo.UpdateResult, op string) error {
	if result.MatchedCount == 0 {
		return domain.NotFoundError(op, nil)
	}
	return nil
}

func (s *Store) CreateBusiness(ctx context.Context, business *models.Business) error {
	id, err := s.nextID(ctx, businessesCollection)
	if err != nil {
		return err
	}
	if business.Timezone == "" {
		business.Timezone = "UTC"
	}
	now := time.Now().UTC()
	business.ID = id
	business.CreatedAt = now
	business.UpdatedAt = now

	if _, err := s.db.Collection(businessesCollection).InsertOne(ctx, business); err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	var b models.Business
	if err := s.db.Collection(businessesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, notFound("get business", err)
	}
	return &b, nil
}

func (s *Store) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	var b models.Business
	if err := s.db.Collection(businessesCollection).FindOne(ctx, bson.M{"slug": slug}).Decode(&b); err != nil {
		return nil, notFound("get business by slug", err)
	}
	return &b, nil
}

func (s *Store) UpdateBusinessProfile(ctx context.Context, id int64, profile models.BusinessProfile) error {
	result, err := s.db.Collection(businessesCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"business_name":   profile.BusinessName,
		"description":     profile.Description,
		"logo_url":        profile.LogoURL,
		"cover_image_url": profile.CoverImageURL,
		"updated_at":      time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to update business profile: %w", err)
	}
	return requireMatch(result, "update business profile")
}

func (s *Store) CreateService(ctx context.Context, service *models.Service) error {
	id, err := s.nextID(ctx, servicesCollection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	service.ID = id
	service.CreatedAt = now
	service.UpdatedAt = now

	if _, err := s.db.Collection(servicesCollection).InsertOne(ctx, service); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, service *models.Service) error {
	now := time.Now().UTC()
	result, err := s.db.Collection(servicesCollection).UpdateOne(ctx,
		bson.M{"_id": service.ID, "business_id": service.BusinessID},
		bson.M{"$set": bson.M{
			"name":       service.Name,
			"duration":   service.Duration,
			"price":      service.Price,
			"is_active":  service.IsActive,
			"sort_order": service.SortOrder,
			"updated_at": now,
		}})
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if err := requireMatch(result, "update service"); err != nil {
		return err
	}
	service.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateService(ctx context.Context, businessID, id int64) error {
	result, err := s.db.Collection(servicesCollection).UpdateOne(ctx,
		bson.M{"_id": id, "business_id": businessID},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	return requireMatch(result, "deactivate service")
}

func (s *Store) GetService(ctx context.Context, businessID, id int64) (*models.Service, error) {
	var svc models.Service
	err := s.db.Collection(servicesCollection).FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&svc)
	if err != nil {
		return nil, notFound("get service", err)
	}
	return &svc, nil
}

func (s *Store) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(servicesCollection).Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	var services []*models.Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

func (s *Store) CreateClient(ctx context.Context, client *models.Client) error {
	id, err := s.nextID(ctx, clientsCollection)
	if err != nil {
		return err
	}
	client.ID = id
	client.CreatedAt = time.Now().UTC()

	if _, err := s.db.Collection(clientsCollection).InsertOne(ctx, client); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, businessID, id int64) (*models.Client, error) {
	var c models.Client
	err := s.db.Collection(clientsCollection).FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&c)
	if err != nil {
		return nil, notFound("get client", err)
	}
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context, businessID int64) ([]*models.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(clientsCollection).Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	var clients []*models.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	id, err := s.nextID(ctx, appointmentsCollection)
	if err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.ID = id

	if _, err := s.db.Collection(appointmentsCollection).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, businessID, id int64) (*models.Appointment, error) {
	var a models.Appointment
	err := s.db.Collection(appointmentsCollection).FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&a)
	if err != nil {
		return nil, notFound("get appointment", err)
	}
	a.Date = a.Date.In(s.businessLocation(ctx, businessID))
	return &a, nil
}

func (s *Store) ListAppointments(ctx context.Context, businessID int64, start, end time.Time) ([]*models.Appointment, error) {
	filter := bson.M{
		"business_id": businessID,
		"date":        bson.M{"$gte": start, "$lt": end},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(appointmentsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	appointments := []*models.Appointment{}
	if err := cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}

	if len(appointments) > 0 {
		loc := s.businessLocation(ctx, businessID)
		for _, a := range appointments {
			a.Date = a.Date.In(loc)
		}
	}
	return appointments, nil
}

// businessLocation is the zone appointment dates are decoded into. Mongo
// hands dates back in UTC, which moves midnight east of UTC to the day before.
func (s *Store) businessLocation(ctx context.Context, businessID int64) *time.Location {
	var b struct {
		Timezone string `bson:"timezone"`
	}
	opts := options.FindOne().SetProjection(bson.M{"timezone": 1})
	if err := s.db.Collection(businessesCollection).FindOne(ctx, bson.M{"_id": businessID}, opts).Decode(&b); err != nil {
		return time.UTC
	}
	return models.LoadLocation(b.Timezone)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, businessID, id int64, status string) error {
	result, err := s.db.Collection(appointmentsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "business_id": businessID},
		bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return requireMatch(result, "update appointment status")
}
