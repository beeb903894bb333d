package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"agendei/internal/database"
	"agendei/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
businesses:
  - slug: studio-bela
    business_name: Studio Bela
    timezone: America/Sao_Paulo
    deposit_price: "R$ 30,00"
    time_slots: ["09:00", "10:00", "14:00"]
    services:
      - name: Corte Feminino
        duration: 1h
        price: "R$ 120,00"
      - name: Escova
        duration: 45min
        price: "R$ 60,00"
        is_active: false
    clients:
      - name: Ana Souza
        phone: "11 99999-0000"
`

func TestSeedCatalog(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Businesses, 1)

	ctx := context.Background()
	n, err := SeedCatalog(ctx, db, catalog, &logger)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := db.GetBusinessBySlug(ctx, "studio-bela")
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", b.Timezone)
	assert.Equal(t, []string{"09:00", "10:00", "14:00"}, b.TimeSlots)

	services, err := db.ListServices(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.True(t, services[0].IsActive)
	assert.False(t, services[1].IsActive)
	assert.Equal(t, int64(2), services[1].SortOrder)

	clients, err := db.ListClients(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 1)

	n, err = SeedCatalog(ctx, db, catalog, &logger)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding twice is a no-op")
}

func TestSeedCatalog_Errors(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = SeedCatalog(context.Background(), db, &CatalogFile{Businesses: []CatalogBusiness{{}}}, &logger)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
