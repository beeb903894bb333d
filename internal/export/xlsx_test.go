package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"agendei/internal/database"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func testBusiness() *models.Business {
	return &models.Business{Slug: "studio-bela", BusinessName: "Studio Bela", Timezone: "UTC", TimeSlots: []string{"14:00", "09:00"}}
}

func testAppointments() []*models.Appointment {
	return []*models.Appointment{
		{ID: 1, ClientName: "Ana Silva", ClientPhone: "(11) 99999-9999", ServiceName: "Corte Feminino", ServicePrice: "R$ 120,00", Date: day, Time: "14:00", Status: models.StatusConfirmed, Source: models.SourceBooking},
		{ID: 2, ClientName: "Bia", ServiceName: "Escova", Date: day.AddDate(0, 0, 1), Time: "09:00", Status: models.StatusPending, Source: models.SourceDashboard},
		{ID: 3, ClientName: "Carla", ServiceName: "Manicure", Date: day.AddDate(0, 0, 1), Time: "10:30", Status: models.StatusCancelled, Source: models.SourceDashboard},
	}
}

func TestBuild(t *testing.T) {
	f, err := Build(testBusiness(), day, day.AddDate(0, 0, 1), testAppointments())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ScheduleSheet, ListSheet}, f.GetSheetList())

	title, err := f.GetCellValue(ScheduleSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Studio Bela: 19/10/2026 - 20/10/2026", title)

	b2, _ := f.GetCellValue(ScheduleSheet, "B2")
	c2, _ := f.GetCellValue(ScheduleSheet, "C2")
	assert.Equal(t, "19/10", b2)
	assert.Equal(t, "20/10", c2)

	// Slots sorted, with the off-grid 10:30 added.
	a3, _ := f.GetCellValue(ScheduleSheet, "A3")
	a4, _ := f.GetCellValue(ScheduleSheet, "A4")
	a5, _ := f.GetCellValue(ScheduleSheet, "A5")
	assert.Equal(t, []string{"09:00", "10:30", "14:00"}, []string{a3, a4, a5})

	b5, _ := f.GetCellValue(ScheduleSheet, "B5")
	assert.Equal(t, "[#1] Ana Silva - Corte Feminino", b5)
	c3, _ := f.GetCellValue(ScheduleSheet, "C3")
	assert.Equal(t, "[#2] Bia - Escova", c3)

	rows, err := f.GetRows(ListSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Cliente", rows[0][3])
	assert.Equal(t, "Ana Silva", rows[1][3])
	assert.Equal(t, "19/10/2026", rows[1][1])
	assert.Equal(t, "R$ 120,00", rows[1][7])
}

func TestWrite_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testBusiness(), day, day, testAppointments()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ListSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestBuild_InvalidRange(t *testing.T) {
	_, err := Build(testBusiness(), day, day.AddDate(0, 0, -1), nil)
	assert.Error(t, err)
	_, err = Build(testBusiness(), day, day.AddDate(0, 0, MaxDays), nil)
	assert.Error(t, err)
}

func TestCellStatus(t *testing.T) {
	confirmed := &models.Appointment{Status: models.StatusConfirmed}
	pending := &models.Appointment{Status: models.StatusAwaitingDeposit}
	cancelled := &models.Appointment{Status: models.StatusCancelled}

	assert.Equal(t, models.StatusPending, cellStatus([]*models.Appointment{confirmed, pending}))
	assert.Equal(t, models.StatusConfirmed, cellStatus([]*models.Appointment{cancelled, confirmed}))
	assert.Equal(t, models.StatusCancelled, cellStatus([]*models.Appointment{cancelled}))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "agenda_studio-bela_2026-10-19_to_2026-10-20.xlsx", FileName(testBusiness(), day, day.AddDate(0, 0, 1)))
}

func TestBuild_StoredDatesInBusinessZone(t *testing.T) {
	for _, tz := range []string{"Asia/Tokyo", "America/Sao_Paulo"} {
		t.Run(tz, func(t *testing.T) {
			ctx := context.Background()
			logger := zerolog.Nop()
			db, err := database.NewDB(":memory:", &logger)
			require.NoError(t, err)
			defer db.Close()

			business := &models.Business{Slug: "studio-bela", BusinessName: "Studio Bela", Timezone: tz, TimeSlots: []string{"09:00"}}
			require.NoError(t, db.CreateBusiness(ctx, business))
			loc := business.Location()
			local := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)

			require.NoError(t, db.CreateAppointment(ctx, &models.Appointment{
				BusinessID: business.ID, ServiceID: 1, ClientName: "Ana Silva", ServiceName: "Corte Feminino",
				Date: local, Time: "09:00", Status: models.StatusConfirmed, Source: models.SourceBooking,
			}))
			stored, err := db.ListAppointments(ctx, business.ID, local, local.AddDate(0, 0, 1))
			require.NoError(t, err)
			require.Len(t, stored, 1)

			f, err := Build(business, local, local, stored)
			require.NoError(t, err)
			defer f.Close()

			rows, err := f.GetRows(ListSheet)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "19/10/2026", rows[1][1])

			b3, _ := f.GetCellValue(ScheduleSheet, "B3")
			assert.Equal(t, "[#1] Ana Silva - Corte Feminino", b3)
		})
	}

	t.Run("UTC instants are shown in the business day", func(t *testing.T) {
		business := &models.Business{Slug: "studio-bela", Timezone: "Asia/Tokyo", TimeSlots: []string{"09:00"}}
		local := time.Date(2026, 10, 19, 0, 0, 0, 0, business.Location())
		list := []*models.Appointment{{ID: 1, Date: local.UTC(), Time: "09:00", Status: models.StatusConfirmed}}

		f, err := Build(business, local, local, list)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(ListSheet)
		require.NoError(t, err)
		assert.Equal(t, "19/10/2026", rows[1][1])
	})
}

func TestBuild_RangeCountsCalendarDaysAcrossDST(t *testing.T) {
	business := &models.Business{Slug: "studio-bela", Timezone: "America/New_York"}
	loc := business.Location()
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, loc)

	// 2026-03-08 springs forward, so 63 days span one hour less than 63*24h.
	_, err := Build(business, from, time.Date(2026, 4, 4, 0, 0, 0, 0, loc), nil)
	assert.Error(t, err)

	f, err := Build(business, from, time.Date(2026, 4, 3, 0, 0, 0, 0, loc), nil)
	require.NoError(t, err)
	f.Close()
}
