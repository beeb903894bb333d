package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agendei/internal/database"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	logger := zerolog.Nop()
	return mux, NewWithService(srv, "agenda_tid", "", &logger)
}

func testAppointment(id int64) *models.Appointment {
	return &models.Appointment{
		ID:          id,
		BusinessID:  1,
		ClientName:  "Ana Silva",
		ClientPhone: "(11) 99999-9999",
		ServiceName: "Corte Feminino",
		Date:        time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		Time:        "14:00",
		Status:      models.StatusConfirmed,
		Source:      models.SourceBooking,
		CreatedAt:   time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
}

func decodeValues(t *testing.T, r *http.Request) [][]interface{} {
	t.Helper()
	var vr sheets.ValueRange
	require.NoError(t, json.NewDecoder(r.Body).Decode(&vr))
	return vr.Values
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {float64(456)}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow(456)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
}

func TestSheetsService_UpsertAppends(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	var appended [][]interface{}
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		appended = decodeValues(t, r)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Appointments!A10:M10"},
		})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testAppointment(789)))
	require.Len(t, appended, 1)
	assert.Equal(t, float64(789), appended[0][0])
	assert.Equal(t, "2026-10-19", appended[0][2])
	assert.Equal(t, "Ana Silva", appended[0][5])

	row, ok := s.getCachedRow(789)
	assert.True(t, ok)
	assert.Equal(t, 10, row)
}

func TestSheetsService_UpsertUpdatesCachedRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(123, 2)

	var updated [][]interface{}
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A2:M2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		updated = decodeValues(t, r)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	a := testAppointment(123)
	a.Status = models.StatusCancelled
	require.NoError(t, s.UpsertAppointment(context.Background(), a))
	require.Len(t, updated, 1)
	assert.Equal(t, models.StatusCancelled, updated[0][4])
	assert.Len(t, updated[0], len(headers))
}

func TestSheetsService_UpdateStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"5"}}})
	})

	var status [][]interface{}
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!E2:E2", func(w http.ResponseWriter, r *http.Request) {
		status = decodeValues(t, r)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	ctx := context.Background()
	require.NoError(t, s.UpdateAppointmentStatus(ctx, 5, models.StatusPending))
	assert.Equal(t, [][]interface{}{{models.StatusPending}}, status)

	assert.ErrorIs(t, s.UpdateAppointmentStatus(ctx, 6, models.StatusPending), ErrRowNotFound)
	_, err := s.FindAppointmentRow(ctx, 0)
	assert.Error(t, err)
}

func TestSheetsService_ReplaceAppointmentsSheet(t *testing.T) {
	mux, s := setupMockServer(t)

	var mu sync.Mutex
	var calls []string
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:M:clear", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, "clear")
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	var written [][]interface{}
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, "update")
		mu.Unlock()
		written = decodeValues(t, r)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	list := []*models.Appointment{testAppointment(1), testAppointment(2)}
	require.NoError(t, s.ReplaceAppointmentsSheet(context.Background(), list))
	assert.Equal(t, []string{"clear", "update"}, calls)
	require.Len(t, written, 3)
	assert.Equal(t, "ID", written[0][0])

	row, ok := s.getCachedRow(2)
	assert.True(t, ok)
	assert.Equal(t, 3, row)

	s.ClearCache()
	_, ok = s.getCachedRow(2)
	assert.False(t, ok)
}

func TestGetServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"agendei@project.iam.gserviceaccount.com"}`), 0o600))

	email, err := GetServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "agendei@project.iam.gserviceaccount.com", email)

	_, err = GetServiceAccountEmail(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewSheetsService_BadCredentials(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	_, err := NewSheetsService(context.Background(), path, "tid", "", &logger)
	assert.Error(t, err)
}

func TestSheetsService_UpsertStoredAppointmentKeepsBusinessDay(t *testing.T) {
	for _, tz := range []string{"Asia/Tokyo", "America/Sao_Paulo"} {
		t.Run(tz, func(t *testing.T) {
			ctx := context.Background()
			logger := zerolog.Nop()
			db, err := database.NewDB(":memory:", &logger)
			require.NoError(t, err)
			defer db.Close()

			business := &models.Business{Slug: "studio-bela", BusinessName: "Studio Bela", Timezone: tz}
			require.NoError(t, db.CreateBusiness(ctx, business))
			a := testAppointment(0)
			a.BusinessID = business.ID
			a.Date = time.Date(2026, 10, 19, 0, 0, 0, 0, business.Location())
			require.NoError(t, db.CreateAppointment(ctx, a))

			stored, err := db.GetAppointment(ctx, business.ID, a.ID)
			require.NoError(t, err)

			mux, s := setupMockServer(t)
			mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
			})
			var appended [][]interface{}
			mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Appointments!A:A:append", func(w http.ResponseWriter, r *http.Request) {
				appended = decodeValues(t, r)
				_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
					Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Appointments!A2:M2"},
				})
			})

			require.NoError(t, s.UpsertAppointment(ctx, stored))
			require.Len(t, appended, 1)
			assert.Equal(t, "2026-10-19", appended[0][2])
		})
	}
}
