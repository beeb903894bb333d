package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agendei/internal/config"
	"agendei/internal/domain"
	"agendei/internal/export"
	"agendei/internal/models"
	"agendei/internal/service"
	"agendei/internal/wizard"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid JSON body")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

// parseDay reads a YYYY-MM-DD value as midnight in loc.
func parseDay(raw, field string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.NewValidationError(field, field+" is required")
	}
	day, err := time.ParseInLocation(models.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "invalid date format; expected YYYY-MM-DD")
	}
	return day, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(name, "invalid id")
	}
	return id, nil
}

// Public booking flow.

func (s *HTTPServer) handleLanding(w http.ResponseWriter, r *http.Request) {
	landing, err := s.svc.Booking.Landing(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, landing)
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	business, err := s.svc.Businesses.GetBySlug(r.Context(), slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	day, err := parseDay(r.URL.Query().Get("date"), "date", business.Location())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slots, err := s.svc.Booking.ListSlots(r.Context(), slug, day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(models.DateLayout), "slots": slots})
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Booking.Start(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Booking.Get(r.Context(), r.PathValue("slug"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleChooseService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServiceID int64 `json:"service_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.svc.Booking.ChooseService(r.Context(), r.PathValue("slug"), r.PathValue("id"), body.ServiceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleChooseDate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slug := r.PathValue("slug")
	business, err := s.svc.Businesses.GetBySlug(r.Context(), slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	day, err := parseDay(body.Date, "date", business.Location())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	view, err := s.svc.Booking.ChooseDate(r.Context(), slug, r.PathValue("id"), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleChooseTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time string `json:"time"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.svc.Booking.ChooseTime(r.Context(), r.PathValue("slug"), r.PathValue("id"), strings.TrimSpace(body.Time))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Booking.Advance(r.Context(), r.PathValue("slug"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Booking.GoBack(r.Context(), r.PathValue("slug"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	var details wizard.Details
	if err := decodeJSON(w, r, &details); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.svc.Booking.Submit(r.Context(), r.PathValue("slug"), r.PathValue("id"), details)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// Dashboard.

func (s *HTTPServer) currentBusiness(w http.ResponseWriter, r *http.Request) (*models.Business, bool) {
	client, ok := clientFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingKey.Error())
		return nil, false
	}
	business, err := s.svc.Businesses.Get(r.Context(), client.BusinessID)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return business, true
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, business)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	var profile models.BusinessProfile
	if err := decodeJSON(w, r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	business, err := s.svc.Businesses.UpdateProfile(r.Context(), client.BusinessID, profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	services, err := s.svc.Catalog.ListServices(r.Context(), client.BusinessID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	var in service.ServiceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.svc.Catalog.CreateService(r.Context(), client.BusinessID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in service.ServiceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.svc.Catalog.UpdateService(r.Context(), client.BusinessID, id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeactivateService(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.svc.Catalog.DeactivateService(r.Context(), client.BusinessID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	clients, err := s.svc.Catalog.ListClients(r.Context(), client.BusinessID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (s *HTTPServer) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	var in service.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.svc.Catalog.CreateClient(r.Context(), client.BusinessID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListAppointments accepts either ?date= or ?from=&to=.
func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	loc := business.Location()
	q := r.URL.Query()

	var (
		appointments []*models.Appointment
		err          error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		var from, to time.Time
		if from, err = parseDay(q.Get("from"), "from", loc); err == nil {
			if to, err = parseDay(q.Get("to"), "to", loc); err == nil {
				appointments, err = s.svc.Appointments.ListRange(r.Context(), business.ID, from, to)
			}
		}
	} else {
		var day time.Time
		if day, err = parseDay(q.Get("date"), "date", loc); err == nil {
			appointments, err = s.svc.Appointments.ListDay(r.Context(), business.ID, day)
		}
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	var body struct {
		ClientID  int64  `json:"client_id"`
		ServiceID int64  `json:"service_id"`
		Date      string `json:"date"`
		Time      string `json:"time"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := parseDay(body.Date, "date", business.Location())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := s.svc.Appointments.CreateFromDashboard(r.Context(), business.ID, body.ClientID, body.ServiceID, day, body.Time)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	client, _ := clientFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.svc.Appointments.UpdateStatus(r.Context(), client.BusinessID, id, strings.TrimSpace(body.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	loc := business.Location()
	from, err := parseDay(r.URL.Query().Get("from"), "from", loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"), "to", loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if days := models.CalendarDays(from, to, loc); days > export.MaxDays {
		writeServiceError(w, domain.NewValidationError("to", fmt.Sprintf("range is limited to %d days", export.MaxDays)))
		return
	}

	appointments, err := s.svc.Appointments.ListRange(r.Context(), business.ID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Render first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := export.Write(&buf, business, from, to, appointments); err != nil {
		s.log.Error().Err(err).Int64("business_id", business.ID).Msg("Export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(business, from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleResync rewrites the spreadsheet mirror with the given range.
func (s *HTTPServer) handleResync(w http.ResponseWriter, r *http.Request) {
	if s.svc.Mirror == nil {
		writeError(w, http.StatusNotImplemented, "google sheets integration is disabled")
		return
	}
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	loc := business.Location()
	from, err := parseDay(r.URL.Query().Get("from"), "from", loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"), "to", loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	appointments, err := s.svc.Appointments.ListRange(r.Context(), business.ID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.svc.Mirror.ReplaceAppointmentsSheet(r.Context(), appointments); err != nil {
		s.log.Error().Err(err).Int64("business_id", business.ID).Msg("Sheets resync failed")
		writeError(w, http.StatusBadGateway, "sheets resync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": len(appointments)})
}

func hasPermission(client config.APIClientKey, permission string) bool {
	return authorize(client, permission) == nil
}
