package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"agendei/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrRowNotFound is returned when an appointment has no row in the sheet.
var ErrRowNotFound = errors.New("appointment row not found")

const (
	DefaultSheetName = "Appointments"
	lastColumn       = "M"
	statusColumn     = "E"
	timestampLayout  = "2006-01-02 15:04:05"
)

var headers = []interface{}{
	"ID", "Business ID", "Date", "Time", "Status", "Client", "Phone", "Email",
	"Service", "Price", "Duration", "Source", "Created At",
}

var updatedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsService mirrors appointments into one sheet of a spreadsheet, one
// row per appointment keyed by the id in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewWithService(srv, spreadsheetID, sheetName, logger), nil
}

// NewWithService wraps an already configured Sheets client.
func NewWithService(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
		logger:        logger,
	}
}

// StartCacheRefresh warms the row cache now and then every interval until
// ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(cctx); err != nil {
			s.logger.Warn().Err(err).Msg("Sheets cache warm-up failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail returns the address the spreadsheet must be shared with.
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache rebuilds the row index from the id column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) AppendAppointment(ctx context.Context, a *models.Appointment) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{appointmentRowValues(a)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if m := updatedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(a.ID, row)
			}
		}
	}
	return nil
}

// UpsertAppointment rewrites the appointment row or appends one.
func (s *SheetsService) UpsertAppointment(ctx context.Context, a *models.Appointment) error {
	if a == nil {
		return errors.New("appointment is nil")
	}

	rowIdx, err := s.FindAppointmentRow(ctx, a.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendAppointment(ctx, a)
		}
		return err
	}

	rangeData := s.rng(fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx))
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{appointmentRowValues(a)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateAppointmentStatus rewrites only the status cell.
func (s *SheetsService) UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status string) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	statusRange := s.rng(fmt.Sprintf("%s%d:%s%d", statusColumn, rowIdx, statusColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindAppointmentRow returns the 1-based row of appointmentID.
func (s *SheetsService) FindAppointmentRow(ctx context.Context, appointmentID int64) (int, error) {
	if appointmentID == 0 {
		return 0, errors.New("appointment id is required")
	}

	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == appointmentID {
			rowIdx := i + 1
			s.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceAppointmentsSheet clears the sheet and writes the header plus one
// row per appointment.
func (s *SheetsService) ReplaceAppointmentsSheet(ctx context.Context, appointments []*models.Appointment) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A:"+lastColumn), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear appointments sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(appointments)+1)
	values = append(values, headers)
	for _, a := range appointments {
		values = append(values, appointmentRowValues(a))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update appointments sheet: %w", err)
	}

	cache := make(map[int64]int, len(appointments))
	for i, a := range appointments {
		cache[a.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func (s *SheetsService) rng(cells string) string {
	return s.sheetName + "!" + cells
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func cellID(v interface{}) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

func appointmentRowValues(a *models.Appointment) []interface{} {
	return []interface{}{
		a.ID,
		a.BusinessID,
		a.Date.Format(models.DateLayout),
		a.Time,
		a.Status,
		a.ClientName,
		a.ClientPhone,
		a.ClientEmail,
		a.ServiceName,
		a.ServicePrice,
		a.ServiceDuration,
		a.Source,
		a.CreatedAt.Format(timestampLayout),
	}
}
