// Package export renders a business agenda as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"agendei/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	ScheduleSheet = "Agenda"
	ListSheet     = "Agendamentos"

	// MaxDays bounds the width of the schedule grid.
	MaxDays = 62
)

var listHeaders = []string{"ID", "Data", "Hora", "Cliente", "Telefone", "E-mail", "Serviço", "Preço", "Duração", "Status", "Origem"}

var statusFill = map[string]string{
	models.StatusConfirmed:       "#C6EFCE",
	models.StatusPending:         "#FFEB9C",
	models.StatusAwaitingDeposit: "#FFEB9C",
	models.StatusCancelled:       "#FFC7CE",
}

// Build creates a workbook with a slot-by-day grid and a flat list of the
// appointments between from and to inclusive.
func Build(business *models.Business, from, to time.Time, appointments []*models.Appointment) (*excelize.File, error) {
	loc := business.Location()
	from = models.StartOfDay(from, loc)
	to = models.StartOfDay(to, loc)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range: %s - %s", from.Format(models.DateLayout), to.Format(models.DateLayout))
	}
	if days := models.CalendarDays(from, to, loc); days > MaxDays {
		return nil, fmt.Errorf("date range too long: %d days, max %d", days, MaxDays)
	}

	f := excelize.NewFile()

	index, err := f.NewSheet(ScheduleSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := writeSchedule(f, business, from, to, appointments); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(ListSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeList(f, loc, appointments); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook built by Build to w.
func Write(w io.Writer, business *models.Business, from, to time.Time, appointments []*models.Appointment) error {
	f, err := Build(business, from, to, appointments)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// FileName is the attachment name for an export.
func FileName(business *models.Business, from, to time.Time) string {
	return fmt.Sprintf("agenda_%s_%s_to_%s.xlsx", business.Slug, from.Format(models.DateLayout), to.Format(models.DateLayout))
}

func writeSchedule(f *excelize.File, business *models.Business, from, to time.Time, appointments []*models.Appointment) error {
	_ = f.SetCellValue(ScheduleSheet, "A1", fmt.Sprintf("%s: %s - %s",
		business.BusinessName, from.Format("02/01/2006"), to.Format("02/01/2006")))

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	dateCols := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(ScheduleSheet, cell, d.Format("02/01"))
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, headerStyle)
		dateCols[d.Format(models.DateLayout)] = col
		col++
	}
	lastCol, _ := excelize.ColumnNumberToName(col - 1)

	slotRows := make(map[string]int)
	slotStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}
	for i, slot := range scheduleSlots(business, appointments) {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(ScheduleSheet, cell, slot)
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, slotStyle)
		slotRows[slot] = row
	}

	cells := make(map[string][]*models.Appointment)
	for _, a := range appointments {
		c, ok := dateCols[a.Date.In(business.Location()).Format(models.DateLayout)]
		if !ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, slotRows[a.Time])
		cells[cell] = append(cells[cell], a)
	}

	styles := make(map[string]int)
	for cell, list := range cells {
		var text strings.Builder
		for i, a := range list {
			if i > 0 {
				text.WriteString("\n")
			}
			fmt.Fprintf(&text, "[#%d] %s - %s", a.ID, a.ClientName, a.ServiceName)
		}
		_ = f.SetCellValue(ScheduleSheet, cell, text.String())

		color := statusFill[cellStatus(list)]
		styleID, ok := styles[color]
		if !ok {
			styleID, err = f.NewStyle(&excelize.Style{
				Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
				Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
			})
			if err != nil {
				return err
			}
			styles[color] = styleID
		}
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, styleID)
	}

	_ = f.SetColWidth(ScheduleSheet, "A", "A", 12)
	if lastCol != "A" {
		_ = f.SetColWidth(ScheduleSheet, "B", lastCol, 28)
		_ = f.MergeCell(ScheduleSheet, "A1", lastCol+"1")
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	return f.SetCellStyle(ScheduleSheet, "A1", "A1", titleStyle)
}

func writeList(f *excelize.File, loc *time.Location, appointments []*models.Appointment) error {
	for i, h := range listHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ListSheet, cell, h)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(listHeaders), 1)
	_ = f.SetCellStyle(ListSheet, "A1", lastHeader, boldStyle)

	for i, a := range appointments {
		row := []interface{}{
			a.ID,
			a.Date.In(loc).Format("02/01/2006"),
			a.Time,
			a.ClientName,
			a.ClientPhone,
			a.ClientEmail,
			a.ServiceName,
			a.ServicePrice,
			a.ServiceDuration,
			a.Status,
			a.Source,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ListSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(ListSheet, "A", "K", 16)
}

// scheduleSlots returns the configured slots plus any off-grid time that an
// appointment uses, sorted.
func scheduleSlots(business *models.Business, appointments []*models.Appointment) []string {
	seen := make(map[string]bool)
	var slots []string
	for _, s := range business.TimeSlots {
		if !seen[s] {
			seen[s] = true
			slots = append(slots, s)
		}
	}
	for _, a := range appointments {
		if !seen[a.Time] {
			seen[a.Time] = true
			slots = append(slots, a.Time)
		}
	}
	sort.Strings(slots)
	return slots
}

// cellStatus picks the color of a cell: any pending appointment wins over
// confirmed, and cancelled shows only when everything is cancelled.
func cellStatus(list []*models.Appointment) string {
	status := models.StatusCancelled
	for _, a := range list {
		switch a.Status {
		case models.StatusPending, models.StatusAwaitingDeposit:
			return models.StatusPending
		case models.StatusConfirmed:
			status = models.StatusConfirmed
		}
	}
	return status
}
