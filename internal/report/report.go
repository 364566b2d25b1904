// Package report renders attendance ledger records as an XLSX workbook.
package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kozaktomas/punchclock/internal/database"
)

const (
	RecordsSheet = "Attendance"
	SummarySheet = "Summary"

	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var recordHeader = []any{
	"Date", "Code", "Name", "In", "In location", "Out", "Out location",
	"Late (min)", "Worked (min)", "Status",
}

var summaryHeader = []any{
	"Code", "Name", "Days", "Present", "Half", "Absent", "Open", "Late (min)", "Worked (min)",
}

// Summary aggregates one employee's records.
type Summary struct {
	EmployeeID     string `json:"employee_id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Days           int    `json:"days"`
	Present        int    `json:"present"`
	Half           int    `json:"half"`
	Absent         int    `json:"absent"`
	Open           int    `json:"open"` // punched in, not out
	LateMinutes    int    `json:"late_minutes"`
	WorkingMinutes int    `json:"working_minutes"`
}

// Summarize groups records per employee, ordered by code.
func Summarize(records []database.AttendanceRecord) []Summary {
	byEmployee := map[string]*Summary{}
	for _, r := range records {
		s, ok := byEmployee[r.EmployeeID]
		if !ok {
			s = &Summary{EmployeeID: r.EmployeeID, Code: r.EmployeeCode, Name: r.EmployeeName}
			byEmployee[r.EmployeeID] = s
		}
		s.Days++
		s.LateMinutes += r.LateMinutes
		s.WorkingMinutes += r.WorkingMinutes
		switch {
		case r.OutTime == nil:
			s.Open++
		case r.Status == "PRESENT":
			s.Present++
		case r.Status == "HALF":
			s.Half++
		default:
			s.Absent++
		}
	}

	out := make([]Summary, 0, len(byEmployee))
	for _, s := range byEmployee {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Summary) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.EmployeeID, b.EmployeeID))
	})
	return out
}

// Write renders records into a workbook with a detail and a summary sheet.
// Times are shown in loc.
func Write(w io.Writer, records []database.AttendanceRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RecordsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b database.AttendanceRecord) int {
		return cmp.Or(cmp.Compare(a.WorkDate, b.WorkDate), cmp.Compare(a.EmployeeCode, b.EmployeeCode))
	})

	if err := writeRow(f, RecordsSheet, 1, recordHeader); err != nil {
		return err
	}
	for i, r := range sorted {
		out, outLocation := "", ""
		if r.OutTime != nil {
			out = r.OutTime.In(loc).Format("15:04")
			outLocation = r.OutLocation
		}
		row := []any{
			r.WorkDate, r.EmployeeCode, r.EmployeeName,
			r.InTime.In(loc).Format("15:04"), r.InLocation, out, outLocation,
			r.LateMinutes, r.WorkingMinutes, r.Status,
		}
		if err := writeRow(f, RecordsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, SummarySheet, 1, summaryHeader); err != nil {
		return err
	}
	for i, s := range Summarize(records) {
		row := []any{s.Code, s.Name, s.Days, s.Present, s.Half, s.Absent, s.Open, s.LateMinutes, s.WorkingMinutes}
		if err := writeRow(f, SummarySheet, i+2, row); err != nil {
			return err
		}
	}

	for _, sheet := range []string{RecordsSheet, SummarySheet} {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("style header of %s: %w", sheet, err)
		}
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freeze header of %s: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(RecordsSheet, "C", "C", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(RecordsSheet, "E", "E", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(RecordsSheet, "G", "G", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
