// Package export renders the reservation table as an Excel workbook.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/schedule"

	"github.com/xuri/excelize/v2"
)

const (
	ReservationsSheet = "Reservations"
	OccupancySheet    = "Occupancy"
)

type row struct {
	holder string
	event  models.BookingEvent
}

// Workbook builds a workbook with two sheets: merged reservations per holder,
// and a per-table count of booked slots by date. Slots starting at or before
// now are left out.
func Workbook(record *models.SlotRecord, now time.Time) (*excelize.File, error) {
	live := record.PurgeExpired(now)

	f := excelize.NewFile()
	index, err := f.NewSheet(ReservationsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(OccupancySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	header, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	writeReservations(f, reservations(live), header)
	writeOccupancy(f, live, header)

	return f, nil
}

func reservations(live *models.SlotRecord) []row {
	holders := make(map[string]struct{})
	for _, k := range live.Keys() {
		h, _ := live.Holder(k)
		holders[h] = struct{}{}
	}

	var rows []row
	for holder := range holders {
		schedule.Merge(live.HeldBy(holder), func(ev models.BookingEvent) {
			rows = append(rows, row{holder: holder, event: ev})
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.event.Start.Equal(b.event.Start) {
			return a.event.Start.Before(b.event.Start)
		}
		if a.event.TableNumber != b.event.TableNumber {
			return a.event.TableNumber < b.event.TableNumber
		}
		return a.holder < b.holder
	})
	return rows
}

func writeReservations(f *excelize.File, rows []row, header int) {
	for i, h := range []string{"Table", "Date", "Start", "End", "Holder"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ReservationsSheet, cell, h)
	}
	_ = f.SetCellStyle(ReservationsSheet, "A1", "E1", header)

	for i, r := range rows {
		n := i + 2
		_ = f.SetCellValue(ReservationsSheet, fmt.Sprintf("A%d", n), r.event.TableNumber)
		_ = f.SetCellValue(ReservationsSheet, fmt.Sprintf("B%d", n), r.event.Start.Format(models.DateLayout))
		_ = f.SetCellValue(ReservationsSheet, fmt.Sprintf("C%d", n), r.event.Start.Format("15:04"))
		_ = f.SetCellValue(ReservationsSheet, fmt.Sprintf("D%d", n), r.event.End.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(ReservationsSheet, fmt.Sprintf("E%d", n), r.holder)
	}

	_ = f.SetColWidth(ReservationsSheet, "A", "A", 8)
	_ = f.SetColWidth(ReservationsSheet, "B", "D", 18)
	_ = f.SetColWidth(ReservationsSheet, "E", "E", 30)
}

// writeOccupancy lays out dates down column A and tables 1..10 across.
func writeOccupancy(f *excelize.File, live *models.SlotRecord, header int) {
	counts := make(map[string]map[int]int)
	for table, dates := range live.Data {
		for date, slots := range dates {
			if counts[date] == nil {
				counts[date] = make(map[int]int)
			}
			counts[date][table] += len(slots)
		}
	}
	dates := make([]string, 0, len(counts))
	for d := range counts {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	_ = f.SetCellValue(OccupancySheet, "A1", "Date")
	for table := models.MinTable; table <= models.MaxTable; table++ {
		cell, _ := excelize.CoordinatesToCellName(table+1, 1)
		_ = f.SetCellValue(OccupancySheet, cell, fmt.Sprintf("Table %d", table))
	}
	last, _ := excelize.CoordinatesToCellName(models.MaxTable+1, 1)
	_ = f.SetCellStyle(OccupancySheet, "A1", last, header)

	for i, date := range dates {
		n := i + 2
		_ = f.SetCellValue(OccupancySheet, fmt.Sprintf("A%d", n), date)
		for table := models.MinTable; table <= models.MaxTable; table++ {
			cell, _ := excelize.CoordinatesToCellName(table+1, n)
			_ = f.SetCellValue(OccupancySheet, cell, counts[date][table])
		}
	}
	_ = f.SetColWidth(OccupancySheet, "A", "A", 14)
}

// WriteFile saves the workbook for record at path, creating parent directories.
func WriteFile(record *models.SlotRecord, now time.Time, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := Workbook(record, now)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook: %w", err)
	}
	return nil
}
