package schedule

import (
	"time"

	"tablebook/internal/models"
)

// Project builds the shared view of record for viewer: expired slots are
// dropped, slots held by anyone else collapse to the anonymous marker.
func Project(record *models.SlotRecord, viewer string, now time.Time) models.SharedView {
	live := record.PurgeExpired(now)
	view := make(models.SharedView, len(live.Data))
	for table, dates := range live.Data {
		tableView := make(map[string]map[models.Interval]models.Occupant, len(dates))
		for date, slots := range dates {
			dateView := make(map[models.Interval]models.Occupant, len(slots))
			for interval, holder := range slots {
				if viewer != "" && holder == viewer {
					dateView[interval] = models.Occupant{Holder: holder}
				} else {
					dateView[interval] = models.Anonymous
				}
			}
			tableView[date] = dateView
		}
		view[table] = tableView
	}
	return view
}

// Itinerary returns the merged future reservations of holder.
func Itinerary(record *models.SlotRecord, holder string, now time.Time) []models.BookingEvent {
	return Events(record.PurgeExpired(now).HeldBy(holder))
}
