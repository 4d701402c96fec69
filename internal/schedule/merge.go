// Package schedule holds the pure slot algorithms: merging a holder's slots
// into contiguous time ranges and projecting the shared view.
package schedule

import (
	"sort"
	"time"

	"tablebook/internal/models"
)

type point struct {
	date     string
	interval models.Interval
	at       time.Time
}

// Merge walks every table of slots in ascending order and calls visit once
// per contiguous run. Runs are split only when two consecutive slots are
// more than one interval width apart in absolute time, so a run may cross
// midnight. Slots on unparseable dates are skipped.
func Merge(slots models.BookingRequest, visit func(models.BookingEvent)) {
	for _, table := range slots.Tables() {
		points := flatten(slots[table])
		if len(points) == 0 {
			continue
		}

		start := points[0].at
		prev := points[0].at
		for _, p := range points[1:] {
			if p.at.Sub(prev) > models.IntervalWidth {
				visit(models.BookingEvent{TableNumber: table, Start: start, End: prev.Add(models.IntervalWidth)})
				start = p.at
			}
			prev = p.at
		}
		visit(models.BookingEvent{TableNumber: table, Start: start, End: prev.Add(models.IntervalWidth)})
	}
}

// Events collects the merged runs of slots.
func Events(slots models.BookingRequest) []models.BookingEvent {
	events := []models.BookingEvent{}
	Merge(slots, func(ev models.BookingEvent) {
		events = append(events, ev)
	})
	return events
}

func flatten(dates map[string][]models.Interval) []point {
	var points []point
	seen := make(map[time.Time]struct{})
	for date, intervals := range dates {
		day, err := models.ParseDate(date)
		if err != nil {
			continue
		}
		for _, interval := range intervals {
			at := models.At(day, interval)
			if _, dup := seen[at]; dup {
				continue
			}
			seen[at] = struct{}{}
			points = append(points, point{date: date, interval: interval, at: at})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].date != points[j].date {
			return points[i].date < points[j].date
		}
		return points[i].interval < points[j].interval
	})
	return points
}
