package api

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tablebook/internal/models"
)

// FieldError is one rejected part of a booking payload.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Msg)
	}
	return "invalid booking: " + strings.Join(parts, "; ")
}

// bookingPayload is the wire shape of a booking request: table -> date -> intervals.
type bookingPayload map[string]map[string][]int

// ValidateBooking checks every table, date and interval of the payload and
// converts it into a request. Every requested slot must start after now.
func ValidateBooking(payload bookingPayload, now time.Time) (models.BookingRequest, ValidationErrors) {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	if len(payload) == 0 {
		add("data", "at least one table is required")
		return nil, errs
	}

	req := make(models.BookingRequest)
	for _, tableKey := range sortedKeys(payload) {
		field := "data." + tableKey
		table, err := strconv.Atoi(tableKey)
		if err != nil || table < models.MinTable || table > models.MaxTable {
			add(field, "table must be between %d and %d", models.MinTable, models.MaxTable)
			continue
		}

		dates := payload[tableKey]
		if len(dates) == 0 {
			add(field, "at least one date is required")
			continue
		}

		for _, date := range sortedKeys(dates) {
			field := field + "." + date
			day, err := models.ParseDate(date)
			if err != nil {
				add(field, "date must be in YYYY-MM-DD format")
				continue
			}

			intervals := dates[date]
			if len(intervals) == 0 {
				add(field, "at least one interval is required")
				continue
			}

			for i, raw := range intervals {
				field := fmt.Sprintf("%s[%d]", field, i)
				interval := models.Interval(raw)
				if !interval.Valid() {
					add(field, "interval must be between %d and %d", models.MinInterval, models.MaxInterval)
					continue
				}
				if !models.At(day, interval).After(now) {
					add(field, "booking must start in the future")
					continue
				}
				req.Add(models.SlotKey{Table: table, Date: date, Interval: interval})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	req.Normalize()
	return req, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
