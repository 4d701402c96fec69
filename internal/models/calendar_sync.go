package models

import "time"

// CalendarSync is one recorded calendar push attempt.
type CalendarSync struct {
	ID          int64     `json:"id"`
	Holder      string    `json:"holder"`
	TableNumber int       `json:"table_number"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status"`
	LastError   *string   `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
}
