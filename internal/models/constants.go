package models

const (
	MinTable = 1
	MaxTable = 10
)

const (
	// CalendarSummary is the title of events pushed to a holder's calendar.
	CalendarSummary = "Table reservation"

	// DefaultCommitRetries bounds optimistic commit attempts per request.
	DefaultCommitRetries = 5

	// CalendarQueueSize is the buffer of the calendar dispatch channel.
	CalendarQueueSize = 256

	// BookingRateLimit commits per holder per BookingRateWindow.
	BookingRateLimit = 30

	// BookingRateWindow in seconds.
	BookingRateWindow = 60
)

const (
	SyncStatusSent   = "sent"
	SyncStatusFailed = "failed"
)
