package domain

import (
	"context"
	"errors"
	"time"

	"tablebook/internal/models"
)

// ErrConcurrentModification is returned by SlotStore.Commit when the stored
// version no longer matches the version the record was loaded at.
var ErrConcurrentModification = errors.New("slot record was modified concurrently")

// SlotStore persists the single reservation record.
type SlotStore interface {
	// Load returns the current record, or an empty record at version 0 when
	// nothing has been persisted yet.
	Load(ctx context.Context) (*models.SlotRecord, error)
	// Commit writes record if the stored version still equals record.Version
	// and bumps record.Version on success.
	Commit(ctx context.Context, record *models.SlotRecord) error
	Ping(ctx context.Context) error
}

// Calendar pushes a merged reservation to the owner's external calendar.
type Calendar interface {
	Insert(ctx context.Context, event models.BookingEvent, owner string) error
}

// CalendarDispatcher hands calendar inserts off without blocking the caller.
type CalendarDispatcher interface {
	Dispatch(cal Calendar, owner string, event models.BookingEvent) bool
}

type CalendarSyncLog interface {
	RecordCalendarSync(ctx context.Context, entry *models.CalendarSync) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, req models.BookingRequest, holder string, cal Calendar) (models.SharedView, error)
	SharedView(ctx context.Context, viewer string) models.SharedView
	Itinerary(ctx context.Context, holder string) []models.BookingEvent
	Ready(ctx context.Context) error
}
