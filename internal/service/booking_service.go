package service

import (
	"context"
	"errors"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/models"
	"tablebook/internal/schedule"

	"github.com/rs/zerolog"
)

type BookingService struct {
	store      domain.SlotStore
	eventBus   domain.EventPublisher
	dispatcher domain.CalendarDispatcher
	retry      RetryPolicy
	now        func() time.Time
	logger     *zerolog.Logger
}

func NewBookingService(
	store domain.SlotStore,
	eventBus domain.EventPublisher,
	dispatcher domain.CalendarDispatcher,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *BookingService {
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = models.DefaultCommitRetries
	}
	return &BookingService{
		store:      store,
		eventBus:   eventBus,
		dispatcher: dispatcher,
		retry:      retry,
		now:        time.Now,
		logger:     logger,
	}
}

// CreateBooking claims every slot of req for holder, or none of them.
//
// The loaded record is purged of elapsed slots and the whole batch is checked
// against it before anything is written. Slots already held by holder are
// accepted as no-ops. A batch touching a slot held by anyone else fails with
// *ConflictError. Losing an optimistic commit to a concurrent writer reloads
// and re-validates, so the loser ends with a ConflictError when the winner
// took an overlapping slot.
//
// When cal is non-nil the newly claimed slots are merged into events and
// handed to the calendar dispatcher without waiting for the outcome.
func (s *BookingService) CreateBooking(
	ctx context.Context,
	req models.BookingRequest,
	holder string,
	cal domain.Calendar,
) (models.SharedView, error) {
	if holder == "" {
		return nil, ErrNoHolder
	}
	keys := req.Keys()
	if len(keys) == 0 {
		return nil, ErrEmptyRequest
	}

	for attempt := 1; ; attempt++ {
		now := s.now()

		record, err := s.store.Load(ctx)
		if err != nil {
			metrics.IncCommit(metrics.ResultError)
			return nil, persistenceError("load", err)
		}
		live := record.PurgeExpired(now)

		// validate the whole batch before touching anything
		claimed := make(models.BookingRequest)
		for _, k := range keys {
			current, held := live.Holder(k)
			switch {
			case !held:
				claimed.Add(k)
			case current == holder:
				// already theirs
			default:
				return nil, s.conflict(live, k, holder, len(keys), now)
			}
		}

		if len(claimed) == 0 {
			metrics.IncCommit(metrics.ResultCommitted)
			return schedule.Project(live, holder, now), nil
		}

		for _, k := range claimed.Keys() {
			live.Set(k, holder)
		}

		err = s.store.Commit(ctx, live)
		if err == nil {
			s.committed(live, claimed, holder, now, cal)
			return schedule.Project(live, holder, now), nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			metrics.IncCommit(metrics.ResultError)
			return nil, persistenceError("commit", err)
		}

		metrics.IncCommitRetry()
		s.logger.Debug().Int("attempt", attempt).Str("holder", holder).Msg("Commit lost to a concurrent writer, retrying")
		if attempt >= s.retry.MaxRetries {
			metrics.IncCommit(metrics.ResultError)
			return nil, persistenceError("commit", err)
		}
		if err := s.retry.Wait(ctx, attempt); err != nil {
			return nil, persistenceError("commit", err)
		}
	}
}

func (s *BookingService) conflict(live *models.SlotRecord, k models.SlotKey, holder string, requested int, now time.Time) error {
	metrics.IncCommit(metrics.ResultConflict)
	s.logger.Info().
		Str("holder", holder).
		Int("table", k.Table).
		Str("date", k.Date).
		Int("interval", int(k.Interval)).
		Msg("Booking conflict")

	s.publish(events.EventBookingConflict, events.ConflictPayload{
		Holder:    holder,
		Table:     k.Table,
		Date:      k.Date,
		Interval:  int(k.Interval),
		Requested: requested,
		At:        now,
	})

	return &ConflictError{Slot: k, View: schedule.Project(live, holder, now)}
}

func (s *BookingService) committed(live *models.SlotRecord, claimed models.BookingRequest, holder string, now time.Time, cal domain.Calendar) {
	metrics.IncCommit(metrics.ResultCommitted)
	s.logger.Info().
		Str("holder", holder).
		Int64("version", live.Version).
		Ints("tables", claimed.Tables()).
		Msg("Booking committed")

	s.publish(events.EventBookingCommitted, events.CommittedPayload{
		Holder:      holder,
		Version:     live.Version,
		Slots:       len(claimed.Keys()),
		Tables:      claimed.Tables(),
		CommittedAt: now,
	})

	if cal == nil || s.dispatcher == nil {
		return
	}
	schedule.Merge(claimed, func(ev models.BookingEvent) {
		if !s.dispatcher.Dispatch(cal, holder, ev) {
			s.logger.Warn().Str("holder", holder).Int("table", ev.TableNumber).Msg("Calendar queue full, event dropped")
		}
	})
}

func (s *BookingService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

// SharedView returns the anonymized view for viewer. Store failures degrade
// to an empty view.
func (s *BookingService) SharedView(ctx context.Context, viewer string) models.SharedView {
	return schedule.Project(s.load(ctx), viewer, s.now())
}

// Itinerary returns the merged future reservations of holder.
func (s *BookingService) Itinerary(ctx context.Context, holder string) []models.BookingEvent {
	return schedule.Itinerary(s.load(ctx), holder, s.now())
}

// Purge rewrites the store without elapsed slots and reports how many were dropped.
func (s *BookingService) Purge(ctx context.Context) (int, error) {
	for attempt := 1; ; attempt++ {
		record, err := s.store.Load(ctx)
		if err != nil {
			return 0, persistenceError("load", err)
		}
		live := record.PurgeExpired(s.now())
		dropped := record.Len() - live.Len()
		if dropped == 0 {
			return 0, nil
		}

		err = s.store.Commit(ctx, live)
		if err == nil {
			return dropped, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) || attempt >= s.retry.MaxRetries {
			return 0, persistenceError("commit", err)
		}
		if err := s.retry.Wait(ctx, attempt); err != nil {
			return 0, persistenceError("commit", err)
		}
	}
}

// Snapshot returns the raw stored record, holders included.
func (s *BookingService) Snapshot(ctx context.Context) (*models.SlotRecord, error) {
	record, err := s.store.Load(ctx)
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return record, nil
}

func (s *BookingService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *BookingService) load(ctx context.Context) *models.SlotRecord {
	record, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load slots, serving empty view")
		return models.NewSlotRecord()
	}
	return record
}
