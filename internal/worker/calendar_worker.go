package worker

import (
	"context"
	"encoding/json"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/metrics"
	"tablebook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// calendarJob is one pending insert into a holder's calendar.
type calendarJob struct {
	cal   domain.Calendar
	owner string
	event models.BookingEvent
}

// deadLetter is what gets pushed to redis when an insert fails.
type deadLetter struct {
	Owner    string              `json:"owner"`
	Event    models.BookingEvent `json:"event"`
	Error    string              `json:"error"`
	FailedAt time.Time           `json:"failed_at"`
}

// CalendarWorker pushes merged reservations to external calendars in the
// background. Each insert is attempted once.
type CalendarWorker struct {
	queue         chan calendarJob
	syncLog       domain.CalendarSyncLog
	redis         *redis.Client
	deadLetterKey string
	timeout       time.Duration
	logger        *zerolog.Logger
}

type CalendarWorkerOptions struct {
	QueueSize     int
	Timeout       time.Duration
	DeadLetterKey string
	SyncLog       domain.CalendarSyncLog
	Redis         *redis.Client
}

func NewCalendarWorker(opts CalendarWorkerOptions, logger *zerolog.Logger) *CalendarWorker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = models.CalendarQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CalendarWorker{
		queue:         make(chan calendarJob, opts.QueueSize),
		syncLog:       opts.SyncLog,
		redis:         opts.Redis,
		deadLetterKey: opts.DeadLetterKey,
		timeout:       opts.Timeout,
		logger:        logger,
	}
}

// Dispatch queues the insert and returns false when the queue is full.
func (w *CalendarWorker) Dispatch(cal domain.Calendar, owner string, event models.BookingEvent) bool {
	select {
	case w.queue <- calendarJob{cal: cal, owner: owner, event: event}:
		return true
	default:
		metrics.IncCalendarSync(metrics.ResultDropped)
		return false
	}
}

// Start runs the insert loop until ctx is done.
func (w *CalendarWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Calendar worker started")
	defer w.logger.Info().Msg("Calendar worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.process(ctx, job)
		}
	}
}

func (w *CalendarWorker) process(ctx context.Context, job calendarJob) {
	insertCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := job.cal.Insert(insertCtx, job.event, job.owner)
	cancel()

	entry := &models.CalendarSync{
		Holder:      job.owner,
		TableNumber: job.event.TableNumber,
		Start:       job.event.Start,
		End:         job.event.End,
		Status:      models.SyncStatusSent,
		CreatedAt:   time.Now().UTC(),
	}

	if err != nil {
		metrics.IncCalendarSync(metrics.ResultFailed)
		w.logger.Error().Err(err).
			Str("owner", job.owner).
			Int("table", job.event.TableNumber).
			Time("start", job.event.Start).
			Msg("Calendar insert failed")

		msg := err.Error()
		entry.Status = models.SyncStatusFailed
		entry.LastError = &msg
		w.pushDeadLetter(ctx, job, msg)
	} else {
		metrics.IncCalendarSync(metrics.ResultSent)
		w.logger.Debug().Str("owner", job.owner).Int("table", job.event.TableNumber).Msg("Calendar event inserted")
	}

	if w.syncLog == nil {
		return
	}
	if err := w.syncLog.RecordCalendarSync(ctx, entry); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to record calendar sync")
	}
}

func (w *CalendarWorker) pushDeadLetter(ctx context.Context, job calendarJob, cause string) {
	if w.redis == nil || w.deadLetterKey == "" {
		return
	}
	data, err := json.Marshal(deadLetter{
		Owner:    job.owner,
		Event:    job.event,
		Error:    cause,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to encode calendar dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to push calendar dead letter")
	}
}

// Pending reports how many inserts are waiting.
func (w *CalendarWorker) Pending() int {
	return len(w.queue)
}
