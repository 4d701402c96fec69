package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tablebook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	mu     sync.Mutex
	err    error
	owners []string
	events []models.BookingEvent
	done   chan struct{}
}

func (f *fakeCalendar) Insert(_ context.Context, ev models.BookingEvent, owner string) error {
	f.mu.Lock()
	f.owners = append(f.owners, owner)
	f.events = append(f.events, ev)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

type fakeSyncLog struct {
	mu      sync.Mutex
	entries []models.CalendarSync
}

func (f *fakeSyncLog) RecordCalendarSync(_ context.Context, entry *models.CalendarSync) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func testEvent() models.BookingEvent {
	start := time.Date(2099, 1, 1, 1, 0, 0, 0, time.UTC)
	return models.BookingEvent{Start: start, End: start.Add(45 * time.Minute), TableNumber: 3}
}

func TestCalendarWorkerInsertSuccess(t *testing.T) {
	syncLog := &fakeSyncLog{}
	w := NewCalendarWorker(CalendarWorkerOptions{SyncLog: syncLog}, nil)
	cal := &fakeCalendar{}

	require.True(t, w.Dispatch(cal, "a@example.com", testEvent()))
	assert.Equal(t, 1, w.Pending())

	w.process(context.Background(), <-w.queue)

	require.Len(t, cal.events, 1)
	assert.Equal(t, "a@example.com", cal.owners[0])
	require.Len(t, syncLog.entries, 1)
	assert.Equal(t, models.SyncStatusSent, syncLog.entries[0].Status)
	assert.Nil(t, syncLog.entries[0].LastError)
	assert.Equal(t, 3, syncLog.entries[0].TableNumber)
}

func TestCalendarWorkerInsertFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	syncLog := &fakeSyncLog{}
	w := NewCalendarWorker(CalendarWorkerOptions{
		SyncLog:       syncLog,
		Redis:         client,
		DeadLetterKey: "tablebook:calendar:dead",
	}, nil)
	cal := &fakeCalendar{err: errors.New("token expired")}

	require.True(t, w.Dispatch(cal, "a@example.com", testEvent()))
	w.process(context.Background(), <-w.queue)

	// no retry
	assert.Len(t, cal.events, 1)

	require.Len(t, syncLog.entries, 1)
	assert.Equal(t, models.SyncStatusFailed, syncLog.entries[0].Status)
	require.NotNil(t, syncLog.entries[0].LastError)
	assert.Equal(t, "token expired", *syncLog.entries[0].LastError)

	items, err := client.LRange(context.Background(), "tablebook:calendar:dead", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)

	var dl deadLetter
	require.NoError(t, json.Unmarshal([]byte(items[0]), &dl))
	assert.Equal(t, "a@example.com", dl.Owner)
	assert.Equal(t, 3, dl.Event.TableNumber)
	assert.Equal(t, "token expired", dl.Error)
}

func TestCalendarWorkerQueueFull(t *testing.T) {
	w := NewCalendarWorker(CalendarWorkerOptions{QueueSize: 1}, nil)
	cal := &fakeCalendar{}

	assert.True(t, w.Dispatch(cal, "a@example.com", testEvent()))
	assert.False(t, w.Dispatch(cal, "a@example.com", testEvent()))
}

func TestCalendarWorkerStart(t *testing.T) {
	w := NewCalendarWorker(CalendarWorkerOptions{Timeout: time.Second}, nil)
	cal := &fakeCalendar{done: make(chan struct{}, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	require.True(t, w.Dispatch(cal, "a@example.com", testEvent()))
	require.True(t, w.Dispatch(cal, "b@example.com", testEvent()))

	for i := 0; i < 2; i++ {
		select {
		case <-cal.done:
		case <-time.After(2 * time.Second):
			t.Fatal("calendar insert not processed")
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
