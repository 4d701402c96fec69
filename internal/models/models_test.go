package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToClock(t *testing.T) {
	cases := []struct {
		interval Interval
		hour     int
		minute   int
	}{
		{0, 0, 0},
		{1, 0, 15},
		{4, 1, 0},
		{22, 5, 30},
		{95, 23, 45},
	}
	for _, tc := range cases {
		h, m := ToClock(tc.interval)
		assert.Equal(t, tc.hour, h, "hour of %d", tc.interval)
		assert.Equal(t, tc.minute, m, "minute of %d", tc.interval)
	}
	assert.Equal(t, "23:45", Interval(95).Clock())
}

func TestIntervalValid(t *testing.T) {
	assert.True(t, Interval(0).Valid())
	assert.True(t, Interval(95).Valid())
	assert.False(t, Interval(-1).Valid())
	assert.False(t, Interval(96).Valid())
}

func TestStartOf(t *testing.T) {
	start, err := StartOf("2024-01-01", 22)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 5, 30, 0, 0, time.UTC), start)

	_, err = StartOf("2024-13-01", 0)
	assert.Error(t, err)
}

func TestSlotRecord_SetAndHolder(t *testing.T) {
	r := NewSlotRecord()
	k := SlotKey{Table: 1, Date: "2099-01-01", Interval: 4}

	_, ok := r.Holder(k)
	assert.False(t, ok)

	r.Set(k, "a@example.com")
	holder, ok := r.Holder(k)
	assert.True(t, ok)
	assert.Equal(t, "a@example.com", holder)
	assert.Equal(t, 1, r.Len())

	var nilRecord *SlotRecord
	_, ok = nilRecord.Holder(k)
	assert.False(t, ok)
}

func TestSlotRecord_CloneIsDeep(t *testing.T) {
	r := NewSlotRecord()
	r.Version = 7
	r.Set(SlotKey{Table: 2, Date: "2099-01-01", Interval: 10}, "a@example.com")

	c := r.Clone()
	c.Set(SlotKey{Table: 2, Date: "2099-01-01", Interval: 11}, "b@example.com")

	assert.Equal(t, int64(7), c.Version)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, c.Len())
}

func TestSlotRecord_PurgeExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewSlotRecord()
	r.Version = 3
	r.Set(SlotKey{Table: 1, Date: "2024-05-31", Interval: 80}, "a@example.com")
	r.Set(SlotKey{Table: 1, Date: "2024-06-01", Interval: 48}, "a@example.com") // exactly now
	r.Set(SlotKey{Table: 1, Date: "2024-06-01", Interval: 49}, "b@example.com")
	r.Set(SlotKey{Table: 3, Date: "2024-06-01", Interval: 10}, "c@example.com")

	purged := r.PurgeExpired(now)

	assert.Equal(t, int64(3), purged.Version)
	assert.Equal(t, 1, purged.Len())
	holder, ok := purged.Holder(SlotKey{Table: 1, Date: "2024-06-01", Interval: 49})
	assert.True(t, ok)
	assert.Equal(t, "b@example.com", holder)
	assert.NotContains(t, purged.Data[1], "2024-05-31")
	assert.NotContains(t, purged.Data, 3)

	// the source is untouched
	assert.Equal(t, 4, r.Len())
}

func TestSlotRecord_HeldBy(t *testing.T) {
	r := NewSlotRecord()
	r.Set(SlotKey{Table: 1, Date: "2099-01-01", Interval: 6}, "a@example.com")
	r.Set(SlotKey{Table: 1, Date: "2099-01-01", Interval: 4}, "a@example.com")
	r.Set(SlotKey{Table: 1, Date: "2099-01-01", Interval: 5}, "b@example.com")
	r.Set(SlotKey{Table: 4, Date: "2099-01-02", Interval: 0}, "a@example.com")

	held := r.HeldBy("a@example.com")
	assert.Equal(t, []Interval{4, 6}, held[1]["2099-01-01"])
	assert.Equal(t, []Interval{0}, held[4]["2099-01-02"])
	assert.Equal(t, []int{1, 4}, held.Tables())
}

func TestBookingRequest_KeysDeduplicates(t *testing.T) {
	req := BookingRequest{
		2: {"2099-01-01": {5, 4, 5}},
		1: {"2099-01-02": {1}, "2099-01-01": {9}},
	}
	keys := req.Keys()
	assert.Equal(t, []SlotKey{
		{Table: 1, Date: "2099-01-01", Interval: 9},
		{Table: 1, Date: "2099-01-02", Interval: 1},
		{Table: 2, Date: "2099-01-01", Interval: 4},
		{Table: 2, Date: "2099-01-01", Interval: 5},
	}, keys)
}

func TestSlotRecord_JSONShape(t *testing.T) {
	r := NewSlotRecord()
	r.Set(SlotKey{Table: 1, Date: "2099-01-01", Interval: 5}, "a@example.com")

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":0,"data":{"1":{"2099-01-01":{"5":"a@example.com"}}}}`, string(raw))

	var back SlotRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	holder, ok := back.Holder(SlotKey{Table: 1, Date: "2099-01-01", Interval: 5})
	assert.True(t, ok)
	assert.Equal(t, "a@example.com", holder)
}

func TestSharedView_JSON(t *testing.T) {
	view := SharedView{1: {"2099-01-01": {5: Anonymous, 6: {Holder: "a@example.com"}}}}

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"2099-01-01":{"5":true,"6":"a@example.com"}}}`, string(raw))

	var back SharedView
	require.NoError(t, json.Unmarshal(raw, &back))
	o, ok := back.Occupant(1, "2099-01-01", 5)
	assert.True(t, ok)
	assert.True(t, o.IsAnonymous())

	var bad Occupant
	assert.Error(t, json.Unmarshal([]byte(`false`), &bad))
}

func TestBookingEvent_JSON(t *testing.T) {
	ev := BookingEvent{
		Start:       time.Date(2099, 1, 1, 1, 0, 0, 0, time.UTC),
		End:         time.Date(2099, 1, 1, 1, 45, 0, 0, time.UTC),
		TableNumber: 3,
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2099-01-01T01:00:00Z","end":"2099-01-01T01:45:00Z","tableNumber":"3"}`, string(raw))
}
