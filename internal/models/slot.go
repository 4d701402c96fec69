package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"
)

// SlotKey addresses one reservable unit.
type SlotKey struct {
	Table    int
	Date     string
	Interval Interval
}

// Start is the absolute UTC start time of the slot.
func (k SlotKey) Start() (time.Time, error) {
	return StartOf(k.Date, k.Interval)
}

// SlotRecord is the persisted reservation table: table -> date -> interval -> holder.
// Absent keys are free. Version is bumped by every successful commit.
type SlotRecord struct {
	Version int64                                  `json:"version"`
	Data    map[int]map[string]map[Interval]string `json:"data"`
}

func NewSlotRecord() *SlotRecord {
	return &SlotRecord{Data: make(map[int]map[string]map[Interval]string)}
}

// Holder returns the current holder of the slot, if any.
func (r *SlotRecord) Holder(k SlotKey) (string, bool) {
	if r == nil {
		return "", false
	}
	holder, ok := r.Data[k.Table][k.Date][k.Interval]
	return holder, ok
}

// Set assigns the slot to holder, creating intermediate levels as needed.
func (r *SlotRecord) Set(k SlotKey, holder string) {
	if r.Data == nil {
		r.Data = make(map[int]map[string]map[Interval]string)
	}
	dates, ok := r.Data[k.Table]
	if !ok {
		dates = make(map[string]map[Interval]string)
		r.Data[k.Table] = dates
	}
	slots, ok := dates[k.Date]
	if !ok {
		slots = make(map[Interval]string)
		dates[k.Date] = slots
	}
	slots[k.Interval] = holder
}

// Len returns the number of held slots.
func (r *SlotRecord) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, dates := range r.Data {
		for _, slots := range dates {
			n += len(slots)
		}
	}
	return n
}

// Clone returns a deep copy.
func (r *SlotRecord) Clone() *SlotRecord {
	out := NewSlotRecord()
	if r == nil {
		return out
	}
	out.Version = r.Version
	for table, dates := range r.Data {
		for date, slots := range dates {
			for interval, holder := range slots {
				out.Set(SlotKey{Table: table, Date: date, Interval: interval}, holder)
			}
		}
	}
	return out
}

// PurgeExpired returns a copy without slots whose start is at or before now.
// Dates and tables left empty are dropped. Unparseable dates are dropped too.
func (r *SlotRecord) PurgeExpired(now time.Time) *SlotRecord {
	out := NewSlotRecord()
	if r == nil {
		return out
	}
	out.Version = r.Version
	for table, dates := range r.Data {
		for date, slots := range dates {
			day, err := ParseDate(date)
			if err != nil {
				continue
			}
			for interval, holder := range slots {
				if !At(day, interval).After(now) {
					continue
				}
				out.Set(SlotKey{Table: table, Date: date, Interval: interval}, holder)
			}
		}
	}
	return out
}

// HeldBy collects the slots held by holder, grouped by table and date.
func (r *SlotRecord) HeldBy(holder string) BookingRequest {
	out := make(BookingRequest)
	if r == nil {
		return out
	}
	for table, dates := range r.Data {
		for date, slots := range dates {
			for interval, h := range slots {
				if h == holder {
					out.Add(SlotKey{Table: table, Date: date, Interval: interval})
				}
			}
		}
	}
	out.Normalize()
	return out
}

// Keys lists every held slot in (table, date, interval) order.
func (r *SlotRecord) Keys() []SlotKey {
	if r == nil {
		return nil
	}
	keys := make([]SlotKey, 0, r.Len())
	for table, dates := range r.Data {
		for date, slots := range dates {
			for interval := range slots {
				keys = append(keys, SlotKey{Table: table, Date: date, Interval: interval})
			}
		}
	}
	SortKeys(keys)
	return keys
}

// BookingRequest is the set of slots one caller claims in a single submission:
// table -> date -> intervals.
type BookingRequest map[int]map[string][]Interval

// Add appends one slot to the request.
func (b BookingRequest) Add(k SlotKey) {
	dates, ok := b[k.Table]
	if !ok {
		dates = make(map[string][]Interval)
		b[k.Table] = dates
	}
	dates[k.Date] = append(dates[k.Date], k.Interval)
}

// Normalize sorts every interval list and removes duplicates.
func (b BookingRequest) Normalize() {
	for _, dates := range b {
		for date, intervals := range dates {
			sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
			uniq := intervals[:0]
			for i, v := range intervals {
				if i > 0 && v == intervals[i-1] {
					continue
				}
				uniq = append(uniq, v)
			}
			dates[date] = uniq
		}
	}
}

// Keys flattens the request into ordered, de-duplicated slot keys.
func (b BookingRequest) Keys() []SlotKey {
	seen := make(map[SlotKey]struct{})
	var keys []SlotKey
	for table, dates := range b {
		for date, intervals := range dates {
			for _, interval := range intervals {
				k := SlotKey{Table: table, Date: date, Interval: interval}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	SortKeys(keys)
	return keys
}

// Tables returns the table numbers of the request in ascending order.
func (b BookingRequest) Tables() []int {
	tables := make([]int, 0, len(b))
	for table := range b {
		tables = append(tables, table)
	}
	sort.Ints(tables)
	return tables
}

// SortKeys orders keys by table, date and interval.
func SortKeys(keys []SlotKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Table != keys[j].Table {
			return keys[i].Table < keys[j].Table
		}
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Interval < keys[j].Interval
	})
}

// BookingEvent is a merged contiguous run of one holder's slots on one table.
type BookingEvent struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TableNumber int       `json:"tableNumber,string"`
}

// Occupant is a projected slot value. An empty Holder is the anonymous
// "occupied" marker and encodes as JSON true.
type Occupant struct {
	Holder string
}

// Anonymous is the occupant shown for slots the viewer does not hold.
var Anonymous = Occupant{}

var errOccupant = errors.New("occupant must be true or a holder string")

func (o Occupant) IsAnonymous() bool {
	return o.Holder == ""
}

func (o Occupant) MarshalJSON() ([]byte, error) {
	if o.IsAnonymous() {
		return []byte("true"), nil
	}
	return json.Marshal(o.Holder)
}

func (o *Occupant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("true")) {
		o.Holder = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return errOccupant
	}
	o.Holder = s
	return nil
}

// SharedView is the anonymized projection: table -> date -> interval -> occupant.
type SharedView map[int]map[string]map[Interval]Occupant

// Occupant looks up a projected slot.
func (v SharedView) Occupant(table int, date string, i Interval) (Occupant, bool) {
	o, ok := v[table][date][i]
	return o, ok
}

// TableKey renders a table number the way it appears in JSON object keys.
func TableKey(table int) string {
	return strconv.Itoa(table)
}
