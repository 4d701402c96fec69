package api

import (
	"testing"
	"time"

	"tablebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validationNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func TestValidateBookingAccepts(t *testing.T) {
	req, errs := ValidateBooking(bookingPayload{
		"1":  {"2030-06-01": {49, 48, 49}},
		"10": {"2030-06-02": {0, 95}},
	}, validationNow)
	require.Empty(t, errs)

	assert.Equal(t, []models.Interval{48, 49}, req[1]["2030-06-01"])
	assert.Equal(t, []models.Interval{0, 95}, req[10]["2030-06-02"])
}

func TestValidateBookingRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload bookingPayload
		field   string
	}{
		{"NoTables", bookingPayload{}, "data"},
		{"TableZero", bookingPayload{"0": {"2030-06-02": {1}}}, "data.0"},
		{"TableEleven", bookingPayload{"11": {"2030-06-02": {1}}}, "data.11"},
		{"TableNotNumber", bookingPayload{"abc": {"2030-06-02": {1}}}, "data.abc"},
		{"NoDates", bookingPayload{"1": {}}, "data.1"},
		{"BadDate", bookingPayload{"1": {"2030-13-40": {1}}}, "data.1.2030-13-40"},
		{"NoIntervals", bookingPayload{"1": {"2030-06-02": {}}}, "data.1.2030-06-02"},
		{"IntervalTooHigh", bookingPayload{"1": {"2030-06-02": {96}}}, "data.1.2030-06-02[0]"},
		{"IntervalNegative", bookingPayload{"1": {"2030-06-02": {4, -1}}}, "data.1.2030-06-02[1]"},
		{"StartsNow", bookingPayload{"1": {"2030-06-01": {48}}}, "data.1.2030-06-01[0]"},
		{"InThePast", bookingPayload{"1": {"2030-05-31": {95}}}, "data.1.2030-05-31[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, errs := ValidateBooking(tt.payload, validationNow)
			assert.Nil(t, req)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.NotEmpty(t, errs[0].Msg)
		})
	}
}

func TestValidateBookingCollectsAllErrors(t *testing.T) {
	_, errs := ValidateBooking(bookingPayload{
		"1":  {"2030-06-02": {1, 200}},
		"12": {"2030-06-02": {1}},
	}, validationNow)

	require.Len(t, errs, 2)
	assert.Equal(t, "data.1.2030-06-02[1]", errs[0].Field)
	assert.Equal(t, "data.12", errs[1].Field)
	assert.Contains(t, errs.Error(), "data.12")
}
