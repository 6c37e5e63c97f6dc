package spout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialToTime1900(t *testing.T) {
	tests := []struct {
		serial float64
		want   time.Time
	}{
		{0, time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)},
		{1, time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)},
		{2, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		// 61 is the first serial past the phantom leap day, back on the
		// real calendar
		{61, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)},
		{45366, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{45366.5, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{0.75, time.Date(1899, 12, 30, 18, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := SerialToTime(tt.serial, false)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "serial %v", tt.serial)
	}
}

func TestSerialToTime1904(t *testing.T) {
	got, err := SerialToTime(0, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = SerialToTime(366, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1905, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestSerialToTimeRejectsOutOfRange(t *testing.T) {
	for _, serial := range []float64{-1, 3_000_000} {
		_, err := SerialToTime(serial, false)
		assert.Error(t, err, "serial %v", serial)
	}
}

func TestSerialToTimeThirdOfDay(t *testing.T) {
	// 1/3 of a day is not representable exactly; the conversion must still
	// land on 08:00:00 instead of 07:59:59.
	got, err := SerialToTime(45366+1.0/3.0, false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), got)
}

func TestTimeToSerialRoundTrip(t *testing.T) {
	for _, date1904 := range []bool{false, true} {
		for _, when := range []time.Time{
			time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC),
			time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		} {
			serial := TimeToSerial(when, date1904)
			back, err := SerialToTime(serial, date1904)
			require.NoError(t, err)
			assert.Equal(t, when, back, "%v (1904=%v)", when, date1904)
		}
	}
}

func TestDurationToSerial(t *testing.T) {
	assert.Equal(t, 0.5, DurationToSerial(12*time.Hour))
	assert.Equal(t, 1.5, DurationToSerial(36*time.Hour))
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		id     int
		format string
		want   bool
	}{
		{14, "", true},
		{22, "", true},
		{47, "", true},
		{0, "", false},
		{2, "", false},
		{4, "", false},
		{49, "", false},
		{164, "yyyy-mm-dd", true},
		{164, "0.00", false},
		{165, `"today: "yyyy`, true},
		// quoted letters and bracket sections must not match
		{166, `0.00" dollars"`, false},
		{167, `[$-404]0.00`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDateFormat(tt.id, tt.format), "id=%d format=%q", tt.id, tt.format)
	}
}
