package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		want     time.Time
		fallback bool
	}{
		{"utc marker", "2024-03-01T10:30:00Z", want, false},
		{"offset", "2024-03-01T11:30:00+01:00", want, false},
		{"fractional seconds", "2024-03-01T10:30:00.000000Z", want, false},
		{"no zone", "2024-03-01T10:30:00", want, false},
		{"space separated", "2024-03-01 10:30:00", want, false},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", now, true},
		{"garbage", "01/03/2024 10h30", now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.raw, now)
			assert.True(t, tt.want.Equal(got.Time), "got %s", got.Time)
			assert.Equal(t, tt.fallback, got.Fallback)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	assert.Equal(t, "2024-03-01T10:30:00Z", FormatTimestamp(time.Date(2024, 3, 1, 11, 30, 0, 0, lagos)))
	assert.Equal(t, "", FormatTimestamp(time.Time{}))
}

func TestStamperFallsBackForZeroTimes(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &stamper{now: now}

	assert.Equal(t, "2024-06-01T12:00:00Z", st.format("sale_date", time.Time{}))
	assert.Equal(t, "2024-03-01T10:30:00Z", st.format("updated_at", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, []string{"sale_date"}, st.fallbacks)
}
