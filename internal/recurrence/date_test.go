package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_KeepsGranularity(t *testing.T) {
	tests := []struct {
		raw      string
		dateOnly bool
		want     string
	}{
		{"2024-01-31", true, "2024-01-31"},
		{"2024-06-10T09:00:00Z", false, "2024-06-10T09:00:00Z"},
		{"2024-06-10T09:00:00.000+02:00", false, "2024-06-10T09:00:00+02:00"},
		{" 2024-02-29 ", true, "2024-02-29"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := ParseDate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.dateOnly, d.DateOnly)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestParseDate_Rejects(t *testing.T) {
	for _, raw := range []string{"", "tomorrow", "2024-13-01", "2024-06-10 09:00"} {
		_, err := ParseDate(raw)
		assert.Error(t, err, raw)
	}
}
