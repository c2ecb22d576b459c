package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-01-02 15:04:05", want: time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)},
		{in: "2025-01-02 15:04", want: time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)},
		{in: "2025-01-02 03:04:05 PM", want: time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)},
		{in: "2025-01-02 3:04 pm", want: time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)},
		{in: "2025-01-02 11:30 a.m.", want: time.Date(2025, 1, 2, 11, 30, 0, 0, time.UTC)},
		{in: "2025-01-02 5PM", want: time.Date(2025, 1, 2, 17, 0, 0, 0, time.UTC)},
		{in: "2025-01-02 5p.m.", want: time.Date(2025, 1, 2, 17, 0, 0, 0, time.UTC)},
		{in: "  2025-01-02   07 AM ", want: time.Date(2025, 1, 2, 7, 0, 0, 0, time.UTC)},
		{in: "2025-01-02T10:00:00Z", want: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2025-13-01 10:00", "01/02/2025 10:00"} {
		_, err := ParseTime(in, time.UTC)
		assert.Error(t, err, in)
	}
}
