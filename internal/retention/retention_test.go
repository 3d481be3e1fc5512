package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCutoffPartition(t *testing.T) {
	tests := []struct {
		name         string
		now          time.Time
		monthsToKeep int
		want         string
	}{
		{"January 2024, keep 3 months", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), 3, "202310"},
		{"March 2024, keep 3 months", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), 3, "202312"},
		{"January 2024, keep 1 month", time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), 1, "202312"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCutoffPartition(tt.now, tt.monthsToKeep)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.00 KB", formatBytes(1024))
	assert.Equal(t, "1.00 MB", formatBytes(1024*1024))
	assert.Equal(t, "1.00 GB", formatBytes(1024*1024*1024))
}

func TestNew_AppliesDefaultsWhenZero(t *testing.T) {
	e := New(nil, 0, 0)
	assert.Equal(t, DefaultDataMonths, e.dataMonths)
	assert.Equal(t, DefaultMetricsMonths, e.metricsMonths)
}
