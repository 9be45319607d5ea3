package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{60, "01:00"},
		{605, "10:05"},
		{5400, "90:00"},
		{-3, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRemaining(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(0, 0))
	assert.Equal(t, 33, ProgressPercent(1, 3))
	assert.Equal(t, 67, ProgressPercent(2, 3))
	assert.Equal(t, 15, ProgressPercent(29, 200))
	assert.Equal(t, 100, ProgressPercent(3, 3))
	assert.InDelta(t, 0.3333, ProgressRatio(1, 3), 0.0001)
}

func TestDescribeThreshold(t *testing.T) {
	assert.Equal(t, "5 minutes", describeThreshold(300))
	assert.Equal(t, "1 minute", describeThreshold(60))
	assert.Equal(t, "90 seconds", describeThreshold(90))
	assert.Equal(t, "1 second", describeThreshold(1))
}
