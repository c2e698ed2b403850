package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemNanotimeIsMonotonic(t *testing.T) {
	c := New()
	first := c.Nanotime()
	second := c.Nanotime()
	assert.GreaterOrEqual(t, second, first)
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFake(start)

	f.Advance(1500 * time.Millisecond)

	assert.Equal(t, start.Add(1500*time.Millisecond), f.Now())
	assert.Equal(t, int64(1_500_000_000), f.Nanotime())
}

func TestMillis(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want uint64
	}{
		{"zero time", time.Time{}, 0},
		{"epoch plus", time.UnixMilli(1_700_000_000_123), 1_700_000_000_123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Millis(tt.in))
		})
	}
}
