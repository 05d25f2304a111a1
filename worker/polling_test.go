package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPollingRatesNormalization(t *testing.T) {
	cases := []struct {
		name    string
		a, b    time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"both negative", -4, -20, 0, 0},
		{"inverted positive", 400, 20, 20, 400},
		{"one negative", 100, -20, 0, 100},
		{"already ordered", 30, 120, 30, 120},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rates := NewPollingRates(c.a, c.b)
			assert.Equal(t, c.wantMin, rates.Min)
			assert.Equal(t, c.wantMax, rates.Max)
		})
	}
}

func TestNewPollingRatesInvariant(t *testing.T) {
	for a := time.Duration(-200); a <= 200; a += 37 {
		for b := time.Duration(-200); b <= 200; b += 41 {
			rates := NewPollingRates(a, b)
			assert.GreaterOrEqual(t, int64(rates.Min), int64(0))
			assert.GreaterOrEqual(t, int64(rates.Max), int64(rates.Min))

			maxA, maxB := a, b
			if maxA < 0 {
				maxA = 0
			}
			if maxB < 0 {
				maxB = 0
			}
			assert.Contains(t, []time.Duration{maxA, maxB}, rates.Min)
			assert.Contains(t, []time.Duration{maxA, maxB}, rates.Max)
		}
	}
}

func TestPollingRatesNextBacksOffAndResets(t *testing.T) {
	rates := NewPollingRates(100*time.Millisecond, 800*time.Millisecond)

	interval := rates.Min
	interval = rates.next(interval, false)
	assert.Equal(t, 200*time.Millisecond, interval)
	interval = rates.next(interval, false)
	assert.Equal(t, 400*time.Millisecond, interval)
	interval = rates.next(interval, false)
	assert.Equal(t, 800*time.Millisecond, interval)
	// Caps at Max.
	interval = rates.next(interval, false)
	assert.Equal(t, 800*time.Millisecond, interval)

	interval = rates.next(interval, true)
	assert.Equal(t, rates.Min, interval)
}
