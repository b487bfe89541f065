package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/timeutil"
)

func threeMeasurements() []Measurement {
	return []Measurement{
		{Type: Direct, Micros: 0, Values: []float64{1, 1}},
		{Type: RangeBearing, Micros: 100_000, Values: []float64{5, 0, 0}},
		{Type: Direct, Micros: 250_000, Values: []float64{1.1, 1.1}},
	}
}

func TestReplayDeliversInOrder(t *testing.T) {
	t.Parallel()

	r := &Replay{Measurements: threeMeasurements()}
	var got []int64
	err := r.Run(context.Background(), func(m Measurement) error {
		got = append(got, m.Micros)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 100_000, 250_000}, got)
}

func TestReplayPacedSleepsRecordedGaps(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := &Replay{
		Measurements: threeMeasurements(),
		Clock:        clock,
		Paced:        true,
	}
	require.NoError(t, r.Run(context.Background(), func(Measurement) error { return nil }))

	// Gaps of 100ms then 150ms; no sleep before the first measurement.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, clock.Sleeps())
}

func TestReplaySpeedupDividesGaps(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := &Replay{
		Measurements: threeMeasurements(),
		Clock:        clock,
		Paced:        true,
		Speedup:      2,
	}
	require.NoError(t, r.Run(context.Background(), func(Measurement) error { return nil }))
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 75 * time.Millisecond}, clock.Sleeps())
}

func TestReplayStopsOnHandlerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := &Replay{Measurements: threeMeasurements()}
	calls := 0
	err := r.Run(context.Background(), func(Measurement) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestReplayHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Replay{Measurements: threeMeasurements()}
	err := r.Run(ctx, func(Measurement) error {
		t.Fatal("handler must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
