package sensor

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialSourceMonitor(t *testing.T) {
	t.Parallel()

	input := "L 1.0 2.0 1000\n" +
		"garbage line\n" +
		"R 5.0 0.1 -0.5 2000\n"
	src := NewSerialSourceFromReader(io.NopCloser(strings.NewReader(input)))
	defer src.Close()

	var got []Measurement
	err := src.Monitor(context.Background(), func(m Measurement) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)

	// The malformed line is skipped, not fatal.
	require.Len(t, got, 2)
	assert.Equal(t, Direct, got[0].Type)
	assert.Equal(t, int64(1000), got[0].Micros)
	assert.Equal(t, RangeBearing, got[1].Type)
	assert.Equal(t, []float64{5.0, 0.1, -0.5}, got[1].Values)
}

func TestSerialSourceMonitorHandlerError(t *testing.T) {
	t.Parallel()

	src := NewSerialSourceFromReader(io.NopCloser(strings.NewReader("L 1 2 1000\nL 3 4 2000\n")))
	defer src.Close()

	calls := 0
	err := src.Monitor(context.Background(), func(Measurement) error {
		calls++
		return io.ErrClosedPipe
	})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 1, calls)
}

func TestSerialSourceMonitorCancelled(t *testing.T) {
	t.Parallel()

	src := NewSerialSourceFromReader(io.NopCloser(strings.NewReader("L 1 2 1000\n")))
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := src.Monitor(ctx, func(Measurement) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
