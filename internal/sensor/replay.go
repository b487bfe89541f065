package sensor

import (
	"context"
	"time"

	"github.com/banshee-data/fusion.report/internal/timeutil"
)

// Replay delivers recorded measurements to handle, optionally pacing them
// by their timestamp gaps so downstream behaviour matches a live run.
type Replay struct {
	Measurements []Measurement
	Clock        timeutil.Clock
	// Speedup divides the inter-measurement gaps; 0 or 1 replays in real
	// time. Only used when Paced.
	Speedup float64
	Paced   bool
}

// Run feeds every measurement to handle in order. When pacing is enabled
// it sleeps the recorded gap between consecutive measurements (negative
// gaps are treated as zero). A handler error stops the replay.
func (r *Replay) Run(ctx context.Context, handle func(Measurement) error) error {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	speedup := r.Speedup
	if speedup <= 0 {
		speedup = 1
	}

	var prevMicros int64
	for i, m := range r.Measurements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Paced && i > 0 {
			gap := m.Micros - prevMicros
			if gap > 0 {
				clock.Sleep(time.Duration(float64(gap)/speedup) * time.Microsecond)
			}
		}
		prevMicros = m.Micros
		if err := handle(m); err != nil {
			return err
		}
	}
	return nil
}
