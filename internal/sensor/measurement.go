// Package sensor defines the canonical measurement record shared by the
// acquisition sources (log replay, UDP, serial, pcap) and the fusion filter.
package sensor

import "fmt"

// Type identifies the measurement modality of a sensor.
type Type string

const (
	// Direct sensors (lidar class) report cartesian position directly.
	Direct Type = "direct"
	// RangeBearing sensors (radar class) report range, bearing and
	// range-rate relative to the sensor origin.
	RangeBearing Type = "range_bearing"
)

// Dim returns the observation-space dimensionality for the sensor type.
func (t Type) Dim() int {
	switch t {
	case Direct:
		return 2
	case RangeBearing:
		return 3
	}
	return 0
}

// Valid reports whether t is a known sensor type.
func (t Type) Valid() bool {
	return t == Direct || t == RangeBearing
}

// ChiSquare95 returns the 95th percentile of a chi-square distribution
// with Dim() degrees of freedom, the reference line for judging filter
// consistency from the sensor's innovation statistics.
func (t Type) ChiSquare95() float64 {
	switch t.Dim() {
	case 2:
		return 5.991
	case 3:
		return 7.815
	}
	return 0
}

// Measurement is a single timestamped sensor reading in canonical form.
//
// Values holds (x, y) in metres for Direct sensors, and
// (range m, bearing rad, range-rate m/s) for RangeBearing sensors.
type Measurement struct {
	Type   Type
	Micros int64 // sensor timestamp, microseconds
	Values []float64
}

// Validate checks the measurement record is structurally sound: known
// sensor type and the value vector width matching that type.
func (m Measurement) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("unknown sensor type %q", m.Type)
	}
	if len(m.Values) != m.Type.Dim() {
		return fmt.Errorf("sensor type %q expects %d values, got %d", m.Type, m.Type.Dim(), len(m.Values))
	}
	return nil
}
