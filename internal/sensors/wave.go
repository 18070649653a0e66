package sensors

import (
	"math"
	"time"
)

// WaveSensor emits a sine wave of the given Amplitude and Frequency,
// phased from its own construction time, grounded on wave_sensor.py.
type WaveSensor struct {
	id         string
	amplitude  float64
	frequency  float64
	periodMs   int64
	unit       string
	hasUnit    bool
	start      time.Time
}

func NewWaveSensor(id string, amplitude, frequency float64, periodMs int64, unit string, hasUnit bool) *WaveSensor {
	return &WaveSensor{id: id, amplitude: amplitude, frequency: frequency, periodMs: periodMs, unit: unit, hasUnit: hasUnit, start: time.Now()}
}

func (s *WaveSensor) ID() string          { return s.id }
func (s *WaveSensor) Unit() string        { return s.unit }
func (s *WaveSensor) HasUnit() bool       { return s.hasUnit }
func (s *WaveSensor) PeriodMillis() int64 { return s.periodMs }
func (s *WaveSensor) Next() interface{} {
	t := time.Since(s.start).Seconds()
	return s.amplitude * math.Sin(2*math.Pi*s.frequency*t)
}
