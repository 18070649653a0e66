package sensors

// IncrementalSensor random-walks Value by ±StepPct percent per tick,
// grounded on incremental_sensor.py.
type IncrementalSensor struct {
	id       string
	value    float64
	stepPct  float64
	periodMs int64
	rng      *lockedRand
}

func NewIncrementalSensor(id string, start, stepPct float64, periodMs int64) *IncrementalSensor {
	return &IncrementalSensor{id: id, value: start, stepPct: stepPct, periodMs: periodMs, rng: newLockedRand()}
}

func (s *IncrementalSensor) ID() string          { return s.id }
func (s *IncrementalSensor) Unit() string        { return "" }
func (s *IncrementalSensor) HasUnit() bool       { return false }
func (s *IncrementalSensor) PeriodMillis() int64 { return s.periodMs }
func (s *IncrementalSensor) Next() interface{} {
	change := s.value * (s.stepPct / 100.0)
	s.value += s.rng.uniform(-change, change)
	return s.value
}

// TrendSensor advances Value by a fixed Slope each tick plus Gaussian-
// free uniform noise, grounded on trend_sensor.py.
type TrendSensor struct {
	id       string
	value    float64
	slope    float64
	noise    float64
	periodMs int64
	unit     string
	hasUnit  bool
	rng      *lockedRand
}

func NewTrendSensor(id string, start, slope, noise float64, periodMs int64, unit string, hasUnit bool) *TrendSensor {
	return &TrendSensor{id: id, value: start, slope: slope, noise: noise, periodMs: periodMs, unit: unit, hasUnit: hasUnit, rng: newLockedRand()}
}

func (s *TrendSensor) ID() string          { return s.id }
func (s *TrendSensor) Unit() string        { return s.unit }
func (s *TrendSensor) HasUnit() bool       { return s.hasUnit }
func (s *TrendSensor) PeriodMillis() int64 { return s.periodMs }
func (s *TrendSensor) Next() interface{} {
	s.value += s.slope
	s.value += s.rng.uniform(-s.noise, s.noise)
	return s.value
}

// SpikeSensor emits Baseline, occasionally jumping to
// Baseline+SpikeHeight with probability PSpike, grounded on
// spike_sensor.py.
type SpikeSensor struct {
	id          string
	baseline    float64
	spikeHeight float64
	pSpike      float64
	periodMs    int64
	rng         *lockedRand
}

func NewSpikeSensor(id string, baseline, spikeHeight, pSpike float64, periodMs int64) *SpikeSensor {
	return &SpikeSensor{id: id, baseline: baseline, spikeHeight: spikeHeight, pSpike: pSpike, periodMs: periodMs, rng: newLockedRand()}
}

func (s *SpikeSensor) ID() string          { return s.id }
func (s *SpikeSensor) Unit() string        { return "" }
func (s *SpikeSensor) HasUnit() bool       { return false }
func (s *SpikeSensor) PeriodMillis() int64 { return s.periodMs }
func (s *SpikeSensor) Next() interface{} {
	if s.rng.float64() < s.pSpike {
		return s.baseline + s.spikeHeight
	}
	return s.baseline
}

// NoiseSensor emits Base plus uniform noise in [-Noise, Noise],
// grounded on noise_sensor.py.
type NoiseSensor struct {
	id       string
	base     float64
	noise    float64
	periodMs int64
	rng      *lockedRand
}

func NewNoiseSensor(id string, base, noise float64, periodMs int64) *NoiseSensor {
	return &NoiseSensor{id: id, base: base, noise: noise, periodMs: periodMs, rng: newLockedRand()}
}

func (s *NoiseSensor) ID() string          { return s.id }
func (s *NoiseSensor) Unit() string        { return "" }
func (s *NoiseSensor) HasUnit() bool       { return false }
func (s *NoiseSensor) PeriodMillis() int64 { return s.periodMs }
func (s *NoiseSensor) Next() interface{}   { return s.base + s.rng.uniform(-s.noise, s.noise) }
