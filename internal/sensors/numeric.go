package sensors

// NumericSensor emits a uniformly-random float in [Min, Max], grounded
// on numeric_sensor.py.
type NumericSensor struct {
	id         string
	min, max   float64
	periodMs   int64
	unit       string
	hasUnit    bool
	rng        *lockedRand
}

func NewNumericSensor(id string, min, max float64, periodMs int64, unit string, hasUnit bool) *NumericSensor {
	return &NumericSensor{id: id, min: min, max: max, periodMs: periodMs, unit: unit, hasUnit: hasUnit, rng: newLockedRand()}
}

func (s *NumericSensor) ID() string          { return s.id }
func (s *NumericSensor) Unit() string        { return s.unit }
func (s *NumericSensor) HasUnit() bool       { return s.hasUnit }
func (s *NumericSensor) PeriodMillis() int64 { return s.periodMs }
func (s *NumericSensor) Next() interface{}   { return s.rng.uniform(s.min, s.max) }

// BooleanSensor emits true with probability PTrue, grounded on
// boolean_sensor.py.
type BooleanSensor struct {
	id       string
	pTrue    float64
	periodMs int64
	rng      *lockedRand
}

func NewBooleanSensor(id string, pTrue float64, periodMs int64) *BooleanSensor {
	return &BooleanSensor{id: id, pTrue: pTrue, periodMs: periodMs, rng: newLockedRand()}
}

func (s *BooleanSensor) ID() string          { return s.id }
func (s *BooleanSensor) Unit() string        { return "" }
func (s *BooleanSensor) HasUnit() bool       { return false }
func (s *BooleanSensor) PeriodMillis() int64 { return s.periodMs }
func (s *BooleanSensor) Next() interface{}   { return s.rng.float64() < s.pTrue }

// CategoricalSensor emits a uniformly-chosen value from Categories,
// grounded on categorical_sensor.py.
type CategoricalSensor struct {
	id         string
	categories []string
	periodMs   int64
	rng        *lockedRand
}

func NewCategoricalSensor(id string, categories []string, periodMs int64) *CategoricalSensor {
	return &CategoricalSensor{id: id, categories: categories, periodMs: periodMs, rng: newLockedRand()}
}

func (s *CategoricalSensor) ID() string          { return s.id }
func (s *CategoricalSensor) Unit() string        { return "" }
func (s *CategoricalSensor) HasUnit() bool       { return false }
func (s *CategoricalSensor) PeriodMillis() int64 { return s.periodMs }
func (s *CategoricalSensor) Next() interface{} {
	idx := int(s.rng.float64() * float64(len(s.categories)))
	if idx >= len(s.categories) {
		idx = len(s.categories) - 1
	}
	return s.categories[idx]
}
