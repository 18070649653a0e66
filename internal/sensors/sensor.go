// Package sensors implements the synthetic sensor generators and the
// manager that loads them from environment configuration, grounded on
// original_source/sensors/*.py, reshaped from one thread-per-sensor
// into the teacher's goroutine-per-worker idiom; each sensor goroutine
// hands its readings to the Manager's shared Callback.
package sensors

import (
	"math/rand"
	"sync"
	"time"
)

// Reading is one value produced by a Sensor at a point in time.
type Reading struct {
	SensorID string
	Value    interface{}
	TsMs     int64
	Unit     string
	HasUnit  bool
}

// Sensor generates synthetic values on its own cadence. Next is called
// once per period_ms by the owning goroutine; implementations need only
// be safe to call repeatedly from that single goroutine (no internal
// locking is required, though the random-backed sensors lock their
// generator anyway, see lockedRand).
type Sensor interface {
	ID() string
	Unit() string
	HasUnit() bool
	PeriodMillis() int64
	Next() interface{}
}

// lockedRand wraps math/rand.Rand with a mutex: each Sensor owns one
// instance, but Next() may be called concurrently with the manager
// reading the sensor's static fields (ID/Unit/PeriodMillis), so the
// generator itself stays defensively locked rather than relying on
// "one goroutine per sensor" as an invariant callers must preserve.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *lockedRand) float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

func (l *lockedRand) uniform(min, max float64) float64 {
	return min + l.float64()*(max-min)
}
