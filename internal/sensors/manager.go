package sensors

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Callback receives one reading from a running sensor. The manager
// wires this to state.Engine.Submit in cmd/sensor-mesh.
type Callback func(Reading)

// Manager owns a fixed set of Sensors, loaded once from environment
// variables, and runs one goroutine per sensor on its configured
// cadence. Grounded on sensor_manager.py's SensorManager, translated
// from thread-per-sensor to goroutine-per-sensor.
type Manager struct {
	callback Callback
	sensors  []Sensor

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewManager builds an empty Manager; call LoadFromEnv to populate it.
func NewManager(callback Callback) *Manager {
	return &Manager{callback: callback, stop: make(chan struct{})}
}

// LoadFromEnv parses the SENSORS count and SENSOR_<i>_* variables,
// grounded on sensor_manager.py's load_from_env. It returns a
// ConfigurationError-class error (wrapped with github.com/pkg/errors)
// on any malformed entry; partial state is discarded.
func (m *Manager) LoadFromEnv() error {
	count, err := envInt("SENSORS", 0)
	if err != nil {
		return errors.Wrap(err, "sensors: invalid SENSORS")
	}

	sensors := make([]Sensor, 0, count)
	for i := 0; i < count; i++ {
		prefix := fmt.Sprintf("SENSOR_%d_", i)
		sensor, err := buildSensor(prefix, i)
		if err != nil {
			return errors.Wrapf(err, "sensors: %s", prefix)
		}
		sensors = append(sensors, sensor)
	}

	m.sensors = sensors
	return nil
}

func buildSensor(prefix string, index int) (Sensor, error) {
	sType, ok := os.LookupEnv(prefix + "TYPE")
	if !ok {
		return nil, errors.Errorf("missing %sTYPE", prefix)
	}

	name := os.Getenv(prefix + "NAME")
	if name == "" {
		name = fmt.Sprintf("sensor_%d", index)
	}

	periodMs, err := envInt64(prefix+"PERIOD_MS", 0)
	if err != nil {
		return nil, errors.Wrapf(err, "%sPERIOD_MS", prefix)
	}
	if periodMs <= 0 {
		return nil, errors.Errorf("%sPERIOD_MS must be positive", prefix)
	}

	switch sType {
	case "numeric":
		min, err := envFloat(prefix+"MIN", 0)
		if err != nil {
			return nil, err
		}
		max, err := envFloat(prefix+"MAX", 0)
		if err != nil {
			return nil, err
		}
		unit, hasUnit := os.LookupEnv(prefix + "UNIT")
		return NewNumericSensor(name, min, max, periodMs, unit, hasUnit), nil

	case "boolean":
		pTrue, err := envFloatDefault(prefix+"P_TRUE", 0.5)
		if err != nil {
			return nil, err
		}
		return NewBooleanSensor(name, pTrue, periodMs), nil

	case "categorical":
		raw := os.Getenv(prefix + "VALUES")
		values := splitNonEmpty(raw, ",")
		if len(values) == 0 {
			return nil, errors.Errorf("%sVALUES must contain at least one category", prefix)
		}
		return NewCategoricalSensor(name, values, periodMs), nil

	case "incremental":
		start, err := envFloatDefault(prefix+"START", 0)
		if err != nil {
			return nil, err
		}
		stepPct, err := envFloatDefault(prefix+"STEP_PCT", 1)
		if err != nil {
			return nil, err
		}
		return NewIncrementalSensor(name, start, stepPct, periodMs), nil

	case "trend":
		start, err := envFloatDefault(prefix+"START", 0)
		if err != nil {
			return nil, err
		}
		slope, err := envFloatDefault(prefix+"SLOPE", 0.1)
		if err != nil {
			return nil, err
		}
		noise, err := envFloatDefault(prefix+"NOISE", 0)
		if err != nil {
			return nil, err
		}
		unit, hasUnit := os.LookupEnv(prefix + "UNIT")
		return NewTrendSensor(name, start, slope, noise, periodMs, unit, hasUnit), nil

	case "spike":
		baseline, err := envFloatDefault(prefix+"BASELINE", 0)
		if err != nil {
			return nil, err
		}
		spikeHeight, err := envFloatDefault(prefix+"SPIKE_HEIGHT", 10)
		if err != nil {
			return nil, err
		}
		pSpike, err := envFloatDefault(prefix+"P_SPIKE", 0.2)
		if err != nil {
			return nil, err
		}
		return NewSpikeSensor(name, baseline, spikeHeight, pSpike, periodMs), nil

	case "wave":
		amplitude, err := envFloatDefault(prefix+"AMPLITUDE", 1)
		if err != nil {
			return nil, err
		}
		frequency, err := envFloatDefault(prefix+"FREQUENCY", 1)
		if err != nil {
			return nil, err
		}
		unit, hasUnit := os.LookupEnv(prefix + "UNIT")
		return NewWaveSensor(name, amplitude, frequency, periodMs, unit, hasUnit), nil

	case "noise":
		base, err := envFloatDefault(prefix+"BASE", 0)
		if err != nil {
			return nil, err
		}
		noise, err := envFloatDefault(prefix+"NOISE", 1)
		if err != nil {
			return nil, err
		}
		return NewNoiseSensor(name, base, noise, periodMs), nil

	default:
		return nil, errors.Errorf("unsupported sensor type: %s", sType)
	}
}

// StartAll launches one goroutine per loaded sensor.
func (m *Manager) StartAll() {
	for _, s := range m.sensors {
		m.wg.Add(1)
		go m.run(s)
	}
}

// StopAll signals every sensor goroutine to exit and waits for them.
func (m *Manager) StopAll() {
	close(m.stop)
	m.wg.Wait()
}

// Sensors returns the loaded sensor set, for diagnostics/tests.
func (m *Manager) Sensors() []Sensor {
	return m.sensors
}

func (m *Manager) run(s Sensor) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(s.PeriodMillis()) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.callback(Reading{
				SensorID: s.ID(),
				Value:    s.Next(),
				TsMs:     time.Now().UnixMilli(),
				Unit:     s.Unit(),
				HasUnit:  s.HasUnit(),
			})
		}
	}
}

func envInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func envInt64(key string, def int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func envFloat(key string, def float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, errors.Errorf("missing %s", key)
	}
	return strconv.ParseFloat(raw, 64)
}

func envFloatDefault(key string, def float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func splitNonEmpty(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
