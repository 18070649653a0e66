package sensors

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadFromEnv_NumericSensor(t *testing.T) {
	t.Setenv("SENSORS", "1")
	t.Setenv("SENSOR_0_TYPE", "numeric")
	t.Setenv("SENSOR_0_NAME", "temp")
	t.Setenv("SENSOR_0_PERIOD_MS", "10")
	t.Setenv("SENSOR_0_MIN", "10")
	t.Setenv("SENSOR_0_MAX", "20")
	t.Setenv("SENSOR_0_UNIT", "celsius")

	m := NewManager(func(Reading) {})
	require.NoError(t, m.LoadFromEnv())
	require.Len(t, m.Sensors(), 1)

	s := m.Sensors()[0]
	assert.Equal(t, "temp", s.ID())
	assert.Equal(t, "celsius", s.Unit())
	assert.True(t, s.HasUnit())
	assert.Equal(t, int64(10), s.PeriodMillis())

	v, ok := s.Next().(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 10.0)
	assert.LessOrEqual(t, v, 20.0)
}

func TestManager_LoadFromEnv_MissingTypeFails(t *testing.T) {
	t.Setenv("SENSORS", "1")
	t.Setenv("SENSOR_0_PERIOD_MS", "10")

	m := NewManager(func(Reading) {})
	err := m.LoadFromEnv()
	require.Error(t, err)
}

func TestManager_LoadFromEnv_CategoricalRequiresValues(t *testing.T) {
	t.Setenv("SENSORS", "1")
	t.Setenv("SENSOR_0_TYPE", "categorical")
	t.Setenv("SENSOR_0_PERIOD_MS", "10")

	m := NewManager(func(Reading) {})
	err := m.LoadFromEnv()
	require.Error(t, err)
}

func TestManager_StartAllDeliversReadings(t *testing.T) {
	t.Setenv("SENSORS", "1")
	t.Setenv("SENSOR_0_TYPE", "boolean")
	t.Setenv("SENSOR_0_PERIOD_MS", "5")
	t.Setenv("SENSOR_0_P_TRUE", "1")

	var mu sync.Mutex
	var got []Reading
	m := NewManager(func(r Reading) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	require.NoError(t, m.LoadFromEnv())

	m.StartAll()
	defer m.StopAll()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, time.Second, 5*time.Millisecond)
}
