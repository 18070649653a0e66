package state

import (
	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/protocol"
)

// NewSensorUpdateHandler builds the SENSOR_UPDATE dispatcher handler:
// it validates the same fields MergeUpdate requires and applies the
// update with the payload's origin, never the transport sender, so a
// forwarded update keeps the node that first produced it as the
// tiebreak identity. Malformed payloads are logged and dropped.
func NewSensorUpdateHandler(engine *Engine, log logging.Logger) protocol.Handler {
	return func(msg protocol.Message) error {
		sensorID, ok := msg.Payload["sensor_id"].(string)
		if !ok || sensorID == "" {
			log.Warn("invalid SENSOR_UPDATE payload: missing sensor_id")
			return nil
		}
		origin, ok := msg.Payload["origin"].(string)
		if !ok || origin == "" {
			log.Warn("invalid SENSOR_UPDATE payload: missing origin")
			return nil
		}
		tsMs, ok := asInt64(msg.Payload["ts_ms"])
		if !ok {
			log.Warn("invalid SENSOR_UPDATE payload: missing ts_ms")
			return nil
		}
		value := msg.Payload["value"]
		meta := decodeMeta(msg.Payload["meta"])

		engine.MergeUpdate(sensorID, value, tsMs, origin, meta)
		return nil
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func decodeMeta(v interface{}) Meta {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Meta{}
	}
	var meta Meta
	if unit, ok := m["unit"].(string); ok {
		meta.Unit = unit
		meta.HasUnit = true
	}
	if period, ok := asInt64(m["period_ms"]); ok {
		meta.PeriodMs = period
		meta.HasPeriod = true
	}
	return meta
}
