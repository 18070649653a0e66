// Package state implements the LWW state engine and replication
// publisher, grounded on original_source/state/node_state_worker.py
// and sensor_update_publisher.py, generalized from single-node
// local-only bookkeeping into a merge that also accepts remote
// updates with an explicit origin tiebreak.
package state

import "encoding/json"

// Meta is normalized to exactly {unit, period_ms}; a field the sender
// never set is omitted rather than marshaled as its zero value.
type Meta struct {
	Unit      string
	PeriodMs  int64
	HasUnit   bool
	HasPeriod bool
}

// MarshalJSON renders only the fields actually present, so an absent
// unit or period_ms is omitted instead of coming out as "" or 0.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if m.HasUnit {
		out["unit"] = m.Unit
	}
	if m.HasPeriod {
		out["period_ms"] = m.PeriodMs
	}
	return json.Marshal(out)
}

// Record is one LWW value: {value, ts_ms, origin, meta}. Records are
// replaced wholesale on a winning merge, never mutated in place.
type Record struct {
	Value  interface{} `json:"value"`
	TsMs   int64       `json:"ts_ms"`
	Origin string      `json:"origin"`
	Meta   Meta        `json:"meta"`
}

// wins reports whether a candidate (tsMs, origin) strictly dominates
// the prior record: a greater ts_ms, or equal ts_ms with a
// lexicographically greater origin.
func wins(tsMs int64, origin string, prior Record) bool {
	if tsMs != prior.TsMs {
		return tsMs > prior.TsMs
	}
	return origin > prior.Origin
}
