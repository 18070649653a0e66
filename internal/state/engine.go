package state

import (
	"sync"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/metrics"
)

// SensorEvent is one locally-produced reading, handed to the engine's
// consumer loop and merged with origin set to the engine's own node
// id.
type SensorEvent struct {
	SensorID string
	Value    interface{}
	TsMs     int64
	Meta     Meta
}

// Snapshot is the grouped-map shape this engine returns: the outer key
// is always the engine's own node id, and the inner key is
// "<origin>:<sensor_id>" so UI/replication consumers can see the pair
// without a second lookup.
type Snapshot map[string]map[string]Record

// Engine is the LWW state engine: one map of current records, two
// incremental "since last read" buffers, and one lock guarding all
// three, so a snapshot-and-clear is always atomic.
//
// Grounded on node_state_worker.py's NodeStateWorker, generalized from
// a local-only store (always origin == self_node_id) to a true merge
// that also accepts remote updates under a (ts_ms, origin) tiebreak.
type Engine struct {
	selfNodeID string
	log        logging.Logger

	mu          sync.Mutex
	records     map[string]Record // sensor_id -> current record
	uiBuffer    map[string]Record // "origin:sensor_id" -> record, since last UI read
	replBuffer  map[string]Record // "origin:sensor_id" -> record, since last publisher pop

	inbound chan SensorEvent
	stop    chan struct{}
	done    chan struct{}

	dumpInterval time.Duration
	metrics      *metrics.Registry
}

// WithMetrics attaches a metrics registry whose
// sensor_updates_applied_total/sensor_updates_rejected_total counters
// MergeUpdate increments from then on. Optional; a nil registry (the
// zero value) leaves metrics untouched.
func (e *Engine) WithMetrics(m *metrics.Registry) *Engine {
	e.metrics = m
	return e
}

// NewEngine constructs an Engine for selfNodeID. dumpInterval, when
// nonzero, enables an optional periodic full-state debug dump; zero
// disables it.
func NewEngine(selfNodeID string, dumpInterval time.Duration, log logging.Logger) *Engine {
	return &Engine{
		selfNodeID:   selfNodeID,
		log:          log,
		records:      make(map[string]Record),
		uiBuffer:     make(map[string]Record),
		replBuffer:   make(map[string]Record),
		inbound:      make(chan SensorEvent, 256),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		dumpInterval: dumpInterval,
	}
}

// Submit hands a locally-produced sensor event to the consumer loop.
// Never blocks the caller for long: the inbound channel is generously
// buffered, and a full buffer means the consumer has stalled, in which
// case Submit blocks until it drains (mirrors queue.Queue.put's
// backpressure in node_state_worker.py's producer side).
func (e *Engine) Submit(ev SensorEvent) {
	select {
	case e.inbound <- ev:
	case <-e.stop:
	}
}

// Run drives the consumer loop: dequeue local sensor events, merge
// them with origin=self, and optionally emit a periodic debug dump.
// Run blocks until Stop is called; callers run it in its own
// goroutine.
func (e *Engine) Run() {
	defer close(e.done)

	var dumpC <-chan time.Time
	if e.dumpInterval > 0 {
		ticker := time.NewTicker(e.dumpInterval)
		defer ticker.Stop()
		dumpC = ticker.C
	}

	for {
		select {
		case <-e.stop:
			return
		case ev := <-e.inbound:
			if ok := e.MergeUpdate(ev.SensorID, ev.Value, ev.TsMs, e.selfNodeID, ev.Meta); ok {
				e.log.Infof("LWW update applied: sensor=%s value=%v ts=%d", ev.SensorID, ev.Value, ev.TsMs)
			}
		case <-dumpC:
			e.dumpState()
		}
	}
}

// Stop signals Run to return and waits for it to finish.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

// MergeUpdate applies the strict LWW-with-origin-tiebreak rule.
// Invalid input (empty sensorID/origin) returns false without touching
// the state or either buffer; like a losing merge, it only increments
// the rejected counter when metrics are attached. On acceptance the record replaces any prior value and
// is written to both incremental buffers.
func (e *Engine) MergeUpdate(sensorID string, value interface{}, tsMs int64, origin string, meta Meta) bool {
	if sensorID == "" || origin == "" {
		e.countRejected()
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prior, exists := e.records[sensorID]
	if exists && !wins(tsMs, origin, prior) {
		e.countRejected()
		return false
	}

	record := Record{Value: value, TsMs: tsMs, Origin: origin, Meta: meta}
	e.records[sensorID] = record

	key := origin + ":" + sensorID
	e.uiBuffer[key] = record
	e.replBuffer[key] = record
	e.countApplied()
	return true
}

func (e *Engine) countApplied() {
	if e.metrics != nil {
		e.metrics.SensorUpdatesApplied.Inc()
	}
}

func (e *Engine) countRejected() {
	if e.metrics != nil {
		e.metrics.SensorUpdatesRejected.Inc()
	}
}

// GetStateSnapshot returns the full current LWW state, grouped under
// self_node_id, keyed "<origin>:<sensor_id>". Never clears anything.
func (e *Engine) GetStateSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	inner := make(map[string]Record, len(e.records))
	for sensorID, rec := range e.records {
		inner[rec.Origin+":"+sensorID] = rec
	}
	return Snapshot{e.selfNodeID: inner}
}

// GetUpdatesSnapshot returns (and clears) everything written to the UI
// buffer since the last call, grouped the same way as
// GetStateSnapshot.
func (e *Engine) GetUpdatesSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	inner := make(map[string]Record, len(e.uiBuffer))
	for k, v := range e.uiBuffer {
		inner[k] = v
	}
	e.uiBuffer = make(map[string]Record)
	return Snapshot{e.selfNodeID: inner}
}

// PopReplicationUpdates returns (and clears) everything written to the
// replication buffer since the last call. The publisher consumes this
// directly.
func (e *Engine) PopReplicationUpdates() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	inner := make(map[string]Record, len(e.replBuffer))
	for k, v := range e.replBuffer {
		inner[k] = v
	}
	e.replBuffer = make(map[string]Record)
	return Snapshot{e.selfNodeID: inner}
}

func (e *Engine) dumpState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sensorID, rec := range e.records {
		e.log.Debugf("state dump: sensor=%s value=%v ts=%d origin=%s", sensorID, rec.Value, rec.TsMs, rec.Origin)
	}
}
