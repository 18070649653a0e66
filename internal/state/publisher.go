package state

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/membership"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/jabolina/sensor-mesh/internal/transport"
)

// DefaultPublishInterval is the default publish cadence.
const DefaultPublishInterval = 200 * time.Millisecond

// Publisher is the periodic task that ships locally-originated LWW
// updates to every known peer, grounded on
// original_source/state/sensor_update_publisher.py's SensorUpdatePublisher,
// adjusted to pop from the replication buffer rather than the UI
// buffer the original reads.
type Publisher struct {
	selfNodeID string
	table      *membership.PeerTable
	client     *transport.Client
	engine     *Engine
	log        logging.Logger
	interval   time.Duration

	// registerGroup runs just-in-time AddPeer calls through
	// singleflight keyed by peer id, so overlapping calls for the same
	// peer would collapse into one. publishOnce starts one sendToPeer
	// goroutine per distinct peer and handles records one at a time,
	// so calls for the same peer do not overlap there; an AddPeer that
	// loses to another registration path still surfaces as
	// ErrDuplicatePeerWorker, which sendToPeer tolerates.
	registerGroup singleflight.Group

	stop chan struct{}
	done chan struct{}
}

// NewPublisher constructs a Publisher. interval <= 0 is replaced with
// DefaultPublishInterval.
func NewPublisher(selfNodeID string, table *membership.PeerTable, client *transport.Client, engine *Engine, interval time.Duration, log logging.Logger) *Publisher {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Publisher{
		selfNodeID: selfNodeID,
		table:      table,
		client:     client,
		engine:     engine,
		log:        log,
		interval:   interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run blocks, publishing once per interval, until Stop is called.
func (p *Publisher) Run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

// Stop signals Run to return and waits for it to finish.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Publisher) publishOnce() {
	snapshot := p.engine.PopReplicationUpdates()
	updates := snapshot[p.selfNodeID]
	if len(updates) == 0 {
		return
	}

	peers := p.table.ListPeers()
	if len(peers) == 0 {
		return
	}

	for key, record := range updates {
		// Only this node's own updates are ever republished; with this
		// filter every node only ever re-sends what it produced.
		if record.Origin != p.selfNodeID {
			continue
		}

		sensorID := key
		if idx := strings.Index(key, ":"); idx >= 0 {
			sensorID = key[idx+1:]
		}

		msg := protocol.New(protocol.SensorUpdate, p.selfNodeID, protocol.Payload{
			"sensor_id": sensorID,
			"value":     record.Value,
			"ts_ms":     record.TsMs,
			"origin":    record.Origin,
			"meta":      metaPayload(record.Meta),
		})

		var wg sync.WaitGroup
		for _, peer := range peers {
			wg.Add(1)
			go func(peer membership.Peer) {
				defer wg.Done()
				p.sendToPeer(peer, msg)
			}(peer)
		}
		wg.Wait()
	}
}

func (p *Publisher) sendToPeer(peer membership.Peer, msg protocol.Message) {
	err := p.client.Enqueue(peer.NodeID, msg)
	if err == nil {
		return
	}

	var unknown *transport.ErrUnknownPeer
	if !asUnknownPeer(err, &unknown) {
		p.log.Warnf("failed to send SENSOR_UPDATE to peer_id=%s: %v", peer.NodeID, err)
		return
	}

	// Just-in-time registration, retried exactly once, through
	// registerGroup (keyed by peer id).
	_, addErr, _ := p.registerGroup.Do(peer.NodeID, func() (interface{}, error) {
		return nil, p.client.AddPeer(peer.NodeID, peer.Host, peer.Port)
	})
	if addErr != nil {
		var dup *transport.ErrDuplicatePeerWorker
		if !asDuplicatePeer(addErr, &dup) {
			p.log.Warnf("failed to add peer_id=%s for SENSOR_UPDATE: %v", peer.NodeID, addErr)
			return
		}
	}
	if err := p.client.Enqueue(peer.NodeID, msg); err != nil {
		p.log.Warnf("failed to send SENSOR_UPDATE to peer_id=%s after registration: %v", peer.NodeID, err)
	}
}

func metaPayload(m Meta) map[string]interface{} {
	out := map[string]interface{}{"unit": nil, "period_ms": nil}
	if m.HasUnit {
		out["unit"] = m.Unit
	}
	if m.HasPeriod {
		out["period_ms"] = m.PeriodMs
	}
	return out
}

func asUnknownPeer(err error, target **transport.ErrUnknownPeer) bool {
	e, ok := err.(*transport.ErrUnknownPeer)
	if ok {
		*target = e
	}
	return ok
}

func asDuplicatePeer(err error, target **transport.ErrDuplicatePeerWorker) bool {
	e, ok := err.(*transport.ErrDuplicatePeerWorker)
	if ok {
		*target = e
	}
	return ok
}
