// Package membership implements peer discovery: the peer table and the
// JOIN_REQUEST/PEER_LIST handlers, grounded on
// original_source/membership/peer.py, peer_table.py and handlers.py,
// translated into the teacher's mutex-guarded-map idiom
// (pkg/mcast/core/peer.go-style bookkeeping) instead of Python's
// threading.Lock.
package membership

import "time"

// Status mirrors original_source/membership/peer.py's PeerStatus
// literal. Only StatusAlive is ever assigned by the current handlers;
// StatusSuspected/StatusDead are reserved for a future phi-accrual
// failure detector, not implemented yet.
type Status string

const (
	StatusAlive     Status = "alive"
	StatusSuspected Status = "suspected"
	StatusDead      Status = "dead"
)

// Peer is one entry of the peer table: an address plus liveness
// bookkeeping. Phi and Status are carried for a future failure
// detector and are not read by any handler today.
type Peer struct {
	NodeID string
	Host   string
	Port   int

	LastHeartbeat time.Time
	Phi           float64
	Status        Status
}

// NewPeer constructs a freshly-discovered, presumed-alive Peer.
func NewPeer(nodeID, host string, port int) Peer {
	return Peer{
		NodeID:        nodeID,
		Host:          host,
		Port:          port,
		LastHeartbeat: time.Now(),
		Phi:           0,
		Status:        StatusAlive,
	}
}
