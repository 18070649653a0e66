package membership

import (
	"sync"
	"time"
)

// PeerTable is the thread-safe table of known peers: insert-without-
// overwrite semantics, self-exclusion, and read-only snapshots for
// gossip replies, grounded on peer_table.py.
type PeerTable struct {
	selfNodeID string

	mu    sync.Mutex
	peers map[string]Peer
}

// NewPeerTable builds an empty table that will never admit selfNodeID.
func NewPeerTable(selfNodeID string) *PeerTable {
	return &PeerTable{
		selfNodeID: selfNodeID,
		peers:      make(map[string]Peer),
	}
}

// AddPeer inserts peer if it isn't self and isn't already present.
// Reports true only when the peer was actually added.
func (t *PeerTable) AddPeer(peer Peer) bool {
	if peer.NodeID == t.selfNodeID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.peers[peer.NodeID]; exists {
		return false
	}
	t.peers[peer.NodeID] = peer
	return true
}

// GetPeer returns the peer for nodeID and whether it was found.
func (t *PeerTable) GetPeer(nodeID string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[nodeID]
	return p, ok
}

// UpdateHeartbeat marks nodeID alive as of timestamp. A no-op if
// nodeID isn't known.
func (t *PeerTable) UpdateHeartbeat(nodeID string, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[nodeID]
	if !ok {
		return
	}
	p.LastHeartbeat = timestamp
	p.Status = StatusAlive
	t.peers[nodeID] = p
}

// ListPeers returns a snapshot of every known peer, self excluded by
// construction (self is never admitted by AddPeer).
func (t *PeerTable) ListPeers() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// Size reports the number of known peers, used by the peer_table_size
// gauge.
func (t *PeerTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
