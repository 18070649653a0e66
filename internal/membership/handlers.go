package membership

import (
	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/protocol"
)

// Sender delivers msg to peerID. Handlers always reply to the
// transport-level sender of the message they're handling, never to a
// logical node_id read out of a payload — see handleJoinRequest.
type Sender func(peerID string, msg protocol.Message) error

// OnPeerDiscovered is invoked once, synchronously, whenever a peer is
// newly admitted into the table — never for peers already known.
type OnPeerDiscovered func(Peer)

// Handlers bundles the bound JOIN_REQUEST and PEER_LIST callbacks
// returned by NewHandlers, ready for protocol.Dispatcher.Register.
type Handlers struct {
	HandleJoinRequest protocol.Handler
	HandlePeerList    protocol.Handler
}

// NewHandlers builds the JOIN_REQUEST/PEER_LIST handler pair bound to
// table, send and selfNodeID, grounded on
// membership/handlers.py's make_membership_handlers. onDiscovered may
// be nil.
func NewHandlers(table *PeerTable, send Sender, selfNodeID string, onDiscovered OnPeerDiscovered, log logging.Logger) Handlers {
	notifyDiscovered := func(p Peer) {
		if onDiscovered == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Warnf("on_peer_discovered panicked for peer %s %s:%d: %v", p.NodeID, p.Host, p.Port, r)
			}
		}()
		onDiscovered(p)
	}

	handleJoinRequest := func(msg protocol.Message) error {
		nodeID, host, port, ok := peerFields(msg.Payload)
		if !ok {
			log.Warn("invalid JOIN_REQUEST payload")
			return nil
		}

		// Ignore self-join completely: no side effects, no reply.
		if nodeID == selfNodeID {
			return nil
		}

		host = fixUpAdvertisedHost(host, nodeID, log)
		peer := NewPeer(nodeID, host, port)
		if table.AddPeer(peer) {
			log.Infof("new peer joined: %s %s:%d", nodeID, host, port)
			notifyDiscovered(peer)
		} else {
			log.Infof("JOIN_REQUEST from known peer: %s", nodeID)
		}

		reply := protocol.New(protocol.PeerList, selfNodeID, protocol.Payload{
			"peers": peerListPayload(table.ListPeers()),
		})

		// Reply to the transport-level sender of this frame, not the
		// logical node_id carried in the payload: the two can differ
		// for a client that has not yet registered its real identity.
		return send(msg.SenderID, reply)
	}

	handlePeerList := func(msg protocol.Message) error {
		raw, ok := msg.Payload["peers"]
		if !ok {
			log.Warn("invalid PEER_LIST payload")
			return nil
		}
		entries, ok := raw.([]interface{})
		if !ok {
			log.Warn("invalid PEER_LIST payload")
			return nil
		}

		addedCount := 0
		for _, e := range entries {
			entry, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			nodeID, host, port, ok := peerFields(entry)
			if !ok {
				continue
			}
			if nodeID == selfNodeID {
				continue
			}

			host = fixUpAdvertisedHost(host, nodeID, log)
			peer := NewPeer(nodeID, host, port)
			if table.AddPeer(peer) {
				addedCount++
				notifyDiscovered(peer)
			}
		}

		if addedCount > 0 {
			log.Infof("integrated %d new peers from PEER_LIST", addedCount)
		}
		return nil
	}

	return Handlers{
		HandleJoinRequest: handleJoinRequest,
		HandlePeerList:    handlePeerList,
	}
}

// fixUpAdvertisedHost substitutes nodeID for a peer that advertises
// 0.0.0.0, which is unreachable from any other host. This assumes
// deployments provide DNS-resolvable node ids.
func fixUpAdvertisedHost(host, nodeID string, log logging.Logger) string {
	if host != "0.0.0.0" {
		return host
	}
	log.Debugf("advertised host 0.0.0.0 for peer %s, substituting node id as hostname", nodeID)
	return nodeID
}

// peerFields extracts node_id/host/port from a decoded JSON object,
// tolerating JSON numbers (float64) and the occasional literal int a
// caller constructs in-process.
func peerFields(payload map[string]interface{}) (nodeID, host string, port int, ok bool) {
	nodeID, ok = payload["node_id"].(string)
	if !ok || nodeID == "" {
		return "", "", 0, false
	}
	host, ok = payload["host"].(string)
	if !ok || host == "" {
		return "", "", 0, false
	}
	switch v := payload["port"].(type) {
	case float64:
		port = int(v)
	case int:
		port = v
	default:
		return "", "", 0, false
	}
	return nodeID, host, port, true
}

func peerListPayload(peers []Peer) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(peers))
	for _, p := range peers {
		out = append(out, map[string]interface{}{
			"node_id": p.NodeID,
			"host":    p.Host,
			"port":    p.Port,
		})
	}
	return out
}
