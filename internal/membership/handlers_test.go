package membership

import (
	"testing"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleJoinRequest_AddsPeerAndRepliesToTransportSender(t *testing.T) {
	table := NewPeerTable("self")
	var sentTo string
	var sentMsg protocol.Message
	send := func(peerID string, msg protocol.Message) error {
		sentTo = peerID
		sentMsg = msg
		return nil
	}

	var discovered []Peer
	handlers := NewHandlers(table, send, "self", func(p Peer) {
		discovered = append(discovered, p)
	}, logging.NewNop())

	join := protocol.New(protocol.JoinRequest, "transport-sender", protocol.Payload{
		"node_id": "node-a",
		"host":    "10.0.0.1",
		"port":    float64(9000),
	})

	require.NoError(t, handlers.HandleJoinRequest(join))

	_, ok := table.GetPeer("node-a")
	assert.True(t, ok)
	require.Len(t, discovered, 1)
	assert.Equal(t, "node-a", discovered[0].NodeID)

	// Reply must go to the envelope's sender, not payload.node_id.
	assert.Equal(t, "transport-sender", sentTo)
	assert.Equal(t, protocol.PeerList, sentMsg.Kind)
	peers, ok := sentMsg.Payload["peers"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, peers, 1)
	assert.Equal(t, "node-a", peers[0]["node_id"])
}

func TestHandleJoinRequest_IgnoresSelfJoin(t *testing.T) {
	table := NewPeerTable("self")
	called := false
	send := func(string, protocol.Message) error {
		called = true
		return nil
	}
	handlers := NewHandlers(table, send, "self", nil, logging.NewNop())

	join := protocol.New(protocol.JoinRequest, "self", protocol.Payload{
		"node_id": "self",
		"host":    "10.0.0.1",
		"port":    float64(9000),
	})
	require.NoError(t, handlers.HandleJoinRequest(join))
	assert.False(t, called)
	assert.Equal(t, 0, table.Size())
}

func TestHandleJoinRequest_InvalidPayloadIsIgnored(t *testing.T) {
	table := NewPeerTable("self")
	called := false
	send := func(string, protocol.Message) error {
		called = true
		return nil
	}
	handlers := NewHandlers(table, send, "self", nil, logging.NewNop())

	join := protocol.New(protocol.JoinRequest, "transport-sender", protocol.Payload{
		"node_id": "node-a",
	})
	require.NoError(t, handlers.HandleJoinRequest(join))
	assert.False(t, called)
	assert.Equal(t, 0, table.Size())
}

func TestHandlePeerList_IntegratesNewPeersAndSkipsSelf(t *testing.T) {
	table := NewPeerTable("self")
	discoveredCount := 0
	handlers := NewHandlers(table, nil, "self", func(Peer) {
		discoveredCount++
	}, logging.NewNop())

	msg := protocol.New(protocol.PeerList, "node-a", protocol.Payload{
		"peers": []interface{}{
			map[string]interface{}{"node_id": "node-b", "host": "10.0.0.2", "port": float64(9001)},
			map[string]interface{}{"node_id": "self", "host": "10.0.0.3", "port": float64(9002)},
			map[string]interface{}{"node_id": "node-b", "host": "10.0.0.9", "port": float64(9999)},
		},
	})

	require.NoError(t, handlers.HandlePeerList(msg))
	assert.Equal(t, 1, table.Size())
	assert.Equal(t, 1, discoveredCount)
	_, ok := table.GetPeer("self")
	assert.False(t, ok)
}

func TestHandlePeerList_InvalidPayloadIsIgnored(t *testing.T) {
	table := NewPeerTable("self")
	handlers := NewHandlers(table, nil, "self", nil, logging.NewNop())
	msg := protocol.New(protocol.PeerList, "node-a", protocol.Payload{"peers": "not-a-list"})
	require.NoError(t, handlers.HandlePeerList(msg))
	assert.Equal(t, 0, table.Size())
}

func TestNewHandlers_DiscoveredCallbackPanicIsRecovered(t *testing.T) {
	table := NewPeerTable("self")
	send := func(string, protocol.Message) error { return nil }
	handlers := NewHandlers(table, send, "self", func(Peer) {
		panic("boom")
	}, logging.NewNop())

	join := protocol.New(protocol.JoinRequest, "transport-sender", protocol.Payload{
		"node_id": "node-a",
		"host":    "10.0.0.1",
		"port":    float64(9000),
	})
	assert.NotPanics(t, func() {
		require.NoError(t, handlers.HandleJoinRequest(join))
	})
}
