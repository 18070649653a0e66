package state_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/membership"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/jabolina/sensor-mesh/internal/state"
	"github.com/jabolina/sensor-mesh/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishesLocalUpdatesAndJITRegistersPeer(t *testing.T) {
	log := logging.NewNop()

	dispatcher := protocol.NewDispatcher(log)
	received := make(chan protocol.Message, 4)
	require.NoError(t, dispatcher.Register(protocol.SensorUpdate, func(m protocol.Message) error {
		received <- m
		return nil
	}))

	srv := transport.NewServer(transport.DefaultServerConfig("127.0.0.1", 0), dispatcher, log)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	host, port := splitAddr(t, srv.Addr().String())

	table := membership.NewPeerTable("node-a")
	table.AddPeer(membership.NewPeer("node-b", host, port))

	client := transport.NewClient(transport.DefaultClientConfig(), log)
	defer client.Stop()

	engine := state.NewEngine("node-a", 0, log)
	go engine.Run()
	defer engine.Stop()

	// A remote-origin update must never be republished (loop
	// freedom): seed one directly via MergeUpdate.
	require.True(t, engine.MergeUpdate("remote-sensor", 1, 1000, "node-c", state.Meta{}))
	// A local-origin update must be sent.
	engine.Submit(state.SensorEvent{SensorID: "local-sensor", Value: 7, TsMs: 2000})

	require.Eventually(t, func() bool {
		snap := engine.GetStateSnapshot()
		_, ok := snap["node-a"]["node-a:local-sensor"]
		return ok
	}, time.Second, 5*time.Millisecond)

	pub := state.NewPublisher("node-a", table, client, engine, 20*time.Millisecond, log)
	go pub.Run()
	defer pub.Stop()

	select {
	case got := <-received:
		require.Equal(t, protocol.SensorUpdate, got.Kind)
		require.Equal(t, "local-sensor", got.Payload["sensor_id"])
		require.Equal(t, "node-a", got.Payload["origin"])
	case <-time.After(2 * time.Second):
		t.Fatal("local update was never published")
	}

	select {
	case got := <-received:
		t.Fatalf("unexpected second publish (loop or remote leak): %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
