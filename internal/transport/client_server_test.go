package transport_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/jabolina/sensor-mesh/internal/transport"
	"github.com/stretchr/testify/require"
)

// TestTransportRoundTrip starts a server on an ephemeral port, adds it
// as a peer on a client, enqueues a message, and observes it arrive at
// the dispatcher with its fields intact. Verifies no peer worker or
// connection handler goroutine survives Stop.
func TestTransportRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	log := logging.NewNop()

	dispatcher := protocol.NewDispatcher(log)
	received := make(chan protocol.Message, 1)
	require.NoError(t, dispatcher.Register(protocol.Ping, func(m protocol.Message) error {
		received <- m
		return nil
	}))

	srv := transport.NewServer(transport.DefaultServerConfig("127.0.0.1", 0), dispatcher, log)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	host, port := splitHostPort(t, srv.Addr().String())

	client := transport.NewClient(transport.DefaultClientConfig(), log)
	defer client.Stop()
	require.NoError(t, client.AddPeer("node-b", host, port))

	msg := protocol.New(protocol.Ping, "node-a", protocol.Payload{"seq": float64(1)})
	require.NoError(t, client.Enqueue("node-b", msg))

	select {
	case got := <-received:
		require.Equal(t, protocol.Ping, got.Kind)
		require.Equal(t, "node-a", got.SenderID)
		require.Equal(t, float64(1), got.Payload["seq"])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message to arrive")
	}
}

func TestClient_EnqueueUnknownPeerFails(t *testing.T) {
	client := transport.NewClient(transport.DefaultClientConfig(), logging.NewNop())
	defer client.Stop()

	err := client.Enqueue("ghost", protocol.New(protocol.Ping, "node-a", nil))
	require.Error(t, err)
	var unknown *transport.ErrUnknownPeer
	require.ErrorAs(t, err, &unknown)
}

func TestClient_AddPeerRejectsDuplicate(t *testing.T) {
	client := transport.NewClient(transport.DefaultClientConfig(), logging.NewNop())
	defer client.Stop()

	require.NoError(t, client.AddPeer("node-b", "127.0.0.1", 9000))
	err := client.AddPeer("node-b", "127.0.0.1", 9000)
	require.Error(t, err)
	var dup *transport.ErrDuplicatePeerWorker
	require.ErrorAs(t, err, &dup)
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
