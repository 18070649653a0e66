package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/protocol"
	"github.com/jabolina/sensor-mesh/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestServer_MalformedFrameDoesNotCloseConnection(t *testing.T) {
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

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(transport.EncodeFrame([]byte("not json")))
	require.NoError(t, err)

	msg := protocol.New(protocol.Ping, "node-a", nil)
	raw, err := msg.ToBytes()
	require.NoError(t, err)
	_, err = conn.Write(transport.EncodeFrame(raw))
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "node-a", got.SenderID)
	case <-time.After(3 * time.Second):
		t.Fatal("good frame after a malformed one was never dispatched")
	}
}

func TestServer_StopClosesListenerAndConnections(t *testing.T) {
	log := logging.NewNop()
	dispatcher := protocol.NewDispatcher(log)
	srv := transport.NewServer(transport.DefaultServerConfig("127.0.0.1", 0), dispatcher, log)
	require.NoError(t, srv.Start())

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	srv.Stop()

	_, err = net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond)
	require.Error(t, err)
}
