package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RoundTripPreservesFields(t *testing.T) {
	original := New(JoinRequest, "node-1", Payload{"host": "127.0.0.1", "port": float64(9001)})

	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, original.Kind, decoded.Kind)
	assert.Equal(t, original.SenderID, decoded.SenderID)
	assert.Equal(t, original.TimestampMs, decoded.TimestampMs)
	assert.Equal(t, original.Payload, decoded.Payload)
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"NOT_A_REAL_KIND","sender_id":"a"}`))
	require.Error(t, err)
}

func TestDecode_RejectsMissingSenderID(t *testing.T) {
	_, err := Decode([]byte(`{"type":"PING"}`))
	require.Error(t, err)
}

func TestDecode_DefaultsTimestampAndPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"PING","sender_id":"a"}`))
	require.NoError(t, err)
	assert.NotZero(t, msg.TimestampMs)
	assert.Equal(t, Payload{}, msg.Payload)
}

func TestDecode_AcceptsReservedKinds(t *testing.T) {
	for _, kind := range []Kind{Ping, Pong, GossipState, FullSyncRequest, FullSyncResponse, ErrorKind, Ack} {
		_, err := Decode([]byte(`{"type":"` + string(kind) + `","sender_id":"a"}`))
		require.NoError(t, err, "kind %s must decode cleanly even though unimplemented", kind)
	}
}
