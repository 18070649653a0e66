package protocol

import (
	"errors"
	"testing"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RegisterRejectsDuplicate(t *testing.T) {
	d := NewDispatcher(logging.NewNop())
	require.NoError(t, d.Register(Ping, func(Message) error { return nil }))

	err := d.Register(Ping, func(Message) error { return nil })
	require.Error(t, err)
	var dup *ErrDuplicateHandler
	assert.ErrorAs(t, err, &dup)
}

func TestDispatcher_DispatchUnknownKindIsIgnored(t *testing.T) {
	d := NewDispatcher(logging.NewNop())
	err := d.Dispatch(New(Pong, "node-1", nil))
	assert.NoError(t, err)
}

func TestDispatcher_DispatchPropagatesHandlerError(t *testing.T) {
	d := NewDispatcher(logging.NewNop())
	boom := errors.New("boom")
	require.NoError(t, d.Register(SensorUpdate, func(Message) error { return boom }))

	err := d.Dispatch(New(SensorUpdate, "node-1", nil))
	assert.ErrorIs(t, err, boom)
}

func TestNotImplementedHandler_ReturnsHandlerValidationError(t *testing.T) {
	d := NewDispatcher(logging.NewNop())
	require.NoError(t, d.Register(Ping, NotImplementedHandler(Ping)))

	err := d.Dispatch(New(Ping, "node-1", nil))
	require.Error(t, err)
	var validation *HandlerValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, Ping, validation.Kind)
}
