package state

import (
	"testing"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUpdate_FirstWriteAlwaysWins(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	ok := e.MergeUpdate("s1", 10, 1000, "A", Meta{})
	assert.True(t, ok)
}

func TestMergeUpdate_TieBreaksOnOriginLexicographically(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	require.True(t, e.MergeUpdate("s1", 10, 1000, "A", Meta{}))
	require.True(t, e.MergeUpdate("s1", 20, 1000, "B", Meta{}))

	snap := e.GetStateSnapshot()
	rec := snap["node-a"]["B:s1"]
	assert.Equal(t, 20, rec.Value)
	assert.Equal(t, int64(1000), rec.TsMs)
	assert.Equal(t, "B", rec.Origin)
}

func TestMergeUpdate_RejectsLowerOrEqualLosingOrigin(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	require.True(t, e.MergeUpdate("s1", 20, 1000, "B", Meta{}))

	assert.False(t, e.MergeUpdate("s1", 99, 1000, "A", Meta{}))
	assert.False(t, e.MergeUpdate("s1", 99, 999, "Z", Meta{}))

	snap := e.GetStateSnapshot()
	assert.Equal(t, 20, snap["node-a"]["B:s1"].Value)
}

func TestMergeUpdate_GreaterTimestampAlwaysWinsRegardlessOfOrigin(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	require.True(t, e.MergeUpdate("s1", 1, 1000, "Z", Meta{}))
	require.True(t, e.MergeUpdate("s1", 2, 1001, "A", Meta{}))

	snap := e.GetStateSnapshot()
	assert.Equal(t, 2, snap["node-a"]["A:s1"].Value)
}

func TestMergeUpdate_RejectsEmptySensorIDOrOrigin(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	assert.False(t, e.MergeUpdate("", 1, 1000, "A", Meta{}))
	assert.False(t, e.MergeUpdate("s1", 1, 1000, "", Meta{}))
}

func TestGetUpdatesSnapshot_ClearsBufferOnRead(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	require.True(t, e.MergeUpdate("s1", 1, 1000, "node-a", Meta{}))

	first := e.GetUpdatesSnapshot()
	assert.Len(t, first["node-a"], 1)

	second := e.GetUpdatesSnapshot()
	assert.Len(t, second["node-a"], 0)
}

func TestPopReplicationUpdates_ClearsBufferOnRead(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	require.True(t, e.MergeUpdate("s1", 1, 1000, "node-a", Meta{}))

	first := e.PopReplicationUpdates()
	assert.Len(t, first["node-a"], 1)

	second := e.PopReplicationUpdates()
	assert.Len(t, second["node-a"], 0)
}

func TestEngine_RunAppliesSubmittedEventsWithSelfOrigin(t *testing.T) {
	e := NewEngine("node-a", 0, logging.NewNop())
	go e.Run()
	defer e.Stop()

	e.Submit(SensorEvent{SensorID: "s1", Value: 42, TsMs: 5})

	require.Eventually(t, func() bool {
		snap := e.GetStateSnapshot()
		rec, ok := snap["node-a"]["node-a:s1"]
		return ok && rec.Value == 42
	}, time.Second, 10*time.Millisecond)
}
