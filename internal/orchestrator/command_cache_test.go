package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandCache_SetThenGetRoundTrips(t *testing.T) {
	c := newCommandCache(4, nil)
	c.set("cmd-1", commandRecord{StartMethod: &StartMethodResult{ProtocolRunID: "run-1"}})

	rec, ok := c.get("cmd-1")
	require.True(t, ok)
	assert.Equal(t, "run-1", rec.StartMethod.ProtocolRunID)

	_, ok = c.get("cmd-missing")
	assert.False(t, ok)
}

func TestCommandCache_EvictsOldestOnceOverCap(t *testing.T) {
	c := newCommandCache(2, nil)
	c.set("cmd-1", commandRecord{StartMethod: &StartMethodResult{ProtocolRunID: "run-1"}})
	c.set("cmd-2", commandRecord{StartMethod: &StartMethodResult{ProtocolRunID: "run-2"}})
	c.set("cmd-3", commandRecord{StartMethod: &StartMethodResult{ProtocolRunID: "run-3"}})

	_, ok := c.get("cmd-1")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get("cmd-2")
	assert.True(t, ok)
	_, ok = c.get("cmd-3")
	assert.True(t, ok)
}

func TestCommandCache_SnapshotReseedsIdenticalCache(t *testing.T) {
	c := newCommandCache(4, nil)
	c.set("cmd-1", commandRecord{Revoke: &RevokeResult{NewLevel: "minimal"}})
	c.set("cmd-2", commandRecord{CodeEntered: &CodeEnteredResult{Accepted: true}})

	reseeded := newCommandCache(4, c.snapshot())

	rec1, ok := reseeded.get("cmd-1")
	require.True(t, ok)
	assert.EqualValues(t, "minimal", rec1.Revoke.NewLevel)

	rec2, ok := reseeded.get("cmd-2")
	require.True(t, ok)
	assert.True(t, rec2.CodeEntered.Accepted)
}

func TestCommandCache_ReseedPreservesFIFOOrderForFurtherEviction(t *testing.T) {
	c := newCommandCache(2, nil)
	c.set("cmd-1", commandRecord{})
	c.set("cmd-2", commandRecord{})

	reseeded := newCommandCache(2, c.snapshot())
	reseeded.set("cmd-3", commandRecord{})

	_, ok := reseeded.get("cmd-1")
	assert.False(t, ok, "cmd-1 was oldest before reseed and should evict first")
	_, ok = reseeded.get("cmd-2")
	assert.True(t, ok)
	_, ok = reseeded.get("cmd-3")
	assert.True(t, ok)
}
