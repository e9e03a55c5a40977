package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pygowave/pkg/ot"
)

func TestBlipApplyInsertAndDelete(t *testing.T) {
	b := NewBlip("root")

	v1 := b.Apply([]*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "hello")})
	assert.Equal(t, 1, v1)
	content, version := b.Snapshot()
	assert.Equal(t, "hello", content)
	assert.Equal(t, 1, version)

	v2 := b.Apply([]*ot.Operation{ot.NewOperation(ot.DocumentDelete, "w", "wl", "root", 1, 3)})
	assert.Equal(t, 2, v2)
	content, _ = b.Snapshot()
	assert.Equal(t, "ho", content)
}

func TestBlipOperationsSinceReturnsClonesInOrder(t *testing.T) {
	b := NewBlip("root")
	b.Apply([]*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "a")})
	b.Apply([]*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 1, "b")})

	since0 := b.OperationsSince(0)
	require.Len(t, since0, 2)
	assert.Equal(t, "a", since0[0].InsertText())
	assert.Equal(t, "b", since0[1].InsertText())

	since1 := b.OperationsSince(1)
	require.Len(t, since1, 1)
	assert.Equal(t, "b", since1[0].InsertText())

	// Mutating a returned clone must not affect the blip's own history.
	since0[0].Index = 99
	since0Again := b.OperationsSince(0)
	assert.Equal(t, 0, since0Again[0].Index)
}

func TestBlipApplyBroadcastBuffersOutOfOrderDeltas(t *testing.T) {
	b := NewBlip("root")

	insertAt := func(i int, s string) []*ot.Operation {
		return []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", i, s)}
	}

	// Version 2 arrives before version 1: it must be buffered, not applied.
	applied := b.ApplyBroadcast(2, insertAt(0, "B"))
	assert.Empty(t, applied)
	_, version := b.Snapshot()
	assert.Equal(t, 0, version)

	// Version 1 arrives: both 1 and the buffered 2 drain in order.
	applied = b.ApplyBroadcast(1, insertAt(0, "A"))
	require.Len(t, applied, 2)
	content, version := b.Snapshot()
	assert.Equal(t, "AB", content)
	assert.Equal(t, 2, version)
}

func TestBlipApplyBroadcastIgnoresStaleVersion(t *testing.T) {
	b := NewBlip("root")
	b.ApplyBroadcast(1, []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "a")})

	applied := b.ApplyBroadcast(1, []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "stale")})
	assert.Empty(t, applied)
	content, version := b.Snapshot()
	assert.Equal(t, "a", content)
	assert.Equal(t, 1, version)
}

func TestWaveletJoinLeaveAndLazyBlip(t *testing.T) {
	w := NewWavelet("w", "wl")

	assert.True(t, w.Join(&Participant{ID: "p1"}))
	assert.False(t, w.Join(&Participant{ID: "p1"}), "joining twice reports already-present")
	assert.Len(t, w.Participants(), 1)

	b1 := w.Blip("root")
	b2 := w.Blip("root")
	assert.Same(t, b1, b2, "Blip is lazily created once and then reused")

	assert.True(t, w.Leave("p1"))
	assert.False(t, w.Leave("p1"), "leaving twice reports not-present")
	assert.Empty(t, w.Participants())
}
