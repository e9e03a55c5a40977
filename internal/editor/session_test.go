package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pygowave/pkg/ot"
)

func TestSessionApplyLocalEditCommitsCleanlyAtCurrentVersion(t *testing.T) {
	w := NewWavelet("w", "wl")
	b := w.Blip("root")
	sess := NewSession(&Participant{ID: "p1"}, w, b, nil)

	ops := []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "ab")}
	newVersion := sess.ApplyLocalEdit(0, ops)

	assert.Equal(t, 1, newVersion)
	content, version := b.Snapshot()
	assert.Equal(t, "ab", content)
	assert.Equal(t, 1, version)
}

func TestSessionApplyLocalEditRebasesAgainstMissedHistory(t *testing.T) {
	w := NewWavelet("w", "wl")
	b := w.Blip("root")
	sess := NewSession(&Participant{ID: "p1"}, w, b, nil)

	// Another participant's edit lands on the blip first, advancing it to
	// version 1 while this participant is still looking at version 0.
	b.Apply([]*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "ab")})

	// This participant's batch was generated against version 0 (an empty
	// blip) and must be rebased before it can be committed.
	lateOps := []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "Z")}
	newVersion := sess.ApplyLocalEdit(0, lateOps)

	assert.Equal(t, 2, newVersion)
	content, version := b.Snapshot()
	assert.Equal(t, "Zab", content)
	assert.Equal(t, 2, version)
}

func TestSessionDeliverFlushesThroughSinkAndAcknowledgeDrainsCache(t *testing.T) {
	w := NewWavelet("w", "wl")
	b := w.Blip("root")

	type delivery struct {
		version int
		ops     []map[string]any
	}
	var deliveries []delivery
	sink := func(version int, ops []map[string]any) {
		deliveries = append(deliveries, delivery{version: version, ops: ops})
	}

	sess := NewSession(&Participant{ID: "p1"}, w, b, sink)

	first := []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 0, "A")}
	sess.Deliver(first)
	require.Len(t, deliveries, 1, "Deliver's Cache.Put triggers an immediate flush to the sink")
	assert.Len(t, deliveries[0].ops, 1)

	// A second batch arrives while the first is still in flight (Pending is
	// not yet acknowledged): it must accumulate in Cache without flushing.
	second := []*ot.Operation{ot.NewOperation(ot.DocumentInsert, "w", "wl", "root", 1, "B")}
	sess.Deliver(second)
	assert.Len(t, deliveries, 1, "a batch in flight suppresses further flushes until acknowledged")

	sess.Acknowledge(1)
	require.Len(t, deliveries, 2, "acknowledging the in-flight batch promotes the queued one")
	assert.Len(t, deliveries[1].ops, 1)
}
