package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAckCycleS6 covers property 6 and scenario S6: a local edit flushes
// Cache into Pending and notifies the transport exactly once; acknowledging
// it drains Pending, and if another edit accumulated in Cache meanwhile, it
// is immediately promoted and sent too.
func TestAckCycleS6(t *testing.T) {
	var sent []struct {
		version int
		ops     []map[string]any
	}
	r := NewReconciler("w", "wl", func(version int, ops []map[string]any) {
		sent = append(sent, struct {
			version int
			ops     []map[string]any
		}{version, ops})
	})

	r.Cache.DocumentInsert("root", 0, "a")
	require.Len(t, sent, 1)
	assert.Equal(t, 0, sent[0].version)
	require.Len(t, sent[0].ops, 1)
	assert.False(t, r.Pending.IsEmpty())
	assert.True(t, r.Cache.IsEmpty())

	// A second local edit while the first batch is still in flight must
	// not flush immediately - it accumulates in Cache.
	r.Cache.DocumentInsert("root", 1, "b")
	assert.Len(t, sent, 1, "no second flush while Pending is non-empty")
	assert.False(t, r.Cache.IsEmpty())

	r.Acknowledge(1)
	assert.False(t, r.Pending.IsEmpty(), "the promoted second batch is now the new Pending")
	require.Len(t, sent, 2)
	assert.Equal(t, 1, sent[1].version)
	require.Len(t, sent[1].ops, 1)
	assert.Equal(t, "b", sent[1].ops[0]["property"])
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	r := NewReconciler("w", "wl", nil)
	r.Cache.DocumentInsert("root", 0, "a")
	r.Acknowledge(1)
	assert.Equal(t, 1, r.Version)

	r.Acknowledge(1) // duplicate ack, must not panic or regress version
	assert.Equal(t, 1, r.Version)
	r.Acknowledge(0) // stale ack
	assert.Equal(t, 1, r.Version)
}

func TestApplyOperationsTransformsPending(t *testing.T) {
	r := NewReconciler("w", "wl", nil)

	// A local edit sits in Pending, in flight.
	r.Cache.DocumentInsert("root", 5, "local")
	require.True(t, r.Cache.IsEmpty())
	require.False(t, r.Pending.IsEmpty())

	var applied []*Operation
	remote := []*Operation{NewOperation(DocumentInsert, "w", "wl", "root", 0, "remote-")}
	r.ApplyOperations(1, remote, func(op *Operation) {
		applied = append(applied, op)
	})

	require.Len(t, applied, 1)
	assert.Equal(t, 0, applied[0].Index)
	assert.Equal(t, 1, r.Version)

	pendingOps := r.Pending.Operations()
	require.Len(t, pendingOps, 1)
	assert.Equal(t, 5+len("remote-"), pendingOps[0].Index, "pending local edit shifts past the applied remote insert")
}
