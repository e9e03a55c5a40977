package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyOp applies a single DOCUMENT_INSERT/DOCUMENT_DELETE operation to a
// plain string, for asserting end-to-end convergence in tests.
func applyOp(s string, op *Operation) string {
	runes := []rune(s)
	switch op.Type {
	case DocumentInsert:
		ins := []rune(op.InsertText())
		out := make([]rune, 0, len(runes)+len(ins))
		out = append(out, runes[:op.Index]...)
		out = append(out, ins...)
		out = append(out, runes[op.Index:]...)
		return string(out)
	case DocumentDelete:
		n := op.DeleteLength()
		out := make([]rune, 0, len(runes)-n)
		out = append(out, runes[:op.Index]...)
		out = append(out, runes[op.Index+n:]...)
		return string(out)
	}
	return s
}

// TestTransformS1InsertInsertTie covers the reference's tie-breaking rule:
// an incoming insert at the same index as an already-resident one is placed
// first, and the resident operation shifts right to make room.
func TestTransformS1InsertInsertTie(t *testing.T) {
	a := NewOperation(DocumentInsert, "w", "wl", "root", 0, "X")
	b := NewOperation(DocumentInsert, "w", "wl", "root", 0, "Y")

	mgr := NewOpManager("w", "wl")
	mgr.Put([]*Operation{a.Clone()})

	result := mgr.Transform(b.Clone())
	require.Len(t, result, 1)
	assert.Equal(t, 0, result[0].Index)
	assert.Equal(t, "Y", result[0].InsertText())

	resident := mgr.Operations()
	require.Len(t, resident, 1)
	assert.Equal(t, 1, resident[0].Index, "resident insert must shift right past the incoming one")

	s := applyOp("", a)
	s = applyOp(s, result[0])
	assert.Equal(t, "YX", s)
}

// TestTransformS2DeleteInsertOverlap exercises the split case where an
// incoming delete straddles a resident insert (and its mirror, an incoming
// insert straddling a resident delete). Asserts the mechanical output of
// the ported algebra rather than re-deriving document-level convergence,
// since a split's continuation fragment is addressed through further
// transforms against subsequent manager state, not a single splice.
func TestTransformS2DeleteInsertOverlap(t *testing.T) {
	t.Run("delete against resident insert", func(t *testing.T) {
		insert := NewOperation(DocumentInsert, "w", "wl", "root", 2, "z")
		del := NewOperation(DocumentDelete, "w", "wl", "root", 1, 3)

		mgr := NewOpManager("w", "wl")
		mgr.Put([]*Operation{insert.Clone()})

		result := mgr.Transform(del.Clone())
		require.Len(t, result, 2)
		assert.Equal(t, 1, result[0].Index)
		assert.Equal(t, 1, result[0].DeleteLength())
		assert.Equal(t, 2, result[1].Index)
		assert.Equal(t, 2, result[1].DeleteLength())

		resident := mgr.Operations()
		require.Len(t, resident, 1)
		assert.Equal(t, 1, resident[0].Index, "resident insert shifts left past the first delete fragment")
	})

	t.Run("insert against resident delete", func(t *testing.T) {
		del := NewOperation(DocumentDelete, "w", "wl", "root", 1, 4)
		insert := NewOperation(DocumentInsert, "w", "wl", "root", 2, "z")

		mgr := NewOpManager("w", "wl")
		mgr.Put([]*Operation{del.Clone()})

		result := mgr.Transform(insert.Clone())
		require.Len(t, result, 1)
		assert.Equal(t, 1, result[0].Index)
		assert.Equal(t, "z", result[0].InsertText())

		resident := mgr.Operations()
		require.Len(t, resident, 2)
		assert.Equal(t, 1, resident[0].Index)
		assert.Equal(t, 1, resident[0].DeleteLength())
		assert.Equal(t, 2, resident[1].Index)
		assert.Equal(t, 3, resident[1].DeleteLength())
	})
}

// TestTransformS3DeleteCoversDelete: a resident delete entirely contained
// within an incoming delete is dropped from the manager, and the incoming
// delete shrinks to cover only what the resident delete had not already
// removed.
func TestTransformS3DeleteCoversDelete(t *testing.T) {
	resident := NewOperation(DocumentDelete, "w", "wl", "root", 2, 2) // removes "CD"
	incoming := NewOperation(DocumentDelete, "w", "wl", "root", 1, 4) // removes "BCDE"

	mgr := NewOpManager("w", "wl")
	mgr.Put([]*Operation{resident.Clone()})

	result := mgr.Transform(incoming.Clone())
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].Index)
	assert.Equal(t, 2, result[0].DeleteLength())
	assert.True(t, mgr.IsEmpty(), "fully covered resident delete is removed")

	s := applyOp("ABCDEF", resident)
	s = applyOp(s, result[0])
	assert.Equal(t, "AF", s)
}

// TestDiamondPropertyNonOverlapping checks property 3 (convergence) for two
// concurrent, non-overlapping inserts transformed in both directions.
func TestDiamondPropertyNonOverlapping(t *testing.T) {
	base := "0123456789"
	a := NewOperation(DocumentInsert, "w", "wl", "root", 0, "X")
	b := NewOperation(DocumentInsert, "w", "wl", "root", 10, "Y")

	mgrA := NewOpManager("w", "wl")
	mgrA.Put([]*Operation{a.Clone()})
	bPrime := mgrA.Transform(b.Clone())
	require.Len(t, bPrime, 1)
	left := applyOp(base, a)
	left = applyOp(left, bPrime[0])

	mgrB := NewOpManager("w", "wl")
	mgrB.Put([]*Operation{b.Clone()})
	aPrime := mgrB.Transform(a.Clone())
	require.Len(t, aPrime, 1)
	right := applyOp(base, b)
	right = applyOp(right, aPrime[0])

	assert.Equal(t, left, right)
	assert.Equal(t, "X0123456789Y", left)
}

// TestNullFreeInvariant covers property 1: no-op insert/delete calls never
// add an operation to the manager.
func TestNullFreeInvariant(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentInsert("root", 0, "")
	mgr.DocumentDelete("root", 3, 3)
	assert.True(t, mgr.IsEmpty())
}

// TestPutFetchFireEvents covers the lifecycle/event contract: Put fires
// afterOperationsInserted and Fetch fires afterOperationsRemoved exactly
// once per batch, and Fetch empties the manager.
func TestPutFetchFireEvents(t *testing.T) {
	mgr := NewOpManager("w", "wl")

	var inserted, removed int
	mgr.Subscribe("afterOperationsInserted", func(any) { inserted++ })
	mgr.Subscribe("afterOperationsRemoved", func(any) { removed++ })

	mgr.Put([]*Operation{
		NewOperation(DocumentInsert, "w", "wl", "root", 0, "a"),
		NewOperation(DocumentInsert, "w", "wl", "root", 1, "b"),
	})
	assert.Equal(t, 1, inserted)

	ops := mgr.Fetch()
	assert.Len(t, ops, 2)
	assert.Equal(t, 1, removed)
	assert.True(t, mgr.IsEmpty())

	// Fetching an already-empty manager must not re-fire the event.
	mgr.Fetch()
	assert.Equal(t, 1, removed)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	calls := 0
	token := mgr.Subscribe("afterOperationsInserted", func(any) { calls++ })
	mgr.Put([]*Operation{NewOperation(DocumentInsert, "w", "wl", "root", 0, "a")})
	assert.Equal(t, 1, calls)

	mgr.Unsubscribe(token)
	mgr.Put([]*Operation{NewOperation(DocumentInsert, "w", "wl", "root", 0, "b")})
	assert.Equal(t, 1, calls, "listener must not be invoked after Unsubscribe")
}
