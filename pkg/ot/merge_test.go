package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMergeOnInsertS5 covers property 4 (merge idempotence): two
// consecutive, adjacent single-character inserts collapse into one.
func TestMergeOnInsertS5(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentInsert("b", 0, "H")
	mgr.DocumentInsert("b", 1, "i")

	ops := mgr.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, 0, ops[0].Index)
	assert.Equal(t, "Hi", ops[0].InsertText())
}

func TestMergeInsertPrependAndMiddle(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentInsert("b", 0, "bc")
	mgr.DocumentInsert("b", 0, "a") // prepend
	ops := mgr.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "abc", ops[0].InsertText())

	mgr2 := NewOpManager("w", "wl")
	mgr2.DocumentInsert("b", 0, "ac")
	mgr2.DocumentInsert("b", 1, "b") // middle
	ops2 := mgr2.Operations()
	require.Len(t, ops2, 1)
	assert.Equal(t, "abc", ops2[0].InsertText())
}

func TestMergeDeleteAdjacentDelete(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentDelete("b", 2, 4) // delete 2 chars at index2
	mgr.DocumentDelete("b", 2, 3) // another delete right after, same spot
	ops := mgr.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].Index)
	assert.Equal(t, 3, ops[0].DeleteLength())
}

func TestMergeDeleteConsumesWholeInsert(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentInsert("b", 0, "Hi")
	mgr.DocumentDelete("b", 0, 2) // deletes exactly what was just inserted
	assert.True(t, mgr.IsEmpty(), "deleting a just-inserted run removes it entirely")
}

func TestMergeElementDeltaByID(t *testing.T) {
	mgr := NewOpManager("w", "wl")
	mgr.DocumentElementDelta("b", 0, "elt1", map[string]any{"x": 1})
	mgr.DocumentElementDelta("b", 0, "elt1", map[string]any{"y": 2})

	ops := mgr.Operations()
	require.Len(t, ops, 1)
	dp, ok := ops[0].Property.(DeltaPayload)
	require.True(t, ok)
	assert.Equal(t, 1, dp.Delta["x"])
	assert.Equal(t, 2, dp.Delta["y"])
}
