package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationIsNull(t *testing.T) {
	assert.True(t, NewOperation(DocumentInsert, "w", "wl", "b", 0, "").IsNull())
	assert.False(t, NewOperation(DocumentInsert, "w", "wl", "b", 0, "x").IsNull())
	assert.True(t, NewOperation(DocumentDelete, "w", "wl", "b", 0, 0).IsNull())
	assert.False(t, NewOperation(DocumentDelete, "w", "wl", "b", 0, 1).IsNull())
}

func TestOperationIsCompatibleTo(t *testing.T) {
	a := NewOperation(DocumentInsert, "w", "wl", "b1", 0, "x")
	b := NewOperation(DocumentInsert, "w", "wl", "b1", 0, "y")
	c := NewOperation(DocumentInsert, "w", "wl", "b2", 0, "y")
	assert.True(t, a.IsCompatibleTo(b))
	assert.False(t, a.IsCompatibleTo(c))
}

func TestOperationLength(t *testing.T) {
	assert.Equal(t, 3, NewOperation(DocumentInsert, "w", "wl", "b", 0, "abc").Length())
	assert.Equal(t, 4, NewOperation(DocumentDelete, "w", "wl", "b", 0, 4).Length())
	assert.Equal(t, 1, NewOperation(DocumentElementInsert, "w", "wl", "b", 0, ElementPayload{}).Length())
	assert.Equal(t, 0, NewOperation(DocumentElementDelta, "w", "wl", "b", 0, DeltaPayload{}).Length())
}

func TestOperationClone(t *testing.T) {
	op := NewOperation(DocumentElementInsert, "w", "wl", "b", 0,
		ElementPayload{ElementType: "image", Properties: map[string]any{"src": "a.png"}})
	clone := op.Clone()
	clonedPayload := clone.Property.(ElementPayload)
	clonedPayload.Properties["src"] = "b.png"
	clone.Property = clonedPayload

	original := op.Property.(ElementPayload)
	assert.Equal(t, "a.png", original.Properties["src"], "cloning must not alias the original's map")
}

func TestOperationSerializeRoundTrip(t *testing.T) {
	cases := []*Operation{
		NewOperation(DocumentInsert, "w", "wl", "b", 3, "hello"),
		NewOperation(DocumentDelete, "w", "wl", "b", 1, 2),
		NewOperation(DocumentElementInsert, "w", "wl", "b", 0, ElementPayload{ElementType: "image", Properties: map[string]any{"src": "a.png"}}),
		NewOperation(DocumentElementDelete, "w", "wl", "b", 0, nil),
		NewOperation(DocumentElementDelta, "w", "wl", "b", 0, DeltaPayload{ID: "elt1", Delta: map[string]any{"k": "v"}}),
		NewOperation(DocumentElementSetpref, "w", "wl", "b", 0, SetprefPayload{Key: "color", Value: "red"}),
	}

	for _, op := range cases {
		out, err := Unserialize(op.Serialize())
		require.NoError(t, err)
		assert.Equal(t, op.Type, out.Type)
		assert.Equal(t, op.WaveID, out.WaveID)
		assert.Equal(t, op.WaveletID, out.WaveletID)
		assert.Equal(t, op.BlipID, out.BlipID)
		assert.Equal(t, op.Index, out.Index)
		assert.Equal(t, op.Property, out.Property)
	}
}

func TestUnserializeRejectsMalformed(t *testing.T) {
	_, err := Unserialize(map[string]any{"type": "bogus", "waveId": "w", "waveletId": "wl", "blipId": "b", "index": 0.0, "property": ""})
	assert.ErrorIs(t, err, ErrMalformedOperation)

	_, err = Unserialize(map[string]any{"type": string(DocumentInsert), "waveId": "w", "waveletId": "wl", "blipId": "b", "index": 0.0, "property": 42})
	assert.ErrorIs(t, err, ErrMalformedOperation)

	_, err = Unserialize(map[string]any{"waveId": "w", "waveletId": "wl", "blipId": "b", "index": 0.0, "property": "x"})
	assert.ErrorIs(t, err, ErrMalformedOperation)
}
