package ot

import "unicode/utf8"

// ElementPayload is the property shape for DOCUMENT_ELEMENT_INSERT.
type ElementPayload struct {
	ElementType string         `json:"type"`
	Properties  map[string]any `json:"properties"`
}

// DeltaPayload is the property shape for DOCUMENT_ELEMENT_DELTA.
type DeltaPayload struct {
	ID    string         `json:"id"`
	Delta map[string]any `json:"delta"`
}

// SetprefPayload is the property shape for DOCUMENT_ELEMENT_SETPREF.
type SetprefPayload struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Operation is a single edit targeting a wave/wavelet/blip. Treat it as
// immutable-by-convention outside of OpManager's own mutation during
// Transform and merge - callers should Clone before holding onto a reference
// they intend to keep independent of a manager's bookkeeping.
type Operation struct {
	Type       OpType
	WaveID     string
	WaveletID  string
	BlipID     string
	Index      int
	Property   any
}

// NewOperation constructs a raw operation. Most callers should instead go
// through OpManager's Document* constructors, which route through the
// merge-on-insert path.
func NewOperation(opType OpType, waveID, waveletID, blipID string, index int, property any) *Operation {
	return &Operation{
		Type:      opType,
		WaveID:    waveID,
		WaveletID: waveletID,
		BlipID:    blipID,
		Index:     index,
		Property:  property,
	}
}

// Clone returns a deep copy safe to mutate independently of op.
func (op *Operation) Clone() *Operation {
	clone := *op
	switch p := op.Property.(type) {
	case ElementPayload:
		props := make(map[string]any, len(p.Properties))
		for k, v := range p.Properties {
			props[k] = v
		}
		clone.Property = ElementPayload{ElementType: p.ElementType, Properties: props}
	case DeltaPayload:
		delta := make(map[string]any, len(p.Delta))
		for k, v := range p.Delta {
			delta[k] = v
		}
		clone.Property = DeltaPayload{ID: p.ID, Delta: delta}
	case SetprefPayload:
		clone.Property = SetprefPayload{Key: p.Key, Value: p.Value}
	}
	return &clone
}

// IsInsert reports whether op is a content or element insertion.
func (op *Operation) IsInsert() bool {
	return op.Type == DocumentInsert || op.Type == DocumentElementInsert
}

// IsDelete reports whether op is a content or element deletion.
func (op *Operation) IsDelete() bool {
	return op.Type == DocumentDelete || op.Type == DocumentElementDelete
}

// IsChange reports whether op changes an element's state in place without
// shifting positional indices.
func (op *Operation) IsChange() bool {
	return op.Type == DocumentElementDelta || op.Type == DocumentElementSetpref
}

// IsNull reports whether op has no effect: an empty-string insert or a
// zero-length delete. Null operations must never be retained or emitted.
func (op *Operation) IsNull() bool {
	switch op.Type {
	case DocumentInsert:
		s, _ := op.Property.(string)
		return s == ""
	case DocumentDelete:
		n, _ := op.Property.(int)
		return n == 0
	}
	return false
}

// IsCompatibleTo reports whether op and other target the same wave,
// wavelet, and blip and can therefore influence each other under Transform.
func (op *Operation) IsCompatibleTo(other *Operation) bool {
	return op.WaveID == other.WaveID &&
		op.WaveletID == other.WaveletID &&
		op.BlipID == other.BlipID
}

// Length returns the distance a concurrent operation's index must shift to
// account for this operation's effect: the rune count for an insert, the
// deleted count for a delete, 1 for an element insert/delete, 0 for a change.
func (op *Operation) Length() int {
	switch op.Type {
	case DocumentInsert:
		s, _ := op.Property.(string)
		return utf8.RuneCountInString(s)
	case DocumentDelete:
		n, _ := op.Property.(int)
		return n
	case DocumentElementInsert, DocumentElementDelete:
		return 1
	}
	return 0
}

// End returns Index + Length, the exclusive end of op's affected span.
func (op *Operation) End() int {
	return op.Index + op.Length()
}

// Resize changes a DELETE operation's deleted-character count to n. It has
// no effect on any other operation kind.
func (op *Operation) Resize(n int) {
	if op.Type == DocumentDelete {
		op.Property = n
	}
}

// InsertText returns the text payload of a DOCUMENT_INSERT operation.
func (op *Operation) InsertText() string {
	s, _ := op.Property.(string)
	return s
}

// DeleteLength returns the character count payload of a DOCUMENT_DELETE
// operation.
func (op *Operation) DeleteLength() int {
	n, _ := op.Property.(int)
	return n
}

// Serialize converts op into its wire-format map, with exactly the keys
// type, waveId, waveletId, blipId, index, property.
func (op *Operation) Serialize() map[string]any {
	return map[string]any{
		"type":      string(op.Type),
		"waveId":    op.WaveID,
		"waveletId": op.WaveletID,
		"blipId":    op.BlipID,
		"index":     op.Index,
		"property":  serializeProperty(op.Type, op.Property),
	}
}

func serializeProperty(t OpType, property any) any {
	switch t {
	case DocumentElementInsert:
		if p, ok := property.(ElementPayload); ok {
			return map[string]any{"type": p.ElementType, "properties": p.Properties}
		}
	case DocumentElementDelta:
		if p, ok := property.(DeltaPayload); ok {
			return map[string]any{"id": p.ID, "delta": p.Delta}
		}
	case DocumentElementSetpref:
		if p, ok := property.(SetprefPayload); ok {
			return map[string]any{"key": p.Key, "value": p.Value}
		}
	}
	return property
}

// Unserialize parses a wire-format map into an Operation, validating the
// type discriminant and the property shape before accepting it. Returns
// ErrMalformedOperation on any mismatch.
func Unserialize(obj map[string]any) (*Operation, error) {
	typeStr, ok := obj["type"].(string)
	if !ok {
		return nil, ErrMalformedOperation
	}
	opType := OpType(typeStr)

	waveID, ok := obj["waveId"].(string)
	if !ok {
		return nil, ErrMalformedOperation
	}
	waveletID, ok := obj["waveletId"].(string)
	if !ok {
		return nil, ErrMalformedOperation
	}
	blipID, ok := obj["blipId"].(string)
	if !ok {
		return nil, ErrMalformedOperation
	}

	index, err := asInt(obj["index"])
	if err != nil {
		return nil, ErrMalformedOperation
	}
	if index < NoIndex {
		return nil, ErrMalformedOperation
	}

	property, err := unserializeProperty(opType, obj["property"])
	if err != nil {
		return nil, err
	}

	return &Operation{
		Type:      opType,
		WaveID:    waveID,
		WaveletID: waveletID,
		BlipID:    blipID,
		Index:     index,
		Property:  property,
	}, nil
}

func unserializeProperty(t OpType, raw any) (any, error) {
	switch t {
	case DocumentInsert:
		s, ok := raw.(string)
		if !ok {
			return nil, ErrMalformedOperation
		}
		return s, nil
	case DocumentDelete:
		n, err := asInt(raw)
		if err != nil {
			return nil, ErrMalformedOperation
		}
		return n, nil
	case DocumentElementInsert:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, ErrMalformedOperation
		}
		elementType, _ := m["type"].(string)
		props, _ := m["properties"].(map[string]any)
		return ElementPayload{ElementType: elementType, Properties: props}, nil
	case DocumentElementDelete:
		return nil, nil
	case DocumentElementDelta:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, ErrMalformedOperation
		}
		id, _ := m["id"].(string)
		delta, _ := m["delta"].(map[string]any)
		return DeltaPayload{ID: id, Delta: delta}, nil
	case DocumentElementSetpref:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, ErrMalformedOperation
		}
		key, _ := m["key"].(string)
		return SetprefPayload{Key: key, Value: m["value"]}, nil
	default:
		return nil, ErrMalformedOperation
	}
}

// asInt accepts the numeric shapes that commonly arrive from JSON decoding
// (float64 from encoding/json, or a plain int from in-process construction).
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, ErrMalformedOperation
	}
}
