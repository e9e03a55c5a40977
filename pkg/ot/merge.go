package ot

// This file implements the merge-on-insert path: the public Document*
// constructors build a candidate Operation, then attempt to fold it into an
// existing operation already held by the manager before falling back to a
// plain append. Folding keeps locally generated traffic minimal - a burst of
// single-character keystrokes collapses into one INSERT/DELETE pair.

// DocumentInsert requests inserting content into blipID's document at index.
// A no-op if content is empty.
func (m *OpManager) DocumentInsert(blipID string, index int, content string) {
	op := NewOperation(DocumentInsert, m.WaveID, m.WaveletID, blipID, index, content)
	if op.IsNull() {
		return
	}
	m.insertMerging(op)
}

// DocumentDelete requests deleting the range [start, end) in blipID's
// document. A no-op if start == end.
func (m *OpManager) DocumentDelete(blipID string, start, end int) {
	op := NewOperation(DocumentDelete, m.WaveID, m.WaveletID, blipID, start, end-start)
	if op.IsNull() {
		return
	}
	m.insertMerging(op)
}

// DocumentElementInsert requests inserting an element of the given type and
// properties at index.
func (m *OpManager) DocumentElementInsert(blipID string, index int, elementType string, properties map[string]any) {
	op := NewOperation(DocumentElementInsert, m.WaveID, m.WaveletID, blipID, index,
		ElementPayload{ElementType: elementType, Properties: properties})
	m.insertMerging(op)
}

// DocumentElementDelete requests deleting the element at index.
func (m *OpManager) DocumentElementDelete(blipID string, index int) {
	op := NewOperation(DocumentElementDelete, m.WaveID, m.WaveletID, blipID, index, nil)
	m.insertMerging(op)
}

// DocumentElementDelta requests applying delta to the element identified by
// elementID, located at index.
func (m *OpManager) DocumentElementDelta(blipID string, index int, elementID string, delta map[string]any) {
	op := NewOperation(DocumentElementDelta, m.WaveID, m.WaveletID, blipID, index,
		DeltaPayload{ID: elementID, Delta: delta})
	m.insertMerging(op)
}

// DocumentElementSetpref requests setting a user preference key/value on the
// element at index.
func (m *OpManager) DocumentElementSetpref(blipID string, index int, key string, value any) {
	op := NewOperation(DocumentElementSetpref, m.WaveID, m.WaveletID, blipID, index,
		SetprefPayload{Key: key, Value: value})
	m.insertMerging(op)
}

// insertMerging is the private __insert equivalent: it tries to fold newop
// into an existing operation before appending it.
func (m *OpManager) insertMerging(newop *Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newop.Type == DocumentElementDelta {
		if dp, ok := newop.Property.(DeltaPayload); ok {
			for i, op := range m.operations {
				if op.Type != DocumentElementDelta {
					continue
				}
				existing, ok := op.Property.(DeltaPayload)
				if !ok || existing.ID != dp.ID {
					continue
				}
				for k, v := range dp.Delta {
					existing.Delta[k] = v
				}
				op.Property = existing
				m.Fire("operationChanged", i)
				return
			}
		}
	}

	n := len(m.operations)
	if n > 0 {
		i := n - 1
		op := m.operations[i]

		if newop.Type == DocumentInsert && op.Type == DocumentInsert {
			switch {
			case newop.Index == op.Index:
				op.Property = newop.InsertText() + op.InsertText()
				m.Fire("operationChanged", i)
				return
			case newop.Index == op.End():
				op.Property = op.InsertText() + newop.InsertText()
				m.Fire("operationChanged", i)
				return
			case op.Index < newop.Index && newop.Index < op.End():
				offset := newop.Index - op.Index
				old := op.InsertText()
				op.Property = old[:offset] + newop.InsertText() + old[offset:]
				m.Fire("operationChanged", i)
				return
			}
		}

		if newop.Type == DocumentDelete && op.Type == DocumentInsert {
			// Mirrors operations.py exactly: these are two independent
			// ifs, not an if/elif. The first only fires when the delete
			// starts exactly where the insert starts, which makes the
			// second's op.Index < newop.Index guard false afterwards, so
			// in practice at most one of them ever mutates op.
			if newop.Index == op.Index {
				runes := []rune(op.InsertText())
				l := len(runes)
				consume := newop.DeleteLength()
				if consume > l {
					consume = l
				}
				op.Property = string(runes[consume:])
				if op.Property == "" {
					m.removeAt(i)
				} else {
					m.Fire("operationChanged", i)
				}
				newop.Property = newop.DeleteLength() - l
				if newop.DeleteLength() <= 0 {
					return
				}
			}
			if op.Index < newop.Index && newop.Index < op.End() {
				offset := newop.Index - op.Index
				delLen := newop.DeleteLength()
				runes := []rune(op.InsertText())
				l := len(runes) - (offset + delLen)
				end := offset + delLen
				if end > len(runes) {
					end = len(runes)
				}
				op.Property = string(runes[:offset]) + string(runes[end:])
				m.Fire("operationChanged", i)
				newop.Property = -l
				if newop.DeleteLength() <= 0 {
					return
				}
			}
		}

		if newop.Type == DocumentDelete && op.Type == DocumentDelete {
			switch {
			case newop.Index == op.Index:
				op.Property = op.DeleteLength() + newop.DeleteLength()
				m.Fire("operationChanged", i)
				return
			case newop.Index == op.Index-newop.DeleteLength():
				op.Index -= newop.DeleteLength()
				op.Property = op.DeleteLength() + newop.DeleteLength()
				m.Fire("operationChanged", i)
				return
			}
		}
	}

	m.insertAt(len(m.operations), newop)
}
