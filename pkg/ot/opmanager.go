package ot

import "sync"

// OpManager holds an ordered list of mutually compatible operations for one
// wave/wavelet and implements the OT algebra: transform, merge-on-insert,
// fetch/put, and serialize/unserialize. It embeds EventBus so observers can
// track structural changes synchronously.
type OpManager struct {
	EventBus

	WaveID    string
	WaveletID string

	mu         sync.Mutex
	operations []*Operation
}

// NewOpManager creates an empty manager scoped to the given wave and
// wavelet.
func NewOpManager(waveID, waveletID string) *OpManager {
	return &OpManager{WaveID: waveID, WaveletID: waveletID}
}

// IsEmpty reports whether the manager currently holds no operations.
func (m *OpManager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isEmptyLocked()
}

func (m *OpManager) isEmptyLocked() bool {
	return len(m.operations) == 0
}

// Operations returns a snapshot slice of the manager's current operations.
// The returned slice shares no backing array with the manager's internal
// state.
func (m *OpManager) Operations() []*Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Operation, len(m.operations))
	copy(out, m.operations)
	return out
}

// removeAt removes the manager operation at index i, firing the remove
// events. Caller must hold m.mu.
func (m *OpManager) removeAt(i int) {
	m.Fire("beforeOperationsRemoved", Range{Start: i, End: i})
	m.operations = append(m.operations[:i], m.operations[i+1:]...)
	m.Fire("afterOperationsRemoved", Range{Start: i, End: i})
}

// insertAt inserts op into the manager operations at index i, firing the
// insert events. Caller must hold m.mu.
func (m *OpManager) insertAt(i int, op *Operation) {
	m.Fire("beforeOperationsInserted", Range{Start: i, End: i})
	m.operations = append(m.operations, nil)
	copy(m.operations[i+1:], m.operations[i:])
	m.operations[i] = op
	m.Fire("afterOperationsInserted", Range{Start: i, End: i})
}

// Transform transforms inputOp against the manager's operations list,
// simultaneously mutating that list to account for inputOp applying first.
// It returns the list of operations equivalent to inputOp after every
// manager operation has been applied; the list may be empty (inputOp was
// fully cancelled), a singleton, or - when a concurrent insertion splits a
// concurrent deletion - longer than one element.
func (m *OpManager) Transform(inputOp *Operation) []*Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	opLst := []*Operation{inputOp.Clone()}

	i := 0
	for i < len(m.operations) {
		myop := m.operations[i]
		removed := false

		j := 0
		for j < len(opLst) {
			op := opLst[j]

			if !op.IsCompatibleTo(myop) {
				j++
				continue
			}

			switch {
			case op.IsDelete() && myop.IsDelete():
				if op.Index < myop.Index {
					end := op.Index + op.Length()
					switch {
					case end <= myop.Index:
						myop.Index -= op.Length()
						m.Fire("operationChanged", i)
					case end < myop.Index+myop.Length():
						op.Resize(myop.Index - op.Index)
						myop.Resize(myop.Length() - (end - myop.Index))
						myop.Index = op.Index
						m.Fire("operationChanged", i)
					default: // end >= myop.End()
						op.Resize(op.Length() - myop.Length())
						m.removeAt(i)
						i--
						removed = true
					}
				} else { // op.Index >= myop.Index
					end := myop.Index + myop.Length()
					switch {
					case op.Index >= end:
						op.Index -= myop.Length()
					case op.Index+op.Length() <= end:
						opLst = append(opLst[:j], opLst[j+1:]...)
						j--
						myop.Resize(myop.Length() - op.Length())
						if myop.IsNull() {
							m.removeAt(i)
							i--
							removed = true
						} else {
							m.Fire("operationChanged", i)
						}
					default: // straddles the right edge of myop
						myop.Resize(myop.Length() - (end - op.Index))
						m.Fire("operationChanged", i)
						op.Resize(op.Length() - (end - op.Index))
						op.Index = myop.Index
					}
				}

			case op.IsDelete() && myop.IsInsert():
				if op.Index < myop.Index {
					if op.Index+op.Length() <= myop.Index {
						myop.Index -= op.Length()
						m.Fire("operationChanged", i)
					} else {
						newOp := op.Clone()
						op.Resize(myop.Index - op.Index)
						newOp.Resize(newOp.Length() - op.Length())
						opLst = insertOp(opLst, j+1, newOp)
						myop.Index -= op.Length()
						m.Fire("operationChanged", i)
					}
				} else {
					op.Index += myop.Length()
				}

			case op.IsInsert() && myop.IsDelete():
				switch {
				case op.Index <= myop.Index:
					myop.Index += op.Length()
					m.Fire("operationChanged", i)
				case op.Index >= myop.Index+myop.Length():
					op.Index -= myop.Length()
				default:
					newOp := myop.Clone()
					myop.Resize(op.Index - myop.Index)
					m.Fire("operationChanged", i)
					newOp.Resize(newOp.Length() - myop.Length())
					m.insertAt(i+1, newOp)
					op.Index = myop.Index
				}

			case op.IsInsert() && myop.IsInsert():
				if op.Index <= myop.Index {
					myop.Index += op.Length()
					m.Fire("operationChanged", i)
				} else {
					op.Index += myop.Length()
				}

			case op.IsChange() && myop.IsDelete():
				if op.Index > myop.Index {
					if op.Index <= myop.Index+myop.Length() {
						op.Index = myop.Index
					} else {
						op.Index -= myop.Length()
					}
				}

			case op.IsChange() && myop.IsInsert():
				if op.Index >= myop.Index {
					op.Index += myop.Length()
				}

			case op.IsDelete() && myop.IsChange():
				if op.Index < myop.Index {
					if myop.Index <= op.Index+op.Length() {
						myop.Index = op.Index
						m.Fire("operationChanged", i)
					} else {
						myop.Index -= op.Length()
						m.Fire("operationChanged", i)
					}
				}

			case op.IsInsert() && myop.IsChange():
				if op.Index <= myop.Index {
					myop.Index += op.Length()
					m.Fire("operationChanged", i)
				}

			default:
				// Change-vs-change and any other unclassified pair is
				// identity: neither side carries a positional shift.
			}

			if removed {
				break
			}
			j++
		}

		i++
	}

	return dropNull(opLst)
}

// insertOp inserts op into lst at index i, growing the slice.
func insertOp(lst []*Operation, i int, op *Operation) []*Operation {
	lst = append(lst, nil)
	copy(lst[i+1:], lst[i:])
	lst[i] = op
	return lst
}

// dropNull filters out any operation that Transform reduced to a null
// effect, preserving order.
func dropNull(lst []*Operation) []*Operation {
	out := lst[:0:0]
	for _, op := range lst {
		if !op.IsNull() {
			out = append(out, op)
		}
	}
	return out
}

// TransformByManager transforms every operation currently held by other
// against this manager, in order, replacing other's operation list with the
// transformed results. outgoing is not read: the result is the same for
// either direction.
func (m *OpManager) TransformByManager(other *OpManager, outgoing bool) {
	ops := other.Fetch()
	var transformed []*Operation
	for _, op := range ops {
		transformed = append(transformed, m.Transform(op)...)
	}
	other.Put(transformed)
}

// Fetch returns the manager's current operations and empties the manager,
// firing the remove events over the drained range.
func (m *OpManager) Fetch() []*Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchLocked()
}

// fetchLocked is Fetch for callers that already hold m.mu - in particular,
// an event listener invoked synchronously from within this same manager's
// Fire call, which runs with mu already held by the calling goroutine.
// sync.Mutex is not reentrant, so such a listener must use this instead of
// calling the public, locking Fetch/IsEmpty/Put on its own manager.
func (m *OpManager) fetchLocked() []*Operation {
	ops := m.operations
	if len(ops) > 0 {
		m.Fire("beforeOperationsRemoved", Range{Start: 0, End: len(ops) - 1})
	}
	m.operations = nil
	if len(ops) > 0 {
		m.Fire("afterOperationsRemoved", Range{Start: 0, End: len(ops) - 1})
	}
	return ops
}

// Put appends ops wholesale to the manager, firing the insert events over
// the appended range. Unlike the Document* constructors, Put never attempts
// to merge - operations arriving from the wire are trusted as minimal.
func (m *OpManager) Put(ops []*Operation) {
	if len(ops) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(ops)
}

func (m *OpManager) putLocked(ops []*Operation) {
	start := len(m.operations)
	end := start + len(ops) - 1
	m.Fire("beforeOperationsInserted", Range{Start: start, End: end})
	m.operations = append(m.operations, ops...)
	m.Fire("afterOperationsInserted", Range{Start: start, End: end})
}

// Serialize converts the manager's operations into wire-format maps. When
// fetch is true, the manager is drained as part of serializing.
func (m *OpManager) Serialize(fetch bool) []map[string]any {
	var ops []*Operation
	if fetch {
		ops = m.Fetch()
	} else {
		ops = m.Operations()
	}
	out := make([]map[string]any, len(ops))
	for i, op := range ops {
		out[i] = op.Serialize()
	}
	return out
}

// UnserializeAndPut parses a batch of wire-format maps and Puts the
// resulting operations into the manager. The entire batch is rejected - none
// of it is put - if any single entry is malformed.
func (m *OpManager) UnserializeAndPut(serialOps []map[string]any) error {
	ops := make([]*Operation, len(serialOps))
	for i, obj := range serialOps {
		op, err := Unserialize(obj)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	m.Put(ops)
	return nil
}
