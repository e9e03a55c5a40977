// internal/editor/session.go
package editor

import (
	"sync"

	"pygowave/pkg/ot"
)

// Session is the authority's side of one connected participant's view of one
// blip. It plays the role the teacher's ot_manager.go played for a single
// flat document, but against the real six-operation algebra: ApplyLocalEdit
// folds the participant's own edits into the shared Blip after rebasing them
// against anything applied since the batch's base version, and Deliver/
// Acknowledge drive an ot.Reconciler that queues and flushes outgoing deltas
// toward that participant, tracking how far behind its last acknowledgement
// leaves it.
type Session struct {
	Participant *Participant
	Wavelet     *Wavelet
	Blip        *Blip
	Reconciler  *ot.Reconciler

	mu sync.Mutex
}

// NewSession creates a session for p editing blip b of wavelet w. sink is
// invoked whenever a batch of operations is ready to be sent to this
// participant over the wire (process_operations in SPEC_FULL.md §6).
func NewSession(p *Participant, w *Wavelet, b *Blip, sink ot.TransportSink) *Session {
	r := ot.NewReconciler(w.WaveID, w.WaveletID, sink)
	_, version := b.Snapshot()
	r.Version = version
	return &Session{
		Participant: p,
		Wavelet:     w,
		Blip:        b,
		Reconciler:  r,
	}
}

// ApplyLocalEdit commits a participant-originated batch to the shared blip.
// baseVersion is the blip version the participant had last seen when it
// generated ops; if the blip has advanced since then, ops are rebased
// (TransformAgainstHistory-style) against every batch applied in between
// before being committed, mirroring pkg/ot.Reconciler's own
// TransformByManager catch-up but against recorded history instead of a
// live peer manager. Returns the version the batch was committed at.
func (s *Session) ApplyLocalEdit(baseVersion int, ops []*ot.Operation) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if catchUp := s.Blip.OperationsSince(baseVersion); len(catchUp) > 0 {
		history := ot.NewOpManager(s.Wavelet.WaveID, s.Wavelet.WaveletID)
		history.Put(catchUp)

		incoming := ot.NewOpManager(s.Wavelet.WaveID, s.Wavelet.WaveletID)
		incoming.Put(ops)
		incoming.TransformByManager(history, false)
		ops = incoming.Fetch()
	}

	newVersion := s.Blip.Apply(ops)
	s.Reconciler.Version = newVersion
	return newVersion
}

// Deliver queues an authority-applied batch (generated by another
// participant's ApplyLocalEdit, or relayed from a sibling instance via
// internal/broadcast) for delivery to this session's participant. It is
// pushed through the reconciler's Cache exactly like a locally generated
// edit would be, so the same afterOperationsInserted flush wiring that
// drives pkg/ot.Reconciler on a browser-style client also drives delivery
// here - one flush path regardless of the batch's origin.
func (s *Session) Deliver(ops []*ot.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reconciler.Cache.Put(ops)
}

// Acknowledge records that this participant has applied outgoing operations
// up to newVersion, draining the in-flight Pending batch and promoting
// anything queued in Cache meanwhile.
func (s *Session) Acknowledge(newVersion int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reconciler.Acknowledge(newVersion)
}
