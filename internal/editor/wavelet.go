// internal/editor/wavelet.go
package editor

import (
	"sync"
	"time"

	"pygowave/pkg/ot"
)

// Participant is an address-like identifier added to or removed from a
// wavelet. It is carried for presence/audit and is not interpreted by the
// OT core itself.
type Participant struct {
	ID       string
	Username string
	Color    string
	JoinedAt time.Time
}

// Blip is a single text document unit within a wavelet. Content and Version
// are the authoritative, materialized state; history is the append-only
// record of every batch ever applied, kept so a participant whose session
// lags behind the current version can be caught up by transforming its
// incoming batch against everything it missed.
type Blip struct {
	ID string

	mu      sync.RWMutex
	content string
	version int
	history [][]*ot.Operation // history[i] produced version base+i+1, base = version - len(history)

	pending map[int][]*ot.Operation // version -> broadcast batch buffered out of order
}

// NewBlip creates an empty blip at version 0.
func NewBlip(id string) *Blip {
	return &Blip{
		ID:      id,
		pending: make(map[int][]*ot.Operation),
	}
}

// Snapshot returns the current content and version under the blip's lock.
func (b *Blip) Snapshot() (string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content, b.version
}

// SetInitial seeds a freshly created, still-empty blip with previously
// persisted content and version (e.g. loaded from storage on first
// reference after a restart). It is a no-op once the blip has advanced
// past version 0, so a late/duplicate load can never regress live state.
func (b *Blip) SetInitial(content string, version int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.version != 0 {
		return
	}
	b.content = content
	b.version = version
}

// OperationsSince returns clones of every operation applied after version,
// in application order, for catch-up transformation of a lagging session's
// incoming batch. It returns nil for a version older than the one the blip
// was seeded at by SetInitial, since no history is held before that point.
func (b *Blip) OperationsSince(version int) []*ot.Operation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	base := b.version - len(b.history)
	if version < base || version > b.version {
		return nil
	}
	var ops []*ot.Operation
	for _, batch := range b.history[version-base:] {
		for _, op := range batch {
			ops = append(ops, op.Clone())
		}
	}
	return ops
}

// Apply commits a batch of already-rebased operations as the next version,
// mutating content and appending to history. It is the only way Blip state
// changes; callers (Session.ApplyLocalEdit) are responsible for having
// transformed ops against anything applied since the batch's base version
// before calling Apply, so ops here are assumed to apply cleanly at the
// blip's current version.
func (b *Blip) Apply(ops []*ot.Operation) (newVersion int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, op := range ops {
		b.applyLocked(op)
	}
	b.version++
	b.history = append(b.history, ops)
	return b.version
}

func (b *Blip) applyLocked(op *ot.Operation) {
	runes := []rune(b.content)
	switch op.Type {
	case ot.DocumentInsert:
		idx := clampIndex(op.Index, len(runes))
		text := []rune(op.InsertText())
		out := make([]rune, 0, len(runes)+len(text))
		out = append(out, runes[:idx]...)
		out = append(out, text...)
		out = append(out, runes[idx:]...)
		b.content = string(out)
	case ot.DocumentDelete:
		idx := clampIndex(op.Index, len(runes))
		n := op.DeleteLength()
		end := idx + n
		if end > len(runes) {
			end = len(runes)
		}
		out := make([]rune, 0, len(runes)-(end-idx))
		out = append(out, runes[:idx]...)
		out = append(out, runes[end:]...)
		b.content = string(out)
	}
	// Element ops (insert/delete/delta/setpref) address structured
	// document elements, which this in-memory text projection does not
	// model; they are recorded in history for replay/persistence but do
	// not mutate content.
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// ApplyBroadcast integrates an operation_applied notification (from the
// local authority or relayed from a sibling instance via internal/broadcast)
// that is addressed by version rather than already-rebased content. It
// applies in order and buffers anything that arrives ahead of the expected
// next version, per SPEC_FULL.md's ordering guarantee: a delta skipping the
// expected next version is buffered, not applied out of order. It returns
// the batches actually applied, in order, for the caller to relay to its own
// connected sessions.
func (b *Blip) ApplyBroadcast(version int, ops []*ot.Operation) [][]*ot.Operation {
	b.mu.Lock()
	defer b.mu.Unlock()

	if version <= b.version {
		return nil
	}
	b.pending[version] = ops

	var applied [][]*ot.Operation
	for {
		next, ok := b.pending[b.version+1]
		if !ok {
			break
		}
		delete(b.pending, b.version+1)
		for _, op := range next {
			b.applyLocked(op)
		}
		b.version++
		b.history = append(b.history, next)
		applied = append(applied, next)
	}
	return applied
}

// Wavelet is a conversation container scoping the id space for operations:
// a set of participants and the blips they collaboratively edit.
type Wavelet struct {
	WaveID    string
	WaveletID string

	mu           sync.RWMutex
	participants map[string]*Participant
	blips        map[string]*Blip
}

// NewWavelet creates an empty wavelet.
func NewWavelet(waveID, waveletID string) *Wavelet {
	return &Wavelet{
		WaveID:       waveID,
		WaveletID:    waveletID,
		participants: make(map[string]*Participant),
		blips:        make(map[string]*Blip),
	}
}

// Join adds a participant, returning false if it was already present.
func (w *Wavelet) Join(p *Participant) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.participants[p.ID]; exists {
		return false
	}
	w.participants[p.ID] = p
	return true
}

// Leave removes a participant, returning false if it was not present.
func (w *Wavelet) Leave(participantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.participants[participantID]; !exists {
		return false
	}
	delete(w.participants, participantID)
	return true
}

// Participants returns a snapshot of current participants.
func (w *Wavelet) Participants() []*Participant {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Participant, 0, len(w.participants))
	for _, p := range w.participants {
		out = append(out, p)
	}
	return out
}

// Blip returns the named blip, creating it at version 0 if it does not yet
// exist - a wavelet's blips are lazily materialized on first reference.
func (w *Wavelet) Blip(blipID string) *Blip {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.blips[blipID]
	if !ok {
		b = NewBlip(blipID)
		w.blips[blipID] = b
	}
	return b
}
