package ot

// TransportSink receives serialized operation batches the Reconciler wants
// sent over the wire. It is invoked synchronously from within whichever
// Reconciler method triggered the flush, so implementations that hop to a
// network goroutine should copy the slice before returning.
type TransportSink func(version int, ops []map[string]any)

// Reconciler implements the three-queue client/authority reconciliation
// protocol: local edits accumulate in Cache, get promoted to Pending once
// in flight, and remote deltas pass through Incoming so they can be
// transformed against whatever this side has not yet had acknowledged.
//
// The same state machine drives both ends of a session: a browser-style
// client tracking its own edits against the authority, and the authority
// tracking one participant's last-seen version against the shared blip.
// A Reconciler is scoped to a single session and is driven by one goroutine
// at a time (the session's read pump), matching how its OpManagers are
// each used - it is not safe for concurrent use by multiple goroutines.
type Reconciler struct {
	Version  int
	Pending  *OpManager
	Cache    *OpManager
	Incoming *OpManager

	// Applying is true while ApplyOperations is rewriting local state from
	// a remote delta, so a caller driving a text widget knows to suppress
	// diff generation on the resulting change notification.
	Applying bool

	onPending TransportSink
}

// NewReconciler creates a reconciler for one wave/wavelet/blip session.
// onPending is called whenever a batch of locally generated operations is
// ready to be sent to the peer.
func NewReconciler(waveID, waveletID string, onPending TransportSink) *Reconciler {
	r := &Reconciler{
		Pending:   NewOpManager(waveID, waveletID),
		Cache:     NewOpManager(waveID, waveletID),
		Incoming:  NewOpManager(waveID, waveletID),
		onPending: onPending,
	}
	r.Cache.Subscribe("afterOperationsInserted", func(any) {
		// This listener runs synchronously from within Cache's own Fire
		// call, with Cache.mu already held by the calling goroutine - it
		// must use the unlocked, same-package fetchLocked below rather
		// than Cache's public, locking Fetch, which would deadlock
		// reacquiring the same mutex.
		r.flush(true)
	})
	return r
}

// flush promotes Cache into Pending and notifies the transport sink, but
// only if nothing is currently in flight. cacheLockHeld reports whether
// Cache.mu is already held by this goroutine (true when called from the
// Cache event listener above, including when that listener fires from
// inside OpManager.Transform's own insertAt call during ApplyOperations),
// in which case Cache must be drained via the unlocked fetchLocked path
// instead of the public, locking Fetch. Pending is always a distinct
// manager from Cache, so Pending.IsEmpty() is safe to call either way.
func (r *Reconciler) flush(cacheLockHeld bool) {
	if !r.Pending.IsEmpty() {
		return
	}
	var cacheOps []*Operation
	if cacheLockHeld {
		cacheOps = r.Cache.fetchLocked()
	} else {
		cacheOps = r.Cache.Fetch()
	}
	if len(cacheOps) == 0 {
		return
	}
	r.Pending.Put(cacheOps)
	if r.onPending != nil {
		r.onPending(r.Version, r.Pending.Serialize(false))
	}
}

// Cache operations are the entry point for locally generated edits: callers
// drive Cache.DocumentInsert/DocumentDelete/etc. (or GenerateDiffOps against
// Cache) directly; the afterOperationsInserted subscription above handles
// flushing automatically.

// ApplyOperations folds a remote delta into local state. docApply is called
// once per operation, in order, after it has been transformed to apply
// cleanly against the current local document; it should mutate whatever
// text/content representation the caller maintains. A delta whose version
// does not advance the reconciler's version is discarded.
func (r *Reconciler) ApplyOperations(newVersion int, ops []*Operation, docApply func(op *Operation)) {
	if newVersion <= r.Version {
		return
	}
	r.Applying = true
	defer func() { r.Applying = false }()

	r.Incoming.Put(ops)
	// Each TransformByManager call is itself a mutual transform: Incoming's
	// resident ops absorb the other manager's still-unconfirmed effect, and
	// that other manager's ops are rewritten in place to remain valid
	// against Incoming. After both calls Incoming already reflects both
	// Pending's and Cache's pending local edits, so what Fetch returns
	// below is ready to apply directly - no further per-op transform
	// against Pending/Cache is needed (doing so would double-shift them).
	r.Incoming.TransformByManager(r.Pending, false)
	r.Incoming.TransformByManager(r.Cache, false)

	for _, op := range r.Incoming.Fetch() {
		if docApply != nil {
			docApply(op)
		}
	}

	r.Version = newVersion
}

// ApplySerializedOperations is ApplyOperations for wire-format batches,
// rejecting the whole batch if any entry is malformed.
func (r *Reconciler) ApplySerializedOperations(newVersion int, serialOps []map[string]any, docApply func(op *Operation)) error {
	ops := make([]*Operation, len(serialOps))
	for i, obj := range serialOps {
		op, err := Unserialize(obj)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	r.ApplyOperations(newVersion, ops, docApply)
	return nil
}

// Acknowledge records that the peer has applied this side's operations up
// to newVersion. It drops the acknowledged Pending batch and, if edits
// accumulated in Cache while that batch was in flight, immediately promotes
// and sends them. Acknowledging a version that does not strictly advance
// the reconciler's version is a no-op, tolerating duplicate/retried acks.
func (r *Reconciler) Acknowledge(newVersion int) {
	if newVersion <= r.Version {
		return
	}
	r.Version = newVersion
	r.Pending.Fetch()
	r.flush(false)
}
