package ot

import "errors"

var (
	// ErrMalformedOperation is returned by Unserialize when a wire-format
	// map is missing a required key, carries an unknown type, an
	// out-of-range index, or a property shape that does not match type.
	ErrMalformedOperation = errors.New("ot: malformed operation")

	// ErrStaleVersion names an inbound delta whose version does not
	// advance the reconciler's current version. Reconciler.ApplyOperations
	// discards such a delta without returning an error; no function in
	// this package returns ErrStaleVersion.
	ErrStaleVersion = errors.New("ot: stale version")
)
