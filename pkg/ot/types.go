// Package ot implements the Wave-style operational transformation engine:
// the operation data model, the pairwise transformation algebra, merge-on-insert,
// diff-to-operation generation, and the client/authority reconciliation protocol.
package ot

// OpType identifies the kind of edit an Operation carries. The six values
// below are the officially supported Wave robot-API operation kinds.
type OpType string

const (
	DocumentInsert        OpType = "DOCUMENT_INSERT"
	DocumentDelete        OpType = "DOCUMENT_DELETE"
	DocumentElementInsert OpType = "DOCUMENT_ELEMENT_INSERT"
	DocumentElementDelete OpType = "DOCUMENT_ELEMENT_DELETE"
	DocumentElementDelta  OpType = "DOCUMENT_ELEMENT_DELTA"
	DocumentElementSetpref OpType = "DOCUMENT_ELEMENT_SETPREF"
)

// NoIndex marks an operation as not position-based, excluding it from
// positional transformation.
const NoIndex = -1
