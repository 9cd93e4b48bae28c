package events

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// The action name for sync.
const (
	InsertAction  = "insert"
	UpdateAction  = "update"
	ReplaceAction = "replace"
	DeleteAction  = "delete"
)

/*
ChangeEvent is a record change event as delivered by the change feed,
normalized to a unified structure.
Action: <insert|update|replace|delete>
FullDocument holds the complete document for inserts and replaces.
UpdatedFields holds the raw update delta: keys may be dotted paths
(e.g. "address.line1"), nested objects, or a mix of both.
ResumeToken is the opaque position the feed can resume from after this
event; it is stored and forwarded uninterpreted.
*/
type ChangeEvent struct {
	Action string
	ID     interface{}

	FullDocument  bson.M
	UpdatedFields bson.M
	RemovedFields []string

	ResumeToken bson.Raw
}

// HasFieldDelta reports whether an update event carries any usable field
// changes. Events that only remove fields are dropped by the consumer.
func (e *ChangeEvent) HasFieldDelta() bool {
	return len(e.UpdatedFields) > 0
}

// UpdateKind tags the write shape of a pending update.
type UpdateKind int

const (
	// ReplaceDocument upserts the whole document (inserts, reindex rows).
	ReplaceDocument UpdateKind = iota
	// SetFields applies a $set of individual field paths. When the source
	// delta replaced the whole address group, Fields carries the bare
	// "address" key with the complete object so stale sub-fields are
	// dropped rather than merged around.
	SetFields
)

// PendingUpdate is one record's computed write, queued for the next flush.
// Exactly one of Document (ReplaceDocument) or Fields (SetFields) is set.
type PendingUpdate struct {
	ID       interface{}
	Kind     UpdateKind
	Document bson.M
	Fields   bson.M

	// Token is the resume token of the source event, carried so the
	// batch writer can checkpoint the last event included in a flush.
	Token bson.Raw
}
