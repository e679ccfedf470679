// Package storage declares the persistence contract the conversation
// engine depends on without implementing a database of its own: the
// persistent store and its repository objects are an external
// collaborator. sqlitestore provides one concrete, SQLite-backed
// implementation; a production deployment may supply a different one as
// long as it satisfies Store.
package storage

import (
	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
)

// DescriptorTimestamps carries the mutable fields an Operation or handler
// persists back onto a descriptor after it was first created: everything else about a descriptor is immutable once stored.
type DescriptorTimestamps struct {
	SentTimestamp int64
	ReceivedTimestamp int64
	ReadTimestamp int64
	UpdatedTimestamp int64
	PeerDeleteTimestamp int64
	DeleteTimestamp int64
}

// OperationRecord is the durable form of an Operation: a
// schemaVersion tag followed by an operation-specific blob the Operation
// type itself knows how to decode. Storage treats Blob as opaque.
type OperationRecord struct {
	ID int64
	ConversationID int64
	CreationDate int64
	SchemaVersion int32
	Blob []byte
}

// Store is the persistence contract:
// load a descriptor by local id, persist its mutable timestamp fields,
// load/save per-descriptor annotations, and manage the durable Operation
// queue (load all pending, insert, delete on completion).
type Store interface {
	// LoadDescriptor returns the descriptor stored under localID.
	LoadDescriptor(localID int64) (descriptor.Descriptor, error)

	// SaveDescriptor persists a newly created descriptor and returns the
	// localID it was assigned.
	SaveDescriptor(d descriptor.Descriptor) (int64, error)

	// SaveDescriptorTimestamps updates the mutable timestamp fields of the
	// descriptor identified by localID, leaving content fields untouched.
	SaveDescriptorTimestamps(localID int64, ts DescriptorTimestamps) error

	// LoadAnnotations returns the annotation entries attached to the
	// descriptor identified by localID, keyed by twincode id.
	LoadAnnotations(localID int64) (map[uuid.UUID][]iq.Annotation, error)

	// SaveAnnotations replaces the annotation entries attached to the
	// descriptor identified by localID.
	SaveAnnotations(localID int64, entries map[uuid.UUID][]iq.Annotation) error

	// LoadOperations returns every pending operation, oldest first.
	LoadOperations() ([]OperationRecord, error)

	// SaveOperation inserts a new pending operation and returns its id.
	SaveOperation(rec OperationRecord) (int64, error)

	// DeleteOperation removes the operation row with the given id. It is
	// not an error to delete an id that no longer exists.
	DeleteOperation(id int64) error
}
