package operation

import (
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
)

func (o *Operation) executeUpdateTimestamp(conn Connection, store storage.Store, reg *schema.Registry) ErrorCode {
	body := &iq.UpdateTimestampIQ{
 DescriptorID: o.descriptorID(store),
 Type: o.TimestampType,
 Timestamp: o.TimestampValue,
	}
	key := schema.Key{SchemaID: iq.SchemaUpdateTimestamp, SchemaVersion: 1}
	// No ack schema is registered for UpdateTimestampIQ:
	// read/delete/peer-delete notices are fire-and-forget.
	return o.send(conn, reg, key, body, false, nil)
}

func (o *Operation) executeUpdateAnnotations(conn Connection, store storage.Store, reg *schema.Registry) ErrorCode {
	body := &iq.UpdateAnnotationIQ{
 DescriptorID: o.descriptorID(store),
 Mode: o.AnnotationMode,
 Entries: o.AnnotationEntries,
	}
	key := schema.Key{SchemaID: iq.SchemaUpdateAnnotation, SchemaVersion: 1}
	return o.send(conn, reg, key, body, false, nil)
}

func (o *Operation) executeUpdateDescriptor(conn Connection, store storage.Store, reg *schema.Registry) ErrorCode {
	body := &iq.UpdateDescriptorIQ{
 DescriptorID: o.descriptorID(store),
 UpdatedTimestamp: o.UpdatedTimestamp,
 ExpireTimeout: o.ExpireTimeout,
 CopyAllowed: o.CopyAllowed,
 Message: o.Message,
	}
	key := schema.Key{SchemaID: iq.SchemaUpdateDescriptor, SchemaVersion: 1}
	// SchemaOnUpdateDescriptor is registered (ack.go): this edit is
	// tracked until the peer confirms it.
	return o.send(conn, reg, key, body, true, nil)
}

func (o *Operation) executeUpdatePermissions(conn Connection, reg *schema.Registry) ErrorCode {
	body := &iq.UpdatePermissionsIQ{
 TwincodeOutboundID: o.TargetTwincodeID,
 Permissions: o.Permissions,
	}
	key := schema.Key{SchemaID: iq.SchemaUpdatePermissions, SchemaVersion: 1}
	return o.send(conn, reg, key, body, false, nil)
}

func (o *Operation) executeResetConversation(conn Connection, reg *schema.Registry) ErrorCode {
	// "Reset conversation in CLEAR_MEDIA mode against peer <
	// 2.15": a media-only clear has no representation before (2,15), so
	// it completes locally with no frame sent.
	if (o.ClearMode == iq.ClearMedia || o.ClearMode == iq.ClearBothMedia) && !conn.PeerSupports(2, 15) {
 return Success
	}
	body := &iq.ResetConversationIQ{
 ClearDescriptor: o.ClearDescriptor,
 ClearTimestamp: o.ClearTimestamp,
 Mode: o.ClearMode,
	}
	key := schema.Key{SchemaID: iq.SchemaResetConversation, SchemaVersion: 1}
	return o.send(conn, reg, key, body, true, nil)
}

func (o *Operation) descriptorID(store storage.Store) descriptor.Id {
	if d, ok := o.loadDescriptor(store); ok {
 return d.Envelope().ID
	}
	return descriptor.Id{}
}
