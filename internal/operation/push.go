package operation

import (
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
)

// envelopeKeyFor maps a push Type to the outer PushIQ schema it is
// serialised under; the inner descriptor keeps its own
// independently-versioned schema as PayloadKey.
func envelopeKeyFor(t Type) (schema.Key, bool) {
	switch t {
	case TypePushObject:
 return schema.Key{SchemaID: iq.SchemaPushObject, SchemaVersion: 5}, true
	case TypePushFile:
 return schema.Key{SchemaID: iq.SchemaPushFile, SchemaVersion: 2}, true
	case TypePushGeolocation:
 return schema.Key{SchemaID: iq.SchemaPushGeolocation, SchemaVersion: 1}, true
	case TypePushInvitation:
 return schema.Key{SchemaID: iq.SchemaPushInvitation, SchemaVersion: 1}, true
	default:
 return schema.Key{}, false
	}
}

func (o *Operation) executePushDescriptor(conn Connection, store storage.Store, reg *schema.Registry, now time.Time) ErrorCode {
	desc, ok := o.loadDescriptor(store)
	if !ok {
 return Expired
	}
	if desc.Envelope().Expired(now) || desc.Envelope().Deleted() {
 return Expired
	}
	if !conn.PreparePush(desc, now) {
 return Expired
	}

	envelopeKey, ok := envelopeKeyFor(o.Type)
	if !ok {
 return Expired
	}
	payloadKey, ok := descriptor.LatestKey(desc.Kind())
	if !ok {
 return Expired
	}

	body := &iq.PushIQ{PayloadKey: payloadKey, Descriptor: desc}
	return o.send(conn, reg, envelopeKey, body, true, desc)
}

func (o *Operation) executePushTwincode(conn Connection, store storage.Store, reg *schema.Registry, now time.Time) ErrorCode {
	desc, ok := o.loadDescriptor(store)
	if !ok {
 return Expired
	}
	if desc.Envelope().Expired(now) || desc.Envelope().Deleted() {
 return Expired
	}
	if _, ok := desc.(*descriptor.Twincode); !ok {
 return Expired
	}
	if !conn.PreparePush(desc, now) {
 return Expired
	}

	var version int32
	switch {
	case conn.PeerSupports(2, 18):
 version = 3
	case conn.PeerSupports(2, 12):
 version = 2
	default:
 return FeatureNotSupportedByPeer
	}

	envelopeKey := schema.Key{SchemaID: iq.SchemaPushTwincode, SchemaVersion: version}
	payloadKey := schema.Key{SchemaID: descriptor.SchemaTwincode, SchemaVersion: version}
	body := &iq.PushIQ{PayloadKey: payloadKey, Descriptor: desc}
	return o.send(conn, reg, envelopeKey, body, true, desc)
}

func (o *Operation) executeTransient(conn Connection, reg *schema.Registry, schemaID uuid.UUID) ErrorCode {
	envelopeKey := schema.Key{SchemaID: schemaID, SchemaVersion: 1}
	body := &iq.PushTransientIQ{PayloadKey: o.TransientKey, Payload: o.TransientPayload}
	// Transient payloads are never persisted and carry no ack: fire-and-forget.
	return o.send(conn, reg, envelopeKey, body, false, nil)
}
