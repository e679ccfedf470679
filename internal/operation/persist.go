package operation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/crypto"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
)

// blobSchemaVersion tags the Blob encoding itself, independent of any
// (schemaId, schemaVersion) pair the per-field descriptor/IQ bodies carry.
// Bump it whenever the field layout below changes in a way that breaks
// existing rows.
const blobSchemaVersion int32 = 1

// ToRecord converts o into its durable form: ID, ConversationID and
// CreationDate stay top-level columns, everything else is packed into Blob
// behind blobSchemaVersion so the queue can store an Operation opaquely.
func (o *Operation) ToRecord(reg *schema.Registry) (storage.OperationRecord, error) {
	e := codec.NewEncoder(false)
	if err := marshalBlob(e, reg, o); err != nil {
 return storage.OperationRecord{}, err
	}
	return storage.OperationRecord{
 ID: o.ID,
 ConversationID: o.ConversationID,
 CreationDate: o.CreationDate,
 SchemaVersion: blobSchemaVersion,
 Blob: e.Bytes(),
	}, nil
}

// FromRecord rehydrates an Operation from its durable form. Unknown
// SchemaVersion values are rejected rather than guessed at.
func FromRecord(rec storage.OperationRecord, reg *schema.Registry) (*Operation, error) {
	if rec.SchemaVersion != blobSchemaVersion {
 return nil, fmt.Errorf("operation: unsupported blob schema version %d", rec.SchemaVersion)
	}
	d, err := codec.NewDecoder(rec.Blob, false)
	if err != nil {
 return nil, err
	}
	o, err := unmarshalBlob(d, reg)
	if err != nil {
 return nil, err
	}
	o.ID = rec.ID
	o.ConversationID = rec.ConversationID
	o.CreationDate = rec.CreationDate
	return o, nil
}

// marshalBlob writes o.Type followed by exactly the fields that Type's
// execute function reads, mirroring the comment-grouped field layout on
// Operation itself.
func marshalBlob(e *codec.Encoder, reg *schema.Registry, o *Operation) error {
	e.WriteEnum(int(o.Type))
	e.WriteLong(o.RequestID)

	switch o.Type {
	case TypePushObject, TypePushFile, TypePushGeolocation, TypePushTwincode, TypePushInvitation:
 e.WriteLong(o.DescriptorLocalID)

	case TypePushTransientObject, TypePushCommand:
 if err := writeOptionalTransientPayload(e, reg, o.TransientKey, o.TransientPayload); err != nil {
 return err
 }

	case TypeUpdateDescriptorTimestamp:
 e.WriteLong(o.DescriptorLocalID)
 e.WriteEnum(int(o.TimestampType))
 e.WriteLong(o.TimestampValue)

	case TypeUpdateAnnotations:
 e.WriteLong(o.DescriptorLocalID)
 e.WriteEnum(int(o.AnnotationMode))
 writeAnnotationEntries(e, o.AnnotationEntries)

	case TypeUpdateDescriptor:
 e.WriteLong(o.DescriptorLocalID)
 e.WriteLong(o.UpdatedTimestamp)
 e.WriteOptionalLong(o.ExpireTimeout)
 writeOptionalBool(e, o.CopyAllowed)
 e.WriteOptionalString(o.Message)

	case TypeUpdatePermissions:
 e.WriteUUID(o.TargetTwincodeID)
 e.WriteInt(int32(o.Permissions))

	case TypeResetConversation:
 if err := writeOptionalClear(e, reg, o.ClearDescriptor); err != nil {
 return err
 }
 e.WriteLong(o.ClearTimestamp)
 e.WriteEnum(int(o.ClearMode))

	case TypeJoinGroup:
 e.WriteUUID(o.GroupTwincodeID)
 writeOptionalSignatureInfo(e, o.InviterInfo)

	case TypeInvokeJoinGroup:
 e.WriteUUID(o.GroupTwincodeID)
 e.WriteUUID(o.MemberTwincodeID)
 e.WriteInt(int32(o.JoinPermissions))
 writeOptionalSignatureInfo(e, o.InviterInfo)

	case TypeInvokeAddMember:
 e.WriteUUID(o.GroupTwincodeID)
 e.WriteUUID(o.MemberTwincodeID)
 e.WriteInt(int32(o.JoinPermissions))

	case TypeSynchronizeConversation:
 e.WriteUUID(o.PeerTwincodeOutboundID)
 e.WriteUUID(o.ResourceID)

	default:
 return fmt.Errorf("operation: no blob encoding for type %s", o.Type)
	}
	return nil
}

func unmarshalBlob(d *codec.Decoder, reg *schema.Registry) (*Operation, error) {
	typ, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	o := &Operation{Type: Type(typ)}
	if o.RequestID, err = d.ReadLong(); err != nil {
 return nil, err
	}

	switch o.Type {
	case TypePushObject, TypePushFile, TypePushGeolocation, TypePushTwincode, TypePushInvitation:
 if o.DescriptorLocalID, err = d.ReadLong(); err != nil {
 return nil, err
 }

	case TypePushTransientObject, TypePushCommand:
 if o.TransientKey, o.TransientPayload, err = readOptionalTransientPayload(d, reg); err != nil {
 return nil, err
 }

	case TypeUpdateDescriptorTimestamp:
 if o.DescriptorLocalID, err = d.ReadLong(); err != nil {
 return nil, err
 }
 ts, err := d.ReadEnum()
 if err != nil {
 return nil, err
 }
 o.TimestampType = iq.TimestampType(ts)
 if o.TimestampValue, err = d.ReadLong(); err != nil {
 return nil, err
 }

	case TypeUpdateAnnotations:
 if o.DescriptorLocalID, err = d.ReadLong(); err != nil {
 return nil, err
 }
 mode, err := d.ReadEnum()
 if err != nil {
 return nil, err
 }
 o.AnnotationMode = iq.AnnotationMode(mode)
 if o.AnnotationEntries, err = readAnnotationEntries(d); err != nil {
 return nil, err
 }

	case TypeUpdateDescriptor:
 if o.DescriptorLocalID, err = d.ReadLong(); err != nil {
 return nil, err
 }
 if o.UpdatedTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
 }
 if o.ExpireTimeout, err = d.ReadOptionalLong(); err != nil {
 return nil, err
 }
 if o.CopyAllowed, err = readOptionalBool(d); err != nil {
 return nil, err
 }
 if o.Message, err = d.ReadOptionalString(); err != nil {
 return nil, err
 }

	case TypeUpdatePermissions:
 if o.TargetTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 perms, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 o.Permissions = uint32(perms)

	case TypeResetConversation:
 if o.ClearDescriptor, err = readOptionalClear(d, reg); err != nil {
 return nil, err
 }
 if o.ClearTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
 }
 mode, err := d.ReadEnum()
 if err != nil {
 return nil, err
 }
 o.ClearMode = iq.ClearMode(mode)

	case TypeJoinGroup:
 if o.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 if o.InviterInfo, err = readOptionalSignatureInfo(d); err != nil {
 return nil, err
 }

	case TypeInvokeJoinGroup:
 if o.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 if o.MemberTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 perms, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 o.JoinPermissions = uint32(perms)
 if o.InviterInfo, err = readOptionalSignatureInfo(d); err != nil {
 return nil, err
 }

	case TypeInvokeAddMember:
 if o.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 if o.MemberTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 perms, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 o.JoinPermissions = uint32(perms)

	case TypeSynchronizeConversation:
 if o.PeerTwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
 }
 if o.ResourceID, err = d.ReadUUID(); err != nil {
 return nil, err
 }

	default:
 return nil, fmt.Errorf("operation: no blob decoding for type %s", o.Type)
	}
	return o, nil
}

func writeOptionalBool(e *codec.Encoder, v *bool) {
	if v == nil {
 e.WriteEnum(0)
 return
	}
	e.WriteEnum(1)
	e.WriteBool(*v)
}

func readOptionalBool(d *codec.Decoder) (*bool, error) {
	present, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if present == 0 {
 return nil, nil
	}
	v, err := d.ReadBool()
	if err != nil {
 return nil, err
	}
	return &v, nil
}

func writeAnnotationEntries(e *codec.Encoder, entries map[uuid.UUID][]iq.Annotation) {
	e.WriteInt(int32(len(entries)))
	for _, twincodeID := range iq.SortedAnnotationKeys(entries) {
 annotations := entries[twincodeID]
 e.WriteUUID(twincodeID)
 e.WriteInt(int32(len(annotations)))
 for _, a := range annotations {
 e.WriteEnum(int(a.Type))
 e.WriteInt(a.Value)
 }
	}
}

func readAnnotationEntries(d *codec.Decoder) (map[uuid.UUID][]iq.Annotation, error) {
	count, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	entries := make(map[uuid.UUID][]iq.Annotation, count)
	for i := int32(0); i < count; i++ {
 twincodeID, err := d.ReadUUID()
 if err != nil {
 return nil, err
 }
 n, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 annotations := make([]iq.Annotation, n)
 for j := int32(0); j < n; j++ {
 typ, err := d.ReadEnum()
 if err != nil {
 return nil, err
 }
 val, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 annotations[j] = iq.Annotation{Type: iq.AnnotationType(typ), Value: val}
 }
 entries[twincodeID] = annotations
	}
	return entries, nil
}

// writeOptionalClear persists RESET_CONVERSATION's clear tombstone through
// the schema registry, the same inner-object path descriptor.Clear already
// serialises under on the wire.
func writeOptionalClear(e *codec.Encoder, reg *schema.Registry, c *descriptor.Clear) error {
	if c == nil {
 e.WriteEnum(0)
 return nil
	}
	e.WriteEnum(1)
	key, ok := descriptor.LatestKey(descriptor.KindClear)
	if !ok {
 return fmt.Errorf("operation: no registered schema for descriptor.Clear")
	}
	return reg.EncodeObject(e, key, c)
}

func readOptionalClear(d *codec.Decoder, reg *schema.Registry) (*descriptor.Clear, error) {
	present, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if present == 0 {
 return nil, nil
	}
	payload, err := reg.DecodeObject(d, nil)
	if err != nil {
 return nil, err
	}
	c, ok := payload.(*descriptor.Clear)
	if !ok {
 return nil, fmt.Errorf("operation: want *descriptor.Clear, got %T", payload)
	}
	return c, nil
}

// writeOptionalTransientPayload persists the polymorphic payload a
// PUSH_TRANSIENT_OBJECT/PUSH_COMMAND operation carries, mirroring
// PushTransientIQ's own (schemaId, schemaVersion)-prefixed body.
func writeOptionalTransientPayload(e *codec.Encoder, reg *schema.Registry, key schema.Key, payload any) error {
	if payload == nil {
 e.WriteEnum(0)
 return nil
	}
	e.WriteEnum(1)
	return reg.EncodeObject(e, key, payload)
}

func readOptionalTransientPayload(d *codec.Decoder, reg *schema.Registry) (schema.Key, any, error) {
	present, err := d.ReadEnum()
	if err != nil {
 return schema.Key{}, nil, err
	}
	if present == 0 {
 return schema.Key{}, nil, nil
	}
	key, err := schema.ReadHeader(d)
	if err != nil {
 return schema.Key{}, nil, err
	}
	ser, ok := reg.Lookup(key)
	if !ok {
 return schema.Key{}, nil, fmt.Errorf("%w: unknown schema %s", schema.ErrUnknownSchema, key.String())
	}
	payload, err := ser.Deserialize(d)
	if err != nil {
 return schema.Key{}, nil, err
	}
	return key, payload, nil
}

// writeSignatureInfo / readSignatureInfo mirror the iq package's own
// unexported helpers of the same name (internal/iq/group.go), duplicated
// here since persisted Operations live in a different package from the
// wire IQ that eventually carries the same SignatureInfo.
func writeSignatureInfo(e *codec.Encoder, s *crypto.SignatureInfo) {
	e.WriteUUID(s.TwincodeOutboundID)
	e.WriteOptionalBytes(s.PublicKey)
	e.WriteOptionalBytes(s.Secret)
	e.WriteOptionalBytes(s.Salt)
	e.WriteOptionalBytes(s.Signature)
}

func readSignatureInfo(d *codec.Decoder) (*crypto.SignatureInfo, error) {
	var s crypto.SignatureInfo
	var err error
	if s.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if s.PublicKey, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	if s.Secret, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	if s.Salt, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	if s.Signature, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	return &s, nil
}

func writeOptionalSignatureInfo(e *codec.Encoder, s *crypto.SignatureInfo) {
	if s == nil {
 e.WriteEnum(0)
 return
	}
	e.WriteEnum(1)
	writeSignatureInfo(e, s)
}

func readOptionalSignatureInfo(d *codec.Decoder) (*crypto.SignatureInfo, error) {
	present, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if present == 0 {
 return nil, nil
	}
	return readSignatureInfo(d)
}
