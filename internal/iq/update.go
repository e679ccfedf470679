package iq

import (
	"sort"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// UpdateGeolocationIQ mutates the peer's current geolocation in place.
// Fields are written in the order they are declared.
type UpdateGeolocationIQ struct {
	Envelope
	Longitude float64
	Latitude float64
	Altitude float64
	MapLongitudeDelta float64
	MapLatitudeDelta float64
}

type updateGeolocationSerializer struct{}

func (updateGeolocationSerializer) Serialize(e *codec.Encoder, object any) error {
	u, ok := object.(*UpdateGeolocationIQ)
	if !ok {
 return errType("*UpdateGeolocationIQ", object)
	}
	writeEnvelope(e, u.Envelope)
	e.WriteDouble(u.Longitude)
	e.WriteDouble(u.Latitude)
	e.WriteDouble(u.Altitude)
	e.WriteDouble(u.MapLongitudeDelta)
	e.WriteDouble(u.MapLatitudeDelta)
	return nil
}

func (updateGeolocationSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	u := &UpdateGeolocationIQ{Envelope: env}
	if u.Longitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if u.Latitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if u.Altitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if u.MapLongitudeDelta, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if u.MapLatitudeDelta, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	return u, nil
}

// TimestampType selects which timestamp UpdateTimestampIQ carries.
type TimestampType byte

const (
	TimestampRead TimestampType = iota
	TimestampDelete
	TimestampPeerDelete
)

// UpdateTimestampIQ reports that a descriptor was read, deleted locally,
// or deleted by the peer. PEER_DELETE triggers no local
// action on receipt — it is a tombstone the peer records for itself.
type UpdateTimestampIQ struct {
	Envelope
	DescriptorID descriptor.Id
	Type TimestampType
	Timestamp int64
}

type updateTimestampSerializer struct{}

func (updateTimestampSerializer) Serialize(e *codec.Encoder, object any) error {
	u, ok := object.(*UpdateTimestampIQ)
	if !ok {
 return errType("*UpdateTimestampIQ", object)
	}
	writeEnvelope(e, u.Envelope)
	e.WriteUUID(u.DescriptorID.TwincodeOutboundID)
	e.WriteLong(u.DescriptorID.SequenceID)
	e.WriteEnum(int(u.Type))
	e.WriteLong(u.Timestamp)
	return nil
}

func (updateTimestampSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	u := &UpdateTimestampIQ{Envelope: env}
	if u.DescriptorID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if u.DescriptorID.SequenceID, err = d.ReadLong(); err != nil {
 return nil, err
	}
	typ, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	u.Type = TimestampType(typ)
	if u.Timestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return u, nil
}

// UpdateDescriptorIQ edits a previously-pushed descriptor's mutable
// fields. The three payload fields are independently optional: a nil pointer means "leave unchanged".
type UpdateDescriptorIQ struct {
	Envelope
	DescriptorID descriptor.Id
	UpdatedTimestamp int64
	ExpireTimeout *int64
	CopyAllowed *bool
	Message *string
}

type updateDescriptorSerializer struct{}

func (updateDescriptorSerializer) Serialize(e *codec.Encoder, object any) error {
	u, ok := object.(*UpdateDescriptorIQ)
	if !ok {
 return errType("*UpdateDescriptorIQ", object)
	}
	writeEnvelope(e, u.Envelope)
	e.WriteUUID(u.DescriptorID.TwincodeOutboundID)
	e.WriteLong(u.DescriptorID.SequenceID)
	e.WriteLong(u.UpdatedTimestamp)
	e.WriteOptionalLong(u.ExpireTimeout)
	if u.CopyAllowed != nil {
 e.WriteEnum(1)
 e.WriteBool(*u.CopyAllowed)
	} else {
 e.WriteEnum(0)
	}
	e.WriteOptionalString(u.Message)
	return nil
}

func (updateDescriptorSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	u := &UpdateDescriptorIQ{Envelope: env}
	if u.DescriptorID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if u.DescriptorID.SequenceID, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if u.UpdatedTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if u.ExpireTimeout, err = d.ReadOptionalLong(); err != nil {
 return nil, err
	}
	hasCopyAllowed, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if hasCopyAllowed == 1 {
 v, err := d.ReadBool()
 if err != nil {
 return nil, err
 }
 u.CopyAllowed = &v
	}
	if u.Message, err = d.ReadOptionalString(); err != nil {
 return nil, err
	}
	return u, nil
}

// AnnotationMode selects how UpdateAnnotationIQ's entries are applied.
type AnnotationMode byte

const (
	AnnotationSet AnnotationMode = iota
	AnnotationAdd
	AnnotationDel
)

// AnnotationType enumerates the reaction/marker kinds a descriptor can
// carry per twincode.
type AnnotationType byte

const (
	AnnotationForward AnnotationType = iota
	AnnotationForwarded
	AnnotationSave
	AnnotationLike
	AnnotationPoll
)

// Annotation is one (type, value) pair contributed by a single twincode.
type Annotation struct {
	Type AnnotationType
	Value int32
}

// UpdateAnnotationIQ bulk-applies reaction/marker changes keyed by
// contributing twincode.
type UpdateAnnotationIQ struct {
	Envelope
	DescriptorID descriptor.Id
	Mode AnnotationMode
	Entries map[uuid.UUID][]Annotation
}

type updateAnnotationSerializer struct{}

func (updateAnnotationSerializer) Serialize(e *codec.Encoder, object any) error {
	u, ok := object.(*UpdateAnnotationIQ)
	if !ok {
 return errType("*UpdateAnnotationIQ", object)
	}
	writeEnvelope(e, u.Envelope)
	e.WriteUUID(u.DescriptorID.TwincodeOutboundID)
	e.WriteLong(u.DescriptorID.SequenceID)
	e.WriteEnum(int(u.Mode))
	e.WriteInt(int32(len(u.Entries)))
	for _, twincodeID := range SortedAnnotationKeys(u.Entries) {
 annotations := u.Entries[twincodeID]
 e.WriteUUID(twincodeID)
 e.WriteInt(int32(len(annotations)))
 for _, a := range annotations {
 e.WriteEnum(int(a.Type))
 e.WriteInt(a.Value)
 }
	}
	return nil
}

// SortedAnnotationKeys returns entries' twincode keys in a fixed order, so
// callers that serialise the map get byte-identical output across runs
// instead of Go's randomized map iteration order.
func SortedAnnotationKeys(entries map[uuid.UUID][]Annotation) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(entries))
	for k := range entries {
 keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
 return keys[i].String() < keys[j].String()
	})
	return keys
}

func (updateAnnotationSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	u := &UpdateAnnotationIQ{Envelope: env}
	if u.DescriptorID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if u.DescriptorID.SequenceID, err = d.ReadLong(); err != nil {
 return nil, err
	}
	mode, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	u.Mode = AnnotationMode(mode)
	twincodeCount, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	u.Entries = make(map[uuid.UUID][]Annotation, twincodeCount)
	for i := int32(0); i < twincodeCount; i++ {
 twincodeID, err := d.ReadUUID()
 if err != nil {
 return nil, err
 }
 entryCount, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 entries := make([]Annotation, entryCount)
 for j := int32(0); j < entryCount; j++ {
 typ, err := d.ReadEnum()
 if err != nil {
 return nil, err
 }
 val, err := d.ReadInt()
 if err != nil {
 return nil, err
 }
 entries[j] = Annotation{Type: AnnotationType(typ), Value: val}
 }
 u.Entries[twincodeID] = entries
	}
	return u, nil
}

// UpdatePermissionsIQ replaces the permissions bitmask a peer grants on
// one conversation endpoint.
type UpdatePermissionsIQ struct {
	Envelope
	TwincodeOutboundID uuid.UUID
	Permissions uint32
}

type updatePermissionsSerializer struct{}

func (updatePermissionsSerializer) Serialize(e *codec.Encoder, object any) error {
	u, ok := object.(*UpdatePermissionsIQ)
	if !ok {
 return errType("*UpdatePermissionsIQ", object)
	}
	writeEnvelope(e, u.Envelope)
	e.WriteUUID(u.TwincodeOutboundID)
	e.WriteInt(int32(u.Permissions))
	return nil
}

func (updatePermissionsSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	u := &UpdatePermissionsIQ{Envelope: env}
	if u.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	perms, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	u.Permissions = uint32(perms)
	return u, nil
}

func registerUpdateIQs(reg *schema.Registry) {
	reg.Register(SchemaUpdateGeolocation, 3, updateGeolocationSerializer{})
	reg.Register(SchemaUpdateTimestamp, 1, updateTimestampSerializer{})
	reg.Register(SchemaUpdateDescriptor, 1, updateDescriptorSerializer{})
	reg.Register(SchemaUpdateAnnotation, 1, updateAnnotationSerializer{})
	reg.Register(SchemaUpdatePermissions, 1, updatePermissionsSerializer{})
}
