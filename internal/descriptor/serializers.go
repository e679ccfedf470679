package descriptor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// allowedMessageSchema restricts ObjectDescriptor's inner message body to
// the well-known Message schema: an inner header naming any other schema
// is rejected with ErrSerialization rather than decoded as something
// else.
var allowedMessageSchema = map[uuid.UUID]struct{}{SchemaMessage: {}}

// messageSerializerV1 is the sole registered version of the Message
// schema: a single UTF-8 string body, no envelope of its own.
type messageSerializerV1 struct{}

func (messageSerializerV1) Serialize(e *codec.Encoder, object any) error {
	m, ok := object.(*Message)
	if !ok {
 return fmt.Errorf("%w: want *Message, got %T", schema.ErrSerialization, object)
	}
	e.WriteString(m.Text)
	return nil
}

func (messageSerializerV1) Deserialize(d *codec.Decoder) (any, error) {
	text, err := d.ReadString()
	if err != nil {
 return nil, err
	}
	return &Message{Text: text}, nil
}

// objectSerializerV2 is the current Object wire version: envelope +
// polymorphic message body (inner schema header, checked against
// SchemaMessage) + copyAllowed + edited. v1 (no "edited" field) is kept
// for deserialising old frames.
type objectSerializerV2 struct{ reg *schema.Registry }

func (s objectSerializerV2) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*Object)
	if !ok {
 return fmt.Errorf("%w: want *Object, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &o.Base)
	msgKey := schema.Key{SchemaID: SchemaMessage, SchemaVersion: 1}
	if err := s.reg.EncodeObject(e, msgKey, &Message{Text: o.Message}); err != nil {
 return err
	}
	e.WriteBool(o.CopyAllowed)
	e.WriteBool(o.Edited)
	return nil
}

func (s objectSerializerV2) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &Object{Base: base}
	payload, err := s.reg.DecodeObject(d, allowedMessageSchema)
	if err != nil {
 return nil, err
	}
	msg, ok := payload.(*Message)
	if !ok {
 return nil, fmt.Errorf("%w: want *Message, got %T", schema.ErrSerialization, payload)
	}
	o.Message = msg.Text
	if o.CopyAllowed, err = d.ReadBool(); err != nil {
 return nil, err
	}
	if o.Edited, err = d.ReadBool(); err != nil {
 return nil, err
	}
	return o, nil
}

type objectSerializerV1 struct{ reg *schema.Registry }

func (s objectSerializerV1) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*Object)
	if !ok {
 return fmt.Errorf("%w: want *Object, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &o.Base)
	msgKey := schema.Key{SchemaID: SchemaMessage, SchemaVersion: 1}
	if err := s.reg.EncodeObject(e, msgKey, &Message{Text: o.Message}); err != nil {
 return err
	}
	e.WriteBool(o.CopyAllowed)
	return nil
}

func (s objectSerializerV1) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &Object{Base: base}
	payload, err := s.reg.DecodeObject(d, allowedMessageSchema)
	if err != nil {
 return nil, err
	}
	msg, ok := payload.(*Message)
	if !ok {
 return nil, fmt.Errorf("%w: want *Message, got %T", schema.ErrSerialization, payload)
	}
	o.Message = msg.Text
	if o.CopyAllowed, err = d.ReadBool(); err != nil {
 return nil, err
	}
	return o, nil
}

type fileSerializerV2 struct{}

func (fileSerializerV2) Serialize(e *codec.Encoder, object any) error {
	f, ok := object.(*File)
	if !ok {
 return fmt.Errorf("%w: want *File, got %T", schema.ErrSerialization, object)
	}
	writeFileEnvelope(e, f)
	return nil
}

func (fileSerializerV2) Deserialize(d *codec.Decoder) (any, error) {
	f, err := readFileEnvelope(d)
	if err != nil {
 return nil, err
	}
	return &f, nil
}

type imageSerializerV4 struct{}

func (imageSerializerV4) Serialize(e *codec.Encoder, object any) error {
	img, ok := object.(*Image)
	if !ok {
 return fmt.Errorf("%w: want *Image, got %T", schema.ErrSerialization, object)
	}
	writeFileEnvelope(e, &img.File)
	e.WriteInt(img.Width)
	e.WriteInt(img.Height)
	return nil
}

func (imageSerializerV4) Deserialize(d *codec.Decoder) (any, error) {
	f, err := readFileEnvelope(d)
	if err != nil {
 return nil, err
	}
	img := &Image{File: f}
	if img.Width, err = d.ReadInt(); err != nil {
 return nil, err
	}
	if img.Height, err = d.ReadInt(); err != nil {
 return nil, err
	}
	return img, nil
}

type audioSerializerV4 struct{}

func (audioSerializerV4) Serialize(e *codec.Encoder, object any) error {
	a, ok := object.(*Audio)
	if !ok {
 return fmt.Errorf("%w: want *Audio, got %T", schema.ErrSerialization, object)
	}
	writeFileEnvelope(e, &a.File)
	e.WriteLong(a.DurationMs)
	return nil
}

func (audioSerializerV4) Deserialize(d *codec.Decoder) (any, error) {
	f, err := readFileEnvelope(d)
	if err != nil {
 return nil, err
	}
	a := &Audio{File: f}
	if a.DurationMs, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return a, nil
}

type videoSerializerV4 struct{}

func (videoSerializerV4) Serialize(e *codec.Encoder, object any) error {
	v, ok := object.(*Video)
	if !ok {
 return fmt.Errorf("%w: want *Video, got %T", schema.ErrSerialization, object)
	}
	writeFileEnvelope(e, &v.File)
	e.WriteInt(v.Width)
	e.WriteInt(v.Height)
	e.WriteLong(v.DurationMs)
	return nil
}

func (videoSerializerV4) Deserialize(d *codec.Decoder) (any, error) {
	f, err := readFileEnvelope(d)
	if err != nil {
 return nil, err
	}
	v := &Video{File: f}
	if v.Width, err = d.ReadInt(); err != nil {
 return nil, err
	}
	if v.Height, err = d.ReadInt(); err != nil {
 return nil, err
	}
	if v.DurationMs, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return v, nil
}

type namedFileSerializerV4 struct{}

func (namedFileSerializerV4) Serialize(e *codec.Encoder, object any) error {
	n, ok := object.(*NamedFile)
	if !ok {
 return fmt.Errorf("%w: want *NamedFile, got %T", schema.ErrSerialization, object)
	}
	writeFileEnvelope(e, &n.File)
	e.WriteString(n.Name)
	return nil
}

func (namedFileSerializerV4) Deserialize(d *codec.Decoder) (any, error) {
	f, err := readFileEnvelope(d)
	if err != nil {
 return nil, err
	}
	n := &NamedFile{File: f}
	if n.Name, err = d.ReadString(); err != nil {
 return nil, err
	}
	return n, nil
}

// geolocationSerializerV3 writes the map deltas in (longitude, latitude)
// order. The original serialiser this is modelled on writes
// mapLongitudeDelta twice; that bug is not wire-observable here since both
// ends of this module are implemented together, so the correct order is used.
type geolocationSerializerV3 struct{}

func (geolocationSerializerV3) Serialize(e *codec.Encoder, object any) error {
	g, ok := object.(*Geolocation)
	if !ok {
 return fmt.Errorf("%w: want *Geolocation, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &g.Base)
	e.WriteDouble(g.Longitude)
	e.WriteDouble(g.Latitude)
	e.WriteDouble(g.Altitude)
	e.WriteDouble(g.MapLongitudeDelta)
	e.WriteDouble(g.MapLatitudeDelta)
	e.WriteBool(g.Updated)
	e.WriteOptionalString(g.LocalMapPath)
	return nil
}

func (geolocationSerializerV3) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	g := &Geolocation{Base: base}
	if g.Longitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if g.Latitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if g.Altitude, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if g.MapLongitudeDelta, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if g.MapLatitudeDelta, err = d.ReadDouble(); err != nil {
 return nil, err
	}
	if g.Updated, err = d.ReadBool(); err != nil {
 return nil, err
	}
	if g.LocalMapPath, err = d.ReadOptionalString(); err != nil {
 return nil, err
	}
	return g, nil
}

// twincodeSerializerV3 adds the optional publicKey field carried by
// PushTwincodeIQ v3.
type twincodeSerializerV3 struct{}

func (twincodeSerializerV3) Serialize(e *codec.Encoder, object any) error {
	t, ok := object.(*Twincode)
	if !ok {
 return fmt.Errorf("%w: want *Twincode, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &t.Base)
	e.WriteUUID(t.TwincodeID)
	e.WriteUUID(t.SchemaID)
	e.WriteOptionalBytes(t.PublicKey)
	e.WriteBool(t.CopyAllowed)
	return nil
}

func (twincodeSerializerV3) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	t := &Twincode{Base: base}
	if t.TwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if t.SchemaID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if t.PublicKey, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	if t.CopyAllowed, err = d.ReadBool(); err != nil {
 return nil, err
	}
	return t, nil
}

type twincodeSerializerV2 struct{}

func (twincodeSerializerV2) Serialize(e *codec.Encoder, object any) error {
	t, ok := object.(*Twincode)
	if !ok {
 return fmt.Errorf("%w: want *Twincode, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &t.Base)
	e.WriteUUID(t.TwincodeID)
	e.WriteUUID(t.SchemaID)
	e.WriteBool(t.CopyAllowed)
	return nil
}

func (twincodeSerializerV2) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	t := &Twincode{Base: base}
	if t.TwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if t.SchemaID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if t.CopyAllowed, err = d.ReadBool(); err != nil {
 return nil, err
	}
	return t, nil
}

type invitationSerializerV1 struct{}

func (invitationSerializerV1) Serialize(e *codec.Encoder, object any) error {
	i, ok := object.(*Invitation)
	if !ok {
 return fmt.Errorf("%w: want *Invitation, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &i.Base)
	e.WriteUUID(i.GroupTwincodeID)
	e.WriteUUID(i.MemberTwincodeID)
	e.WriteUUID(i.InviterTwincodeID)
	e.WriteString(i.Name)
	e.WriteOptionalBytes(i.PublicKey)
	e.WriteEnum(int(i.Status))
	return nil
}

func (invitationSerializerV1) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	i := &Invitation{Base: base}
	if i.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if i.MemberTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if i.InviterTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if i.Name, err = d.ReadString(); err != nil {
 return nil, err
	}
	if i.PublicKey, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	status, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	i.Status = InvitationStatus(status)
	return i, nil
}

type clearSerializerV1 struct{}

func (clearSerializerV1) Serialize(e *codec.Encoder, object any) error {
	c, ok := object.(*Clear)
	if !ok {
 return fmt.Errorf("%w: want *Clear, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &c.Base)
	e.WriteLong(c.ClearTimestamp)
	return nil
}

func (clearSerializerV1) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	c := &Clear{Base: base}
	if c.ClearTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return c, nil
}

// transientSerializerV1 writes the envelope then the polymorphic payload
// header+body, resolved against reg. Unlike
// ObjectDescriptor's message body, TransientObject imposes no fixed
// "allowed" schema set — any registered schema may ride inside it.
type transientSerializerV1 struct{ reg *schema.Registry }

func (s transientSerializerV1) Serialize(e *codec.Encoder, object any) error {
	t, ok := object.(*TransientObject)
	if !ok {
 return fmt.Errorf("%w: want *TransientObject, got %T", schema.ErrSerialization, object)
	}
	writeEnvelope(e, &t.Base)
	return s.reg.EncodeObject(e, t.PayloadSchema, t.Payload)
}

func (s transientSerializerV1) Deserialize(d *codec.Decoder) (any, error) {
	base, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	t := &TransientObject{Base: base}
	payload, err := s.reg.DecodeObject(d, nil)
	if err != nil {
 return nil, err
	}
	t.Payload = payload
	return t, nil
}

// RegisterAll registers every descriptor (schemaId, schemaVersion) pair
// known to this package. Called once at startup.
func RegisterAll(reg *schema.Registry) {
	reg.Register(SchemaMessage, 1, messageSerializerV1{})
	reg.Register(SchemaObject, 1, objectSerializerV1{reg: reg})
	reg.Register(SchemaObject, 2, objectSerializerV2{reg: reg})

	reg.Register(SchemaFile, 2, fileSerializerV2{})
	reg.Register(SchemaImage, 4, imageSerializerV4{})
	reg.Register(SchemaAudio, 4, audioSerializerV4{})
	reg.Register(SchemaVideo, 4, videoSerializerV4{})
	reg.Register(SchemaNamedFile, 4, namedFileSerializerV4{})

	reg.Register(SchemaGeolocation, 3, geolocationSerializerV3{})

	reg.Register(SchemaTwincode, 2, twincodeSerializerV2{})
	reg.Register(SchemaTwincode, 3, twincodeSerializerV3{})

	reg.Register(SchemaInvitation, 1, invitationSerializerV1{})
	reg.Register(SchemaClear, 1, clearSerializerV1{})
	reg.Register(SchemaTransientObject, 1, transientSerializerV1{reg: reg})
}
