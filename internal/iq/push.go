package iq

import (
	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// PushIQ carries any descriptor as its payload: the descriptor's own
// (schemaId, schemaVersion) header is embedded inline, so the receiver
// dispatches to the right descriptor deserialiser without the IQ needing
// a separate subtype enum.
//
// PayloadKey records which (schemaId, schemaVersion) the sender chose to
// encode Descriptor with; Operation.Execute picks it before building the IQ
// (the latest registered version of the descriptor's kind, or, for a
// twincode, the version the peer supports), so the same struct serves every Push*IQ named
// here: PushObjectIQ, PushFileIQ (and its Image/Audio/Video/NamedFile
// specialisations), PushTwincodeIQ v2/v3, PushGeolocationIQ and
// PushInvitationIQ.
type PushIQ struct {
	Envelope
	PayloadKey schema.Key
	Descriptor descriptor.Descriptor
}

type pushSerializer struct{ reg *schema.Registry }

func (s pushSerializer) Serialize(e *codec.Encoder, object any) error {
	p, ok := object.(*PushIQ)
	if !ok {
 return errType("*PushIQ", object)
	}
	writeEnvelope(e, p.Envelope)
	return s.reg.EncodeObject(e, p.PayloadKey, p.Descriptor)
}

func (s pushSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	key, err := schema.ReadHeader(d)
	if err != nil {
 return nil, err
	}
	ser, ok := s.reg.Lookup(key)
	if !ok {
 return nil, schema.ErrUnknownSchema
	}
	payload, err := ser.Deserialize(d)
	if err != nil {
 return nil, err
	}
	desc, ok := payload.(descriptor.Descriptor)
	if !ok {
 return nil, errType("descriptor.Descriptor", payload)
	}
	return &PushIQ{Envelope: env, PayloadKey: key, Descriptor: desc}, nil
}

// RegisterIQs registers every IQ schema this package defines. Called once
// at startup alongside descriptor.RegisterAll.
func RegisterIQs(reg *schema.Registry) {
	ps := pushSerializer{reg: reg}
	reg.Register(SchemaPushObject, 5, ps)
	reg.Register(SchemaPushFile, 2, ps)
	reg.Register(SchemaPushTwincode, 2, ps)
	reg.Register(SchemaPushTwincode, 3, ps)
	reg.Register(SchemaPushGeolocation, 1, ps)
	reg.Register(SchemaPushInvitation, 1, ps)

	reg.Register(SchemaPushTransient, 1, transientIQSerializer{reg: reg})
	reg.Register(SchemaPushCommand, 1, transientIQSerializer{reg: reg})

	registerUpdateIQs(reg)
	registerResetIQ(reg)
	registerGroupIQs(reg)
	registerFileChunkIQs(reg)
	registerSyncIQs(reg)
	registerAckIQs(reg)
}

// PushTransientIQ / PushCommandIQ wrap a short-lived, non-persisted
// payload identified by its own (schemaId, schemaVersion).
type PushTransientIQ struct {
	Envelope
	PayloadKey schema.Key
	Payload any
}

type transientIQSerializer struct{ reg *schema.Registry }

func (s transientIQSerializer) Serialize(e *codec.Encoder, object any) error {
	p, ok := object.(*PushTransientIQ)
	if !ok {
 return errType("*PushTransientIQ", object)
	}
	writeEnvelope(e, p.Envelope)
	return s.reg.EncodeObject(e, p.PayloadKey, p.Payload)
}

func (s transientIQSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	keyPos, err := schema.ReadHeader(d)
	if err != nil {
 return nil, err
	}
	ser, ok := s.reg.Lookup(keyPos)
	if !ok {
 return nil, schema.ErrUnknownSchema
	}
	payload, err := ser.Deserialize(d)
	if err != nil {
 return nil, err
	}
	return &PushTransientIQ{Envelope: env, PayloadKey: keyPos, Payload: payload}, nil
}
