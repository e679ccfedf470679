package iq

import (
	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// ClearMode selects what a ResetConversationIQ wipes: local history only,
// both peers' history, local media only, or both peers' media.
type ClearMode byte

const (
	ClearLocal ClearMode = iota
	ClearBoth
	ClearMedia
	ClearBothMedia
)

// ResetConversationIQ truncates a conversation at clearTimestamp. The
// ClearDescriptor is optional: a reset the peer has not yet acknowledged
// with a tombstone carries none.
type ResetConversationIQ struct {
	Envelope
	ClearDescriptor *descriptor.Clear
	ClearTimestamp int64
	Mode ClearMode
}

type resetConversationSerializer struct{ reg *schema.Registry }

func (s resetConversationSerializer) Serialize(e *codec.Encoder, object any) error {
	r, ok := object.(*ResetConversationIQ)
	if !ok {
 return errType("*ResetConversationIQ", object)
	}
	writeEnvelope(e, r.Envelope)
	if r.ClearDescriptor != nil {
 e.WriteEnum(1)
 if err := s.reg.EncodeObject(e, schema.Key{SchemaID: descriptor.SchemaClear, SchemaVersion: 1}, r.ClearDescriptor); err != nil {
 return err
 }
	} else {
 e.WriteEnum(0)
	}
	e.WriteLong(r.ClearTimestamp)
	e.WriteEnum(int(r.Mode))
	return nil
}

func (s resetConversationSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	r := &ResetConversationIQ{Envelope: env}
	hasClear, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if hasClear == 1 {
 obj, err := s.reg.DecodeObject(d, nil)
 if err != nil {
 return nil, err
 }
 clear, ok := obj.(*descriptor.Clear)
 if !ok {
 return nil, errType("*descriptor.Clear", obj)
 }
 r.ClearDescriptor = clear
	}
	if r.ClearTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	mode, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	r.Mode = ClearMode(mode)
	return r, nil
}

func registerResetIQ(reg *schema.Registry) {
	reg.Register(SchemaResetConversation, 1, resetConversationSerializer{reg: reg})
}
