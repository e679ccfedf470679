package iq

import (
	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// OnPushIQ is the generic acknowledgement for every Push*IQ: the handler stamps ReceivedTimestamp=-1 when there was
// nothing to update (e.g. UpdateGeolocationIQ with no prior geolocation
// on file), otherwise the wall-clock time of receipt.
type OnPushIQ struct {
	Envelope
	DeviceState uint32
	ReceivedTimestamp int64
}

type onPushSerializer struct{}

func (onPushSerializer) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*OnPushIQ)
	if !ok {
 return errType("*OnPushIQ", object)
	}
	writeEnvelope(e, o.Envelope)
	e.WriteInt(int32(o.DeviceState))
	e.WriteLong(o.ReceivedTimestamp)
	return nil
}

func (onPushSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &OnPushIQ{Envelope: env}
	state, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	o.DeviceState = uint32(state)
	if o.ReceivedTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return o, nil
}

// Per-operation typed schema aliases: same wire shape as OnPushIQ, one
// schemaId per operation so the receiver can confirm exactly which
// request is being acknowledged without inspecting requestId against a
// side table.
var (
	SchemaOnPushObject = uuid.MustParse("c7e1f2b0-0061-4b9f-ad2b-000000000061")
	SchemaOnPushFile = uuid.MustParse("c7e1f2b0-0062-4b9f-ad2b-000000000062")
	SchemaOnPushTwincode = uuid.MustParse("c7e1f2b0-0063-4b9f-ad2b-000000000063")
	SchemaOnPushGeolocation = uuid.MustParse("c7e1f2b0-0064-4b9f-ad2b-000000000064")
	SchemaOnPushInvitation = uuid.MustParse("c7e1f2b0-0065-4b9f-ad2b-000000000065")
	SchemaOnUpdateDescriptor = uuid.MustParse("c7e1f2b0-0066-4b9f-ad2b-000000000066")
	SchemaOnResetConversation = uuid.MustParse("c7e1f2b0-0067-4b9f-ad2b-000000000067")
)

func registerAckIQs(reg *schema.Registry) {
	s := onPushSerializer{}
	reg.Register(SchemaOnPush, 1, s)
	reg.Register(SchemaOnPushObject, 1, s)
	reg.Register(SchemaOnPushFile, 1, s)
	reg.Register(SchemaOnPushTwincode, 1, s)
	reg.Register(SchemaOnPushGeolocation, 1, s)
	reg.Register(SchemaOnPushInvitation, 1, s)
	reg.Register(SchemaOnUpdateDescriptor, 1, s)
	reg.Register(SchemaOnResetConversation, 1, s)
}
