package iq

import (
	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/crypto"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// SignatureInfo is the wire alias of crypto.SignatureInfo: group IQs carry
// exactly the fields the crypto contract produces and verifies, so the IQ layer reuses that type rather than shadowing it.
type SignatureInfo = crypto.SignatureInfo

func writeSignatureInfo(e *codec.Encoder, s *SignatureInfo) {
	e.WriteUUID(s.TwincodeOutboundID)
	e.WriteOptionalBytes(s.PublicKey)
	e.WriteOptionalBytes(s.Secret)
	e.WriteOptionalBytes(s.Salt)
	e.WriteOptionalBytes(s.Signature)
}

func readSignatureInfo(d *codec.Decoder) (*SignatureInfo, error) {
	var s SignatureInfo
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

func writeOptionalSignatureInfo(e *codec.Encoder, s *SignatureInfo) {
	if s == nil {
 e.WriteEnum(0)
 return
	}
	e.WriteEnum(1)
	writeSignatureInfo(e, s)
}

func readOptionalSignatureInfo(d *codec.Decoder) (*SignatureInfo, error) {
	present, err := d.ReadEnum()
	if err != nil {
 return nil, err
	}
	if present == 0 {
 return nil, nil
	}
	return readSignatureInfo(d)
}

// InviteGroupIQ proposes membership of GroupTwincodeID to MemberTwincodeID
// with the permissions the inviter intends to grant.
type InviteGroupIQ struct {
	Envelope
	GroupTwincodeID uuid.UUID
	MemberTwincodeID uuid.UUID
	JoinPermissions uint32
	InviterInfo *SignatureInfo
}

type inviteGroupSerializer struct{}

func (inviteGroupSerializer) Serialize(e *codec.Encoder, object any) error {
	i, ok := object.(*InviteGroupIQ)
	if !ok {
 return errType("*InviteGroupIQ", object)
	}
	writeEnvelope(e, i.Envelope)
	e.WriteUUID(i.GroupTwincodeID)
	e.WriteUUID(i.MemberTwincodeID)
	e.WriteInt(int32(i.JoinPermissions))
	writeOptionalSignatureInfo(e, i.InviterInfo)
	return nil
}

func (inviteGroupSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	i := &InviteGroupIQ{Envelope: env}
	if i.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if i.MemberTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	perms, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	i.JoinPermissions = uint32(perms)
	if i.InviterInfo, err = readOptionalSignatureInfo(d); err != nil {
 return nil, err
	}
	return i, nil
}

// JoinGroupIQ requests to join GroupTwincodeID. InviterInfo is nil when
// the joiner has no signature material to present — the v2 ack-with-no-
// signature scenario.
type JoinGroupIQ struct {
	Envelope
	GroupTwincodeID uuid.UUID
	InviterInfo *SignatureInfo
}

type joinGroupSerializer struct{}

func (joinGroupSerializer) Serialize(e *codec.Encoder, object any) error {
	j, ok := object.(*JoinGroupIQ)
	if !ok {
 return errType("*JoinGroupIQ", object)
	}
	writeEnvelope(e, j.Envelope)
	e.WriteUUID(j.GroupTwincodeID)
	writeOptionalSignatureInfo(e, j.InviterInfo)
	return nil
}

func (joinGroupSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	j := &JoinGroupIQ{Envelope: env}
	if j.GroupTwincodeID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if j.InviterInfo, err = readOptionalSignatureInfo(d); err != nil {
 return nil, err
	}
	return j, nil
}

// OnJoinGroupIQ acknowledges a JoinGroupIQ. Success carries the group's
// own signature material back; a failed join (no signature available, or
// the group rejected the request) carries none and Success=false.
type OnJoinGroupIQ struct {
	Envelope
	DeviceState uint32
	Success bool
	GroupInfo *SignatureInfo
}

// OnJoinGroupFail builds the failure ack used when no signature material
// is available.
func OnJoinGroupFail(requestID int64, deviceState uint32) *OnJoinGroupIQ {
	return &OnJoinGroupIQ{Envelope: Envelope{RequestID: requestID}, DeviceState: deviceState}
}

type onJoinGroupSerializer struct{}

func (onJoinGroupSerializer) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*OnJoinGroupIQ)
	if !ok {
 return errType("*OnJoinGroupIQ", object)
	}
	writeEnvelope(e, o.Envelope)
	e.WriteInt(int32(o.DeviceState))
	e.WriteBool(o.Success)
	writeOptionalSignatureInfo(e, o.GroupInfo)
	return nil
}

func (onJoinGroupSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &OnJoinGroupIQ{Envelope: env}
	state, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	o.DeviceState = uint32(state)
	if o.Success, err = d.ReadBool(); err != nil {
 return nil, err
	}
	if o.GroupInfo, err = readOptionalSignatureInfo(d); err != nil {
 return nil, err
	}
	return o, nil
}

func registerGroupIQs(reg *schema.Registry) {
	reg.Register(SchemaInviteGroup, 1, inviteGroupSerializer{})
	reg.Register(SchemaJoinGroup, 2, joinGroupSerializer{})
	reg.Register(SchemaOnJoinGroup, 1, onJoinGroupSerializer{})
}
