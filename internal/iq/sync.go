package iq

import (
	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// SynchronizeIQ starts the clock-skew handshake. PeerTwincodeOutboundID and ResourceID identify which
// conversation endpoint is synchronizing, since a group conversation
// synchronizes one member at a time. Timestamp is the sender's local
// clock value at send time (startTime on the initiator's side).
type SynchronizeIQ struct {
	Envelope
	PeerTwincodeOutboundID uuid.UUID
	ResourceID uuid.UUID
	Timestamp int64
}

type synchronizeSerializer struct{}

func (synchronizeSerializer) Serialize(e *codec.Encoder, object any) error {
	s, ok := object.(*SynchronizeIQ)
	if !ok {
 return errType("*SynchronizeIQ", object)
	}
	writeEnvelope(e, s.Envelope)
	e.WriteUUID(s.PeerTwincodeOutboundID)
	e.WriteUUID(s.ResourceID)
	e.WriteLong(s.Timestamp)
	return nil
}

func (synchronizeSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	s := &SynchronizeIQ{Envelope: env}
	if s.PeerTwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if s.ResourceID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if s.Timestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return s, nil
}

// OnSynchronizeIQ returns the receiver's own clock (peerTime, the value
// the receiver measured at receipt) plus the timestamp it received from
// the initiator, echoed back so the initiator can compute tp = now -
// startTime.
type OnSynchronizeIQ struct {
	Envelope
	Timestamp int64
	SenderTimestamp int64
}

type onSynchronizeSerializer struct{}

func (onSynchronizeSerializer) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*OnSynchronizeIQ)
	if !ok {
 return errType("*OnSynchronizeIQ", object)
	}
	writeEnvelope(e, o.Envelope)
	e.WriteLong(o.Timestamp)
	e.WriteLong(o.SenderTimestamp)
	return nil
}

func (onSynchronizeSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &OnSynchronizeIQ{Envelope: env}
	if o.Timestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if o.SenderTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return o, nil
}

func registerSyncIQs(reg *schema.Registry) {
	reg.Register(SchemaSynchronize, 1, synchronizeSerializer{})
	reg.Register(SchemaOnSynchronize, 1, onSynchronizeSerializer{})
}

// ClockCorrection computes the clock-skew correction from a completed
// handshake round trip: tp is the round-trip time measured
// by the initiator, tc the raw skew estimate. A round trip outside
// [0, 60s] is unusable: ok is false and both other results are zero.
// Otherwise the correction is -tc, with tc clamped to ±1 hour.
func ClockCorrection(startTime, now, peerTime int64) (peerTimeCorrection, estimatedRTT int64, ok bool) {
	tp := now - startTime
	if tp < 0 || tp > 60_000 {
 return 0, 0, false
	}
	tc := peerTime - (startTime + tp/2)
	if tc > 3_600_000 {
 tc = 3_600_000
	} else if tc < -3_600_000 {
 tc = -3_600_000
	}
	return -tc, tp, true
}
