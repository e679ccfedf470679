package iq

import (
	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// PushFileChunkIQ carries one chunk of a file transfer. Chunk is nil for
// a request that only asks the peer to confirm chunkStart, e.g. a resume
// probe after a reconnect.
type PushFileChunkIQ struct {
	Envelope
	DescriptorID descriptor.Id
	Timestamp int64
	ChunkStart int64
	Chunk []byte
}

type pushFileChunkSerializer struct{}

func (pushFileChunkSerializer) Serialize(e *codec.Encoder, object any) error {
	p, ok := object.(*PushFileChunkIQ)
	if !ok {
 return errType("*PushFileChunkIQ", object)
	}
	writeEnvelope(e, p.Envelope)
	e.WriteUUID(p.DescriptorID.TwincodeOutboundID)
	e.WriteLong(p.DescriptorID.SequenceID)
	e.WriteLong(p.Timestamp)
	e.WriteLong(p.ChunkStart)
	e.WriteOptionalBytes(p.Chunk)
	return nil
}

func (pushFileChunkSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	p := &PushFileChunkIQ{Envelope: env}
	if p.DescriptorID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if p.DescriptorID.SequenceID, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if p.Timestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if p.ChunkStart, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if p.Chunk, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	return p, nil
}

// OnPushFileChunkIQ acknowledges a chunk and tells the sender where to
// continue from: nextChunkStart may be less than chunkStart+len(chunk)
// when the receiver asks for a re-send.
type OnPushFileChunkIQ struct {
	Envelope
	DeviceState uint32
	ReceivedTimestamp int64
	SenderTimestamp int64
	NextChunkStart int64
}

type onPushFileChunkSerializer struct{}

func (onPushFileChunkSerializer) Serialize(e *codec.Encoder, object any) error {
	o, ok := object.(*OnPushFileChunkIQ)
	if !ok {
 return errType("*OnPushFileChunkIQ", object)
	}
	writeEnvelope(e, o.Envelope)
	e.WriteInt(int32(o.DeviceState))
	e.WriteLong(o.ReceivedTimestamp)
	e.WriteLong(o.SenderTimestamp)
	e.WriteLong(o.NextChunkStart)
	return nil
}

func (onPushFileChunkSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	o := &OnPushFileChunkIQ{Envelope: env}
	state, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	o.DeviceState = uint32(state)
	if o.ReceivedTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if o.SenderTimestamp, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if o.NextChunkStart, err = d.ReadLong(); err != nil {
 return nil, err
	}
	return o, nil
}

// PushThumbnailIQ carries one chunk of a file descriptor's thumbnail side
// channel. It has PushFileChunkIQ's shape without the timestamp, and is
// tracked in the connection's separate thumbnail table so a thumbnail
// transfer never collides with the main file transfer sharing the same
// descriptor.
type PushThumbnailIQ struct {
	Envelope
	DescriptorID descriptor.Id
	ChunkStart int64
	Chunk []byte
}

type pushThumbnailSerializer struct{}

func (pushThumbnailSerializer) Serialize(e *codec.Encoder, object any) error {
	p, ok := object.(*PushThumbnailIQ)
	if !ok {
 return errType("*PushThumbnailIQ", object)
	}
	writeEnvelope(e, p.Envelope)
	e.WriteUUID(p.DescriptorID.TwincodeOutboundID)
	e.WriteLong(p.DescriptorID.SequenceID)
	e.WriteLong(p.ChunkStart)
	e.WriteOptionalBytes(p.Chunk)
	return nil
}

func (pushThumbnailSerializer) Deserialize(d *codec.Decoder) (any, error) {
	env, err := readEnvelope(d)
	if err != nil {
 return nil, err
	}
	p := &PushThumbnailIQ{Envelope: env}
	if p.DescriptorID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return nil, err
	}
	if p.DescriptorID.SequenceID, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if p.ChunkStart, err = d.ReadLong(); err != nil {
 return nil, err
	}
	if p.Chunk, err = d.ReadOptionalBytes(); err != nil {
 return nil, err
	}
	return p, nil
}

func registerFileChunkIQs(reg *schema.Registry) {
	reg.Register(SchemaPushFileChunk, 1, pushFileChunkSerializer{})
	reg.Register(SchemaOnPushFileChunk, 1, onPushFileChunkSerializer{})
	reg.Register(SchemaPushThumbnail, 1, pushThumbnailSerializer{})
}
