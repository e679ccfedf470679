package descriptor

import (
	"github.com/twinlife/conversation-engine/internal/codec"
)

// writeEnvelope writes the fields every descriptor version shares. This
// single function stands in for the deep inheritance chain of the
// original model: each version-specific body codec below calls it
// instead of extending an ancestor type.
func writeEnvelope(e *codec.Encoder, b *Base) {
	e.WriteLong(b.ID.SequenceID)
	e.WriteUUID(b.ID.TwincodeOutboundID)
	e.WriteLong(b.ConversationID)
	e.WriteOptionalUUID(b.SendTo)
	if b.ReplyTo != nil {
 e.WriteEnum(1)
 e.WriteLong(b.ReplyTo.SequenceID)
 e.WriteUUID(b.ReplyTo.TwincodeOutboundID)
	} else {
 e.WriteEnum(0)
	}
	e.WriteLong(b.CreatedTimestamp)
	e.WriteLong(b.ExpireTimeout)
	e.WriteInt(int32(b.Flags))
}

// readEnvelope is the inverse of writeEnvelope. localDatabaseId,
// sent/received/read/delete timestamps are never carried on the wire —
// they are local-only state re-attached by the caller after storage
// lookup.
func readEnvelope(d *codec.Decoder) (Base, error) {
	var b Base
	var err error
	if b.ID.SequenceID, err = d.ReadLong(); err != nil {
 return b, err
	}
	if b.ID.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return b, err
	}
	if b.ConversationID, err = d.ReadLong(); err != nil {
 return b, err
	}
	if b.SendTo, err = d.ReadOptionalUUID(); err != nil {
 return b, err
	}
	hasReplyTo, err := d.ReadEnum()
	if err != nil {
 return b, err
	}
	if hasReplyTo == 1 {
 var rt Id
 if rt.SequenceID, err = d.ReadLong(); err != nil {
 return b, err
 }
 if rt.TwincodeOutboundID, err = d.ReadUUID(); err != nil {
 return b, err
 }
 b.ReplyTo = &rt
	}
	if b.CreatedTimestamp, err = d.ReadLong(); err != nil {
 return b, err
	}
	if b.ExpireTimeout, err = d.ReadLong(); err != nil {
 return b, err
	}
	flags, err := d.ReadInt()
	if err != nil {
 return b, err
	}
	b.Flags = uint32(flags)
	return b, nil
}

// writeFileEnvelope writes the File-family fields shared by
// File/Image/Audio/Video/NamedFile, composed on top of writeEnvelope.
func writeFileEnvelope(e *codec.Encoder, f *File) {
	writeEnvelope(e, &f.Base)
	e.WriteString(f.Path)
	e.WriteString(f.Extension)
	e.WriteLong(f.Length)
	e.WriteLong(f.EndOffset)
	e.WriteBool(f.CopyAllowed)
	e.WriteBool(f.HasThumbnail)
}

func readFileEnvelope(d *codec.Decoder) (File, error) {
	var f File
	base, err := readEnvelope(d)
	if err != nil {
 return f, err
	}
	f.Base = base
	if f.Path, err = d.ReadString(); err != nil {
 return f, err
	}
	if f.Extension, err = d.ReadString(); err != nil {
 return f, err
	}
	if f.Length, err = d.ReadLong(); err != nil {
 return f, err
	}
	if f.EndOffset, err = d.ReadLong(); err != nil {
 return f, err
	}
	if f.CopyAllowed, err = d.ReadBool(); err != nil {
 return f, err
	}
	if f.HasThumbnail, err = d.ReadBool(); err != nil {
 return f, err
	}
	return f, nil
}
