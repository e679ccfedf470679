// Package iq implements the IQ (information/query) packet layer: request/response packets wrapping descriptors or sub-commands,
// all sharing the envelope {schemaId, schemaVersion, requestId}. A request
// IQ and its acknowledgement share the same requestId.
package iq

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/schema"
)

// Envelope holds the requestId every IQ carries. schemaId/schemaVersion
// are not duplicated here — they live in the schema.Key used to look the
// IQ's serialiser up, exactly as a descriptor's kind is resolved by its
// own schema.Key rather than a field on the struct.
type Envelope struct {
	RequestID int64
}

// Schema identifiers for every IQ type named here. Stable
// public contracts — never renumber an existing one.
var (
	SchemaPushObject = uuid.MustParse("c7e1f2b0-0001-4b9f-ad2b-000000000001")
	SchemaPushFile = uuid.MustParse("c7e1f2b0-0002-4b9f-ad2b-000000000002")
	SchemaPushTwincode = uuid.MustParse("c7e1f2b0-0003-4b9f-ad2b-000000000003")
	SchemaPushGeolocation = uuid.MustParse("c7e1f2b0-0004-4b9f-ad2b-000000000004")
	SchemaPushTransient = uuid.MustParse("c7e1f2b0-0005-4b9f-ad2b-000000000005")
	SchemaPushCommand = uuid.MustParse("c7e1f2b0-0006-4b9f-ad2b-000000000006")
	SchemaPushInvitation = uuid.MustParse("c7e1f2b0-0007-4b9f-ad2b-000000000007")

	SchemaUpdateGeolocation = uuid.MustParse("c7e1f2b0-0010-4b9f-ad2b-000000000010")
	SchemaUpdateTimestamp = uuid.MustParse("c7e1f2b0-0011-4b9f-ad2b-000000000011")
	SchemaUpdateDescriptor = uuid.MustParse("c7e1f2b0-0012-4b9f-ad2b-000000000012")
	SchemaUpdateAnnotation = uuid.MustParse("c7e1f2b0-0013-4b9f-ad2b-000000000013")
	SchemaUpdatePermissions = uuid.MustParse("c7e1f2b0-0014-4b9f-ad2b-000000000014")

	SchemaResetConversation = uuid.MustParse("c7e1f2b0-0020-4b9f-ad2b-000000000020")

	SchemaInviteGroup = uuid.MustParse("c7e1f2b0-0030-4b9f-ad2b-000000000030")
	SchemaJoinGroup = uuid.MustParse("c7e1f2b0-0031-4b9f-ad2b-000000000031")
	SchemaOnJoinGroup = uuid.MustParse("c7e1f2b0-0032-4b9f-ad2b-000000000032")

	SchemaPushFileChunk = uuid.MustParse("c7e1f2b0-0040-4b9f-ad2b-000000000040")
	SchemaOnPushFileChunk = uuid.MustParse("c7e1f2b0-0041-4b9f-ad2b-000000000041")
	SchemaPushThumbnail = uuid.MustParse("c7e1f2b0-0042-4b9f-ad2b-000000000042")

	SchemaSynchronize = uuid.MustParse("c7e1f2b0-0050-4b9f-ad2b-000000000050")
	SchemaOnSynchronize = uuid.MustParse("c7e1f2b0-0051-4b9f-ad2b-000000000051")

	// SchemaOnPush is the generic acknowledgement, used where no
	// operation-specific ack schema is registered. Per-operation typed
	// aliases (ack.go) share its wire shape but carry their own schemaId,
	// so a receiver can tell which request kind is being acknowledged
	// without consulting the in-flight table first.
	SchemaOnPush = uuid.MustParse("c7e1f2b0-0060-4b9f-ad2b-000000000060")
)

// writeEnvelope writes the requestId that prefixes every IQ body.
func writeEnvelope(e *codec.Encoder, env Envelope) { e.WriteLong(env.RequestID) }

func readEnvelope(d *codec.Decoder) (Envelope, error) {
	id, err := d.ReadLong()
	if err != nil {
 return Envelope{}, err
	}
	return Envelope{RequestID: id}, nil
}

func errType(want string, got any) error {
	return fmt.Errorf("%w: want %s, got %T", schema.ErrSerialization, want, got)
}
