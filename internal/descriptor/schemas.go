package descriptor

import "github.com/google/uuid"

// Schema identifiers are stable public contracts: once
// assigned, an identifier's meaning must never change. Each descriptor
// kind owns one schemaId with independently-evolving versions.
var (
	SchemaObject = uuid.MustParse("b6d0e1a0-0001-4a8e-9c1a-000000000001")
	SchemaFile = uuid.MustParse("b6d0e1a0-0002-4a8e-9c1a-000000000002")
	SchemaImage = uuid.MustParse("b6d0e1a0-0003-4a8e-9c1a-000000000003")
	SchemaAudio = uuid.MustParse("b6d0e1a0-0004-4a8e-9c1a-000000000004")
	SchemaVideo = uuid.MustParse("b6d0e1a0-0005-4a8e-9c1a-000000000005")
	SchemaNamedFile = uuid.MustParse("b6d0e1a0-0006-4a8e-9c1a-000000000006")
	SchemaGeolocation = uuid.MustParse("b6d0e1a0-0007-4a8e-9c1a-000000000007")
	SchemaTwincode = uuid.MustParse("b6d0e1a0-0008-4a8e-9c1a-000000000008")
	SchemaInvitation = uuid.MustParse("b6d0e1a0-0009-4a8e-9c1a-000000000009")
	SchemaClear = uuid.MustParse("b6d0e1a0-000a-4a8e-9c1a-00000000000a")
	SchemaTransientObject = uuid.MustParse("b6d0e1a0-000b-4a8e-9c1a-00000000000b")

	// SchemaMessage is the well-known inner schema ObjectDescriptor's
	// polymorphic message body must equal exactly.
	SchemaMessage = uuid.MustParse("b6d0e1a0-0001-4a8e-9c1a-0000000000f1")
)
