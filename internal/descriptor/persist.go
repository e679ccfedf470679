package descriptor

import (
	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/schema"
)

// latestVersion pins, per Kind, the schema version storage writes new rows
// with — the highest version RegisterAll wires up.
var latestVersion = map[Kind]int32{
	KindObject: 2,
	KindFile: 2,
	KindImage: 4,
	KindAudio: 4,
	KindVideo: 4,
	KindNamedFile: 4,
	KindGeolocation: 3,
	KindTwincode: 3,
	KindInvitation: 1,
	KindClear: 1,
	KindTransientObject: 1,
}

var schemaIDByKind = map[Kind]uuid.UUID{
	KindObject: SchemaObject,
	KindFile: SchemaFile,
	KindImage: SchemaImage,
	KindAudio: SchemaAudio,
	KindVideo: SchemaVideo,
	KindNamedFile: SchemaNamedFile,
	KindGeolocation: SchemaGeolocation,
	KindTwincode: SchemaTwincode,
	KindInvitation: SchemaInvitation,
	KindClear: SchemaClear,
	KindTransientObject: SchemaTransientObject,
}

// LatestKey returns the schema.Key storage should use to persist a
// descriptor of the given kind, i.e. the newest version RegisterAll
// registers for it.
func LatestKey(kind Kind) (schema.Key, bool) {
	id, ok := schemaIDByKind[kind]
	if !ok {
 return schema.Key{}, false
	}
	v, ok := latestVersion[kind]
	if !ok {
 return schema.Key{}, false
	}
	return schema.Key{SchemaID: id, SchemaVersion: v}, true
}
