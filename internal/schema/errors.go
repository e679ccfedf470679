package schema

import "errors"

// ErrUnknownSchema is returned (and logged, never propagated to the peer)
// when an inbound frame names a (schemaId, schemaVersion) the registry has
// no serialiser for. Policy: drop the frame silently.
var ErrUnknownSchema = errors.New("schema: unknown (schemaId, schemaVersion)")

// ErrSerialization covers malformed frames and polymorphic payloads whose
// inner schema does not match what the outer schema requires.
var ErrSerialization = errors.New("schema: serialization error")
