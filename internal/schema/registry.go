// Package schema implements the (schemaId, schemaVersion) -> serialiser
// registry used by both descriptors and IQ packets. Every descriptor and
// IQ type registers one entry per wire version it supports; lookup happens
// once per inbound frame in the dispatch loop.
package schema

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
)

// Key identifies one (schemaId, schemaVersion) pair on the wire.
type Key struct {
	SchemaID uuid.UUID
	SchemaVersion int32
}

func (k Key) String() string {
	return fmt.Sprintf("%s/v%d", k.SchemaID, k.SchemaVersion)
}

// Serializer encodes and decodes the wire body for one Key. Object is
// always the concrete Go value the registry hands back to callers;
// serialisers type-assert it themselves rather than forcing a shared
// interface on every descriptor/IQ type.
type Serializer interface {
	Serialize(e *codec.Encoder, object any) error
	Deserialize(d *codec.Decoder) (any, error)
}

// Registry maps Key to Serializer. It is built once at startup by calling
// Register for every known (schemaId, schemaVersion) pair explicitly — no
// reflection.
type Registry struct {
	entries map[Key]Serializer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]Serializer)}
}

// Register binds a serialiser to a schema key. Registering the same key
// twice is a programmer error and panics immediately at startup, rather
// than silently shadowing the previous entry.
func (r *Registry) Register(schemaID uuid.UUID, version int32, s Serializer) {
	k := Key{SchemaID: schemaID, SchemaVersion: version}
	if _, exists := r.entries[k]; exists {
 panic(fmt.Sprintf("schema: duplicate registration for %s", k))
	}
	r.entries[k] = s
}

// Lookup returns the serialiser for a key, or false if unknown. An
// unknown key is not fatal — the caller logs a warning and drops the frame.
func (r *Registry) Lookup(k Key) (Serializer, bool) {
	s, ok := r.entries[k]
	return s, ok
}

// WriteHeader writes the (schemaId, schemaVersion) pair that must precede
// every self-describing body.
func WriteHeader(e *codec.Encoder, k Key) {
	e.WriteUUID(k.SchemaID)
	e.WriteInt(k.SchemaVersion)
}

// ReadHeader reads a (schemaId, schemaVersion) pair.
func ReadHeader(d *codec.Decoder) (Key, error) {
	id, err := d.ReadUUID()
	if err != nil {
 return Key{}, err
	}
	ver, err := d.ReadInt()
	if err != nil {
 return Key{}, err
	}
	return Key{SchemaID: id, SchemaVersion: ver}, nil
}

// DecodeObject reads a polymorphic inner-object header and body: the
// writer embeds (schemaId, schemaVersion) of the inner object before its
// bytes. allowed, if non-nil, restricts
// acceptance to a fixed set of schema IDs — used by ObjectDescriptor's
// message body, which must equal the well-known Message schema exactly.
func (r *Registry) DecodeObject(d *codec.Decoder, allowed map[uuid.UUID]struct{}) (any, error) {
	k, err := ReadHeader(d)
	if err != nil {
 return nil, err
	}
	if allowed != nil {
 if _, ok := allowed[k.SchemaID]; !ok {
 return nil, fmt.Errorf("%w: inner schema %s not permitted here", ErrSerialization, k.SchemaID)
 }
	}
	s, ok := r.Lookup(k)
	if !ok {
 slog.Warn("schema: unknown inner object schema, dropping", "key", k.String())
 return nil, fmt.Errorf("%w: unknown schema %s", ErrUnknownSchema, k.String())
	}
	return s.Deserialize(d)
}

// EncodeObject writes a polymorphic inner object: its (schemaId,
// schemaVersion) header followed by its body, so the reader can dispatch
// back to the right deserialiser.
func (r *Registry) EncodeObject(e *codec.Encoder, k Key, object any) error {
	s, ok := r.Lookup(k)
	if !ok {
 return fmt.Errorf("%w: unknown schema %s", ErrUnknownSchema, k.String())
	}
	WriteHeader(e, k)
	return s.Serialize(e, object)
}
