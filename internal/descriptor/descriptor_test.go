package descriptor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/schema"
)

func roundTrip(t *testing.T, reg *schema.Registry, key schema.Key, object any) any {
	t.Helper()
	e := codec.NewEncoder(false)
	if err := reg.EncodeObject(e, key, object); err != nil {
 t.Fatalf("encode: %v", err)
	}
	d, err := codec.NewDecoder(e.Bytes(), false)
	if err != nil {
 t.Fatalf("new decoder: %v", err)
	}
	got, err := reg.DecodeObject(d, nil)
	if err != nil {
 t.Fatalf("decode: %v", err)
	}
	return got
}

func TestObjectRoundTrip(t *testing.T) {
	reg := schema.NewRegistry()
	RegisterAll(reg)

	o := &Object{
 Base: Base{
 ID: Id{TwincodeOutboundID: uuid.New(), SequenceID: 42},
 ConversationID: 7,
 CreatedTimestamp: time.Now().UnixMilli(),
 },
 Message: "hello",
 CopyAllowed: true,
 Edited: false,
	}

	got := roundTrip(t, reg, schema.Key{SchemaID: SchemaObject, SchemaVersion: 2}, o)
	back, ok := got.(*Object)
	if !ok {
 t.Fatalf("want *Object, got %T", got)
	}
	if back.Message != o.Message || back.CopyAllowed != o.CopyAllowed {
 t.Fatalf("round trip mismatch: got %+v, want %+v", back, o)
	}
	if back.ID.Key() != o.ID.Key() {
 t.Fatalf("id mismatch: got %+v, want %+v", back.ID, o.ID)
	}
}

func TestObjectRejectsInnerSchemaOtherThanMessage(t *testing.T) {
	reg := schema.NewRegistry()
	RegisterAll(reg)

	e := codec.NewEncoder(false)
	writeEnvelope(e, &Base{ID: Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}})
	schema.WriteHeader(e, schema.Key{SchemaID: SchemaClear, SchemaVersion: 1})

	d, err := codec.NewDecoder(e.Bytes(), false)
	if err != nil {
 t.Fatalf("new decoder: %v", err)
	}
	_, err = objectSerializerV2{reg: reg}.Deserialize(d)
	if !errors.Is(err, schema.ErrSerialization) {
 t.Fatalf("expected ErrSerialization for mismatched inner schema, got %v", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	reg := schema.NewRegistry()
	RegisterAll(reg)

	img := &Image{
 File: File{
 Base: Base{ID: Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
 Path: "pic.jpg",
 Extension: "jpg",
 Length: 100000,
 EndOffset: 100000,
 HasThumbnail: true,
 },
 Width: 640,
 Height: 480,
	}

	got := roundTrip(t, reg, schema.Key{SchemaID: SchemaImage, SchemaVersion: 4}, img)
	back, ok := got.(*Image)
	if !ok {
 t.Fatalf("want *Image, got %T", got)
	}
	if back.Width != img.Width || back.Height != img.Height || back.Length != img.Length {
 t.Fatalf("round trip mismatch: got %+v, want %+v", back, img)
	}
}

func TestGeolocationRoundTrip(t *testing.T) {
	reg := schema.NewRegistry()
	RegisterAll(reg)

	g := &Geolocation{
 Base: Base{ID: Id{TwincodeOutboundID: uuid.New()}},
 Longitude: 2.35,
 Latitude: 48.85,
 Altitude: 35,
 MapLongitudeDelta: 0.01,
 MapLatitudeDelta: 0.02,
	}

	got := roundTrip(t, reg, schema.Key{SchemaID: SchemaGeolocation, SchemaVersion: 3}, g)
	back := got.(*Geolocation)
	if back.Latitude != g.Latitude || back.Longitude != g.Longitude || back.Altitude != g.Altitude {
 t.Fatalf("round trip mismatch: got %+v, want %+v", back, g)
	}
}

func TestGeolocationUpdateAssignsLatitudeFromLatitude(t *testing.T) {
	g := &Geolocation{Latitude: 1, Longitude: 2, Altitude: 3}
	other := &Geolocation{Latitude: 10, Longitude: 20, Altitude: 30}
	g.Update(other)
	if g.Latitude != 10 {
 t.Fatalf("expected latitude to update from other.Latitude, got %v", g.Latitude)
	}
	if g.Altitude != 30 {
 t.Fatalf("expected altitude to update from other.Altitude, got %v", g.Altitude)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	b := &Base{CreatedTimestamp: now.Add(-time.Hour).UnixMilli(), ExpireTimeout: 1000}
	if !b.Expired(now) {
 t.Fatalf("expected descriptor to be expired")
	}

	b2 := &Base{CreatedTimestamp: now.UnixMilli(), ExpireTimeout: 0}
	if b2.Expired(now) {
 t.Fatalf("expireTimeout=0 must never expire")
	}
}

func TestTransientObjectRoundTrip(t *testing.T) {
	reg := schema.NewRegistry()
	RegisterAll(reg)

	inner := &Object{
 Base: Base{ID: Id{TwincodeOutboundID: uuid.New(), SequenceID: 5}},
 Message: "command payload",
	}
	to := &TransientObject{
 Base: Base{ID: Id{TwincodeOutboundID: uuid.New()}},
 PayloadSchema: schema.Key{SchemaID: SchemaObject, SchemaVersion: 2},
 Payload: inner,
	}

	got := roundTrip(t, reg, schema.Key{SchemaID: SchemaTransientObject, SchemaVersion: 1}, to)
	back, ok := got.(*TransientObject)
	if !ok {
 t.Fatalf("want *TransientObject, got %T", got)
	}
	payload, ok := back.Payload.(*Object)
	if !ok {
 t.Fatalf("want payload *Object, got %T", back.Payload)
	}
	if payload.Message != inner.Message {
 t.Fatalf("payload mismatch: got %q want %q", payload.Message, inner.Message)
	}
}
