package connection

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/crypto"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/filetransfer"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
)

type fakeCallbacks struct {
	popped []descriptor.Descriptor
	reads []descriptor.Id
	deletes []descriptor.Id
	fileInfo filetransfer.Info
	fileInfoOK bool
	fileChunks []int64
	joinAllow bool
	joinInfo *crypto.SignatureInfo
}

func (f *fakeCallbacks) OnPopDescriptor(conversationID int64, desc descriptor.Descriptor) {
	f.popped = append(f.popped, desc)
}
func (f *fakeCallbacks) OnReadDescriptor(conversationID int64, id descriptor.Id, timestamp int64) {
	f.reads = append(f.reads, id)
}
func (f *fakeCallbacks) OnDeleteDescriptor(conversationID int64, id descriptor.Id, timestamp int64, isPeerDelete bool) {
	f.deletes = append(f.deletes, id)
}
func (f *fakeCallbacks) OnUpdateDescriptor(conversationID int64, id descriptor.Id, u *iq.UpdateDescriptorIQ) {
}
func (f *fakeCallbacks) OnUpdateAnnotations(conversationID int64, id descriptor.Id, mode iq.AnnotationMode, entries map[uuid.UUID][]iq.Annotation) {
}
func (f *fakeCallbacks) OnUpdatePermissions(conversationID int64, twincodeID uuid.UUID, permissions uint32) {
}
func (f *fakeCallbacks) OnResetConversation(conversationID int64, clearTimestamp int64, mode iq.ClearMode, cleared *descriptor.Clear) {
}
func (f *fakeCallbacks) OnInviteGroup(conversationID int64, in *iq.InviteGroupIQ) {}
func (f *fakeCallbacks) OnJoinGroup(conversationID int64, groupTwincodeID uuid.UUID, inviter *crypto.SignatureInfo) (*crypto.SignatureInfo, bool) {
	return f.joinInfo, f.joinAllow
}
func (f *fakeCallbacks) OnFileChunk(conversationID int64, id descriptor.Id, newOffset int64) {
	f.fileChunks = append(f.fileChunks, newOffset)
}
func (f *fakeCallbacks) FileInfo(conversationID int64, id descriptor.Id, thumbnail bool) (filetransfer.Info, bool) {
	return f.fileInfo, f.fileInfoOK
}

var _ Callbacks = (*fakeCallbacks)(nil)

func newTestRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	descriptor.RegisterAll(reg)
	iq.RegisterIQs(reg)
	return reg
}

func encodeFrame(t *testing.T, reg *schema.Registry, key schema.Key, obj any, padded bool) []byte {
	t.Helper()
	e := codec.NewEncoder(padded)
	if err := reg.EncodeObject(e, key, obj); err != nil {
 t.Fatalf("EncodeObject: %v", err)
	}
	return e.Bytes()
}

func TestHandleFramePushDeliversAndAcks(t *testing.T) {
	reg := newTestRegistry()
	cb := &fakeCallbacks{}
	h := NewHandler(reg, cb, t.TempDir())
	sender := newFakeSender()
	conn := New(sender, nil, nil)
	openIncomingSide(conn)

	desc := &descriptor.Object{
 Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
 Message: "hello",
	}
	push := &iq.PushIQ{
 Envelope: iq.Envelope{RequestID: 42},
 PayloadKey: schema.Key{SchemaID: descriptor.SchemaObject, SchemaVersion: 2},
 Descriptor: desc,
	}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaPushObject, SchemaVersion: 5}, push, false)

	h.HandleFrame(conn, 7, frame)

	if len(cb.popped) != 1 {
 t.Fatalf("popped %d descriptors, want 1", len(cb.popped))
	}
	if h.InboundIQCount() != 1 {
 t.Errorf("InboundIQCount = %d, want 1", h.InboundIQCount())
	}
	if len(sender.sent) != 1 {
 t.Fatalf("sent %d frames (ack), want 1", len(sender.sent))
	}
}

func TestHandleFrameMalformedFrameDoesNotPanic(t *testing.T) {
	reg := newTestRegistry()
	cb := &fakeCallbacks{}
	h := NewHandler(reg, cb, t.TempDir())
	conn := New(newFakeSender(), nil, nil)
	openIncomingSide(conn)

	h.HandleFrame(conn, 1, []byte{0x01, 0x02})
	h.HandleFrame(conn, 1, nil)

	if len(cb.popped) != 0 {
 t.Errorf("popped %d descriptors from malformed frames, want 0", len(cb.popped))
	}
}

func TestHandleFramePushFileChunkUnknownDescriptorDropped(t *testing.T) {
	reg := newTestRegistry()
	cb := &fakeCallbacks{fileInfoOK: false}
	h := NewHandler(reg, cb, t.TempDir())
	sender := newFakeSender()
	conn := New(sender, nil, nil)
	openIncomingSide(conn)

	chunk := &iq.PushFileChunkIQ{
 Envelope: iq.Envelope{RequestID: 1},
 DescriptorID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1},
 ChunkStart: 0,
 Chunk: nil,
	}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaPushFileChunk, SchemaVersion: 1}, chunk, false)
	h.HandleFrame(conn, 1, frame)

	if len(cb.fileChunks) != 0 {
 t.Errorf("fileChunks = %v, want none recorded for an unknown descriptor", cb.fileChunks)
	}
	if len(sender.sent) != 0 {
 t.Errorf("sent %d frames, want 0 (no ack for a dropped chunk)", len(sender.sent))
	}
}

func TestHandleFramePushFileChunkKnownDescriptorWritesAndAcks(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry()
	cb := &fakeCallbacks{fileInfoOK: true, fileInfo: filetransfer.Info{Path: "f.bin", Length: 3}}
	h := NewHandler(reg, cb, dir)
	sender := newFakeSender()
	conn := New(sender, nil, nil)
	openIncomingSide(conn)

	descID := descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}
	first := &iq.PushFileChunkIQ{Envelope: iq.Envelope{RequestID: 1}, DescriptorID: descID, ChunkStart: 0, Chunk: nil}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaPushFileChunk, SchemaVersion: 1}, first, false)
	h.HandleFrame(conn, 1, frame)

	second := &iq.PushFileChunkIQ{Envelope: iq.Envelope{RequestID: 2}, DescriptorID: descID, ChunkStart: 0, Chunk: []byte{1, 2, 3}}
	frame2 := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaPushFileChunk, SchemaVersion: 1}, second, false)
	h.HandleFrame(conn, 1, frame2)

	if len(cb.fileChunks) != 2 {
 t.Fatalf("fileChunks = %v, want 2 entries", cb.fileChunks)
	}
	if cb.fileChunks[1] != 3 {
 t.Errorf("final offset = %d, want 3", cb.fileChunks[1])
	}
	if len(sender.sent) != 2 {
 t.Errorf("sent %d frames, want 2 acks", len(sender.sent))
	}
}

func TestHandleFrameSynchronizeRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	initiator := New(newFakeSender(), nil, nil)
	openIncomingSide(initiator)
	responder := New(newFakeSender(), nil, nil)
	openIncomingSide(responder)

	hInit := NewHandler(reg, &fakeCallbacks{}, t.TempDir())
	hResp := NewHandler(reg, &fakeCallbacks{}, t.TempDir())

	requestID := initiator.NextRequestID()
	initiator.RegisterInFlight(requestID, nil)
	sync := &iq.SynchronizeIQ{Envelope: iq.Envelope{RequestID: requestID}, Timestamp: time.Now().UnixMilli()}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaSynchronize, SchemaVersion: 1}, sync, false)

	// Responder decodes the request and sends back OnSynchronizeIQ
	// through its own sender; grab the bytes it produced and feed them
	// straight into the initiator's handler to complete the loop.
	responderSender := responder.sender.(*fakeSender)
	hResp.HandleFrame(responder, 1, frame)
	if len(responderSender.sent) != 1 {
 t.Fatalf("responder sent %d frames, want 1", len(responderSender.sent))
	}

	hInit.HandleFrame(initiator, 1, responderSender.sent[0])

	if initiator.InFlightLen() != 0 {
 t.Errorf("initiator in-flight table should be empty after the ack, has %d", initiator.InFlightLen())
	}
	if initiator.EstimatedRTT() < 0 {
 t.Errorf("EstimatedRTT = %d, want >= 0", initiator.EstimatedRTT())
	}
}

func TestHandleFrameDeleteNoticeClearsGeolocationOnlyWhenItMatches(t *testing.T) {
	reg := newTestRegistry()
	h := NewHandler(reg, &fakeCallbacks{}, t.TempDir())
	conn := New(newFakeSender(), nil, nil)
	openIncomingSide(conn)

	geoID := descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}
	geo := &descriptor.Geolocation{Base: descriptor.Base{ID: geoID}}
	push := &iq.PushIQ{
 Envelope: iq.Envelope{RequestID: 1},
 PayloadKey: schema.Key{SchemaID: descriptor.SchemaGeolocation, SchemaVersion: 3},
 Descriptor: geo,
	}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaPushGeolocation, SchemaVersion: 1}, push, false)
	h.HandleFrame(conn, 1, frame)
	if !conn.PeerGeolocationReceived() {
 t.Fatalf("PeerGeolocationReceived() = false after a geolocation push, want true")
	}

	unrelated := &iq.UpdateTimestampIQ{
 Envelope: iq.Envelope{RequestID: 2},
 DescriptorID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 9},
 Type: iq.TimestampDelete,
 Timestamp: 100,
	}
	frame = encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaUpdateTimestamp, SchemaVersion: 1}, unrelated, false)
	h.HandleFrame(conn, 1, frame)
	if !conn.PeerGeolocationReceived() {
 t.Fatalf("PeerGeolocationReceived() = false after an unrelated delete notice, want true (unchanged)")
	}

	matching := &iq.UpdateTimestampIQ{
 Envelope: iq.Envelope{RequestID: 3},
 DescriptorID: geoID,
 Type: iq.TimestampDelete,
 Timestamp: 200,
	}
	frame = encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaUpdateTimestamp, SchemaVersion: 1}, matching, false)
	h.HandleFrame(conn, 1, frame)
	if conn.PeerGeolocationReceived() {
 t.Fatalf("PeerGeolocationReceived() = true after the matching delete notice, want false")
	}
}

func TestHandleFrameOnPushMarksDescriptorReceived(t *testing.T) {
	reg := newTestRegistry()
	h := NewHandler(reg, &fakeCallbacks{}, t.TempDir())
	conn := New(newFakeSender(), nil, nil)
	openIncomingSide(conn)

	desc := &descriptor.Object{Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}}}
	requestID := conn.NextRequestID()
	conn.RegisterInFlight(requestID, desc)

	ack := &iq.OnPushIQ{Envelope: iq.Envelope{RequestID: requestID}, ReceivedTimestamp: 12345}
	frame := encodeFrame(t, reg, schema.Key{SchemaID: iq.SchemaOnPush, SchemaVersion: 1}, ack, false)
	h.HandleFrame(conn, 1, frame)

	if desc.ReceivedTimestamp != 12345 {
 t.Errorf("ReceivedTimestamp = %d, want 12345", desc.ReceivedTimestamp)
	}
	if conn.InFlightLen() != 0 {
 t.Errorf("InFlightLen = %d, want 0 after ack", conn.InFlightLen())
	}
}
