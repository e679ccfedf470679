package operation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
	"github.com/twinlife/conversation-engine/internal/transport"
)

type fakeConn struct {
	nextID int64
	prepareOK bool
	major int
	minor int
	padded bool
	sent [][]byte
	sendErr error
	inFlight map[int64]descriptor.Descriptor
}

func newFakeConn() *fakeConn {
	return &fakeConn{prepareOK: true, major: 2, minor: 20, inFlight: make(map[int64]descriptor.Descriptor)}
}

func (c *fakeConn) NextRequestID() int64 {
	c.nextID++
	return c.nextID
}
func (c *fakeConn) RegisterInFlight(requestID int64, desc descriptor.Descriptor) {
	c.inFlight[requestID] = desc
}
func (c *fakeConn) PreparePush(desc descriptor.Descriptor, now time.Time) bool { return c.prepareOK }
func (c *fakeConn) PeerSupports(major, minor int) bool {
	return c.major > major || (c.major == major && c.minor >= minor)
}
func (c *fakeConn) LeadingPadding() bool { return c.padded }
func (c *fakeConn) DeviceState() uint32 { return 1 }
func (c *fakeConn) SendPacket(stat transport.StatType, frame []byte) error {
	if c.sendErr != nil {
 return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

type fakeStore struct {
	descriptors map[int64]descriptor.Descriptor
}

func (s *fakeStore) LoadDescriptor(localID int64) (descriptor.Descriptor, error) {
	d, ok := s.descriptors[localID]
	if !ok {
 return nil, errors.New("not found")
	}
	return d, nil
}
func (s *fakeStore) SaveDescriptor(d descriptor.Descriptor) (int64, error) { return 0, nil }
func (s *fakeStore) SaveDescriptorTimestamps(int64, storage.DescriptorTimestamps) error {
	return nil
}
func (s *fakeStore) LoadAnnotations(int64) (map[uuid.UUID][]iq.Annotation, error) { return nil, nil }
func (s *fakeStore) SaveAnnotations(int64, map[uuid.UUID][]iq.Annotation) error { return nil }
func (s *fakeStore) LoadOperations() ([]storage.OperationRecord, error) { return nil, nil }
func (s *fakeStore) SaveOperation(storage.OperationRecord) (int64, error) { return 0, nil }
func (s *fakeStore) DeleteOperation(int64) error { return nil }

var _ storage.Store = (*fakeStore)(nil)

func newRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	descriptor.RegisterAll(reg)
	iq.RegisterIQs(reg)
	return reg
}

func TestExecutePushObjectQueued(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	desc := &descriptor.Object{
 Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
 Message: "hi",
	}
	op := &Operation{Type: TypePushObject, Descriptor: desc}

	code := op.Execute(conn, nil, reg, time.Now())
	if code != Queued {
 t.Fatalf("code = %v, want Queued", code)
	}
	if len(conn.sent) != 1 {
 t.Fatalf("sent %d frames, want 1", len(conn.sent))
	}
	if len(conn.inFlight) != 1 {
 t.Fatalf("inFlight has %d entries, want 1", len(conn.inFlight))
	}
}

func TestExecutePushObjectExpiredDescriptor(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	desc := &descriptor.Object{
 Base: descriptor.Base{
 ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1},
 CreatedTimestamp: 1000,
 ExpireTimeout: 10,
 },
	}
	op := &Operation{Type: TypePushObject, Descriptor: desc}

	code := op.Execute(conn, nil, reg, time.UnixMilli(1_000_000))
	if code != Expired {
 t.Fatalf("code = %v, want Expired", code)
	}
	if len(conn.sent) != 0 {
 t.Errorf("sent %d frames, want 0", len(conn.sent))
	}
}

func TestExecutePushTwincodeVersionDowngrade(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	conn.major, conn.minor = 2, 12 // below 2.18, at 2.12 → v2
	desc := &descriptor.Twincode{
 Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
 TwincodeID: uuid.New(),
	}
	op := &Operation{Type: TypePushTwincode, Descriptor: desc}

	code := op.Execute(conn, nil, reg, time.Now())
	if code != Queued {
 t.Fatalf("code = %v, want Queued", code)
	}
}

func TestExecutePushTwincodeUnsupportedPeer(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	conn.major, conn.minor = 2, 5
	desc := &descriptor.Twincode{
 Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
 TwincodeID: uuid.New(),
	}
	op := &Operation{Type: TypePushTwincode, Descriptor: desc}

	code := op.Execute(conn, nil, reg, time.Now())
	if code != FeatureNotSupportedByPeer {
 t.Fatalf("code = %v, want FeatureNotSupportedByPeer", code)
	}
}

func TestExecuteResetConversationMediaModeNoopBelowVersion(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	conn.major, conn.minor = 2, 10 // below 2.15

	op := &Operation{Type: TypeResetConversation, ClearMode: iq.ClearMedia}
	code := op.Execute(conn, nil, reg, time.Now())
	if code != Success {
 t.Fatalf("code = %v, want Success", code)
	}
	if len(conn.sent) != 0 {
 t.Errorf("sent %d frames, want 0 (silent no-op)", len(conn.sent))
	}
}

func TestExecuteTransportFailureStaysQueued(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	conn.sendErr = errors.New("peerConnectionId became null")
	desc := &descriptor.Object{
 Base: descriptor.Base{ID: descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 1}},
	}
	op := &Operation{Type: TypePushObject, Descriptor: desc}

	code := op.Execute(conn, nil, reg, time.Now())
	if code != Queued {
 t.Fatalf("code = %v, want Queued (TransientTransportFailure)", code)
	}
}

func TestExecuteInvokeAddMemberIsLocalOnly(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	op := &Operation{Type: TypeInvokeAddMember}
	code := op.Execute(conn, nil, reg, time.Now())
	if code != Success {
 t.Fatalf("code = %v, want Success", code)
	}
	if len(conn.sent) != 0 {
 t.Errorf("sent %d frames, want 0", len(conn.sent))
	}
}

func TestExecuteUpdateTimestampLoadsDescriptorFromStore(t *testing.T) {
	reg := newRegistry()
	conn := newFakeConn()
	id := descriptor.Id{TwincodeOutboundID: uuid.New(), SequenceID: 4}
	store := &fakeStore{descriptors: map[int64]descriptor.Descriptor{
 9: &descriptor.Object{Base: descriptor.Base{ID: id}, Message: "hi"},
	}}
	op := &Operation{
 Type: TypeUpdateDescriptorTimestamp,
 DescriptorLocalID: 9,
 TimestampType: iq.TimestampDelete,
 TimestampValue: 123,
	}

	code := op.Execute(conn, store, reg, time.Now())
	if code != Queued && code != Success {
 t.Fatalf("code = %v, want Queued or Success", code)
	}
	if len(conn.sent) != 1 {
 t.Fatalf("sent %d frames, want 1", len(conn.sent))
	}

	d, err := codec.NewDecoder(conn.sent[0], conn.padded)
	if err != nil {
 t.Fatalf("new decoder: %v", err)
	}
	got, err := reg.DecodeObject(d, nil)
	if err != nil {
 t.Fatalf("decode: %v", err)
	}
	body, ok := got.(*iq.UpdateTimestampIQ)
	if !ok {
 t.Fatalf("want *iq.UpdateTimestampIQ, got %T", got)
	}
	if body.DescriptorID.Key() != id.Key() {
 t.Fatalf("DescriptorID = %+v, want the id loaded from store (%+v)", body.DescriptorID, id)
	}
}
