package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/transport"
)

type fakeSender struct {
	mu sync.Mutex
	sent [][]byte
	stats map[string]int
}

func newFakeSender() *fakeSender { return &fakeSender{stats: make(map[string]int)} }

func (f *fakeSender) SendPacket(peerConnectionID string, stat transport.StatType, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}
func (f *fakeSender) SendMessage(peerConnectionID string, stat transport.StatType, bytes []byte) error {
	return nil
}
func (f *fakeSender) IncrementStat(peerConnectionID string, stat transport.StatType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[peerConnectionID]++
}

func openIncomingSide(c *Connection) {
	c.OfferIncoming()
	c.OnPeerConnectionID(true, "peer-1")
	c.OnDataChannelOpen(true, "peer-1", &transport.Version{Major: 2, Minor: 20}, false)
}

func TestOfferIncomingAdmission(t *testing.T) {
	c := New(newFakeSender(), nil, nil)

	if got := c.OfferIncoming(); got != AdmitAccepted {
 t.Fatalf("first offer = %v, want AdmitAccepted", got)
	}
	if c.State() != Creating {
 t.Fatalf("state = %v, want Creating", c.State())
	}

	// Second offer while the first is still CREATING (no openTimeout
	// armed yet) is rejected outright.
	if got := c.OfferIncoming(); got != AdmitRejected {
		t.Fatalf("second offer = %v, want AdmitRejected", got)
	}
}

func TestOfferIncomingUnknownWhileTimeoutPending(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	c.ScheduleOpenTimeout(time.Hour, func() {})

	if got := c.OfferIncoming(); got != AdmitUnknown {
 t.Fatalf("offer with pending timeout = %v, want AdmitUnknown", got)
	}
}

func TestStartOutgoingRequiresClosedOutgoing(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	if !c.StartOutgoing() {
 t.Fatal("StartOutgoing on a fresh connection should succeed")
	}
	if c.StartOutgoing() {
 t.Fatal("StartOutgoing while already CREATING should fail")
	}
}

func TestOpenTransitionsToOpenAndPublishesVersion(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	openIncomingSide(c)

	if c.State() != Open {
 t.Fatalf("state = %v, want Open", c.State())
	}
	if c.PeerConnectionID() != "peer-1" {
 t.Fatalf("peerConnectionId = %q", c.PeerConnectionID())
	}
	if !c.PeerSupports(2, 20) {
 t.Fatal("PeerSupports(2,20) should be true after handshake")
	}
	if c.PeerSupports(2, 21) {
 t.Fatal("PeerSupports(2,21) should be false")
	}
}

func TestCloseBothSidesClearsPeerConnectionAndFileTransfers(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	openIncomingSide(c)

	c.SendingFiles() // touch to ensure tables exist
	notified := make(chan struct{}, 1)
	c2 := New(newFakeSender(), nil, func() { notified <- struct{}{} })
	openIncomingSide(c2)
	c2.Close(true)

	select {
	case <-notified:
	case <-time.After(time.Second):
 t.Fatal("onBothClosed callback was not invoked")
	}
	if c2.PeerConnectionID() != "" {
 t.Errorf("peerConnectionId = %q, want empty after close", c2.PeerConnectionID())
	}
	if c2.SendingFiles().Len() != 0 || c2.ReceivingFiles().Len() != 0 {
 t.Error("file transfer tables should be empty after both sides close")
	}
}

func TestOpenPeerConnectionUnknownIDMakesNoChange(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	before := c.State()

	if c.OpenPeerConnection("does-not-exist") {
 t.Fatal("OpenPeerConnection on an id matching neither side should return false")
	}
	if c.State() != before {
 t.Fatalf("state changed from %v to %v", before, c.State())
	}
}

func TestAdjustPeerTimeClampsCorrection(t *testing.T) {
	c := New(newFakeSender(), nil, nil)

	// tc would be far beyond 1 hour; must clamp to -3_600_000.
	ok := c.AdjustPeerTime(0, 100, 10_000_000_000)
	if !ok {
 t.Fatal("AdjustPeerTime should accept a round trip within [0, 60s]")
	}
	if got := c.PeerTimeCorrection(); got != -3_600_000 {
 t.Errorf("peerTimeCorrection = %d, want -3600000", got)
	}
}

func TestAdjustPeerTimeRejectsOutOfRangeRoundTrip(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	if c.AdjustPeerTime(1000, 1000+61_000, 5000) {
 t.Fatal("round trip > 60s should be rejected")
	}
	if c.AdjustPeerTime(1000, 900, 5000) {
 t.Fatal("negative round trip should be rejected")
	}
}

func TestClockSkewHandshakeExample(t *testing.T) {
	// "Clock skew" scenario: startTime=1000, peerTime=5000,
	// now=1200 -> tp=200, tc=3900, peerTimeCorrection=-3900.
	c := New(newFakeSender(), nil, nil)
	if !c.AdjustPeerTime(1000, 1200, 5000) {
 t.Fatal("expected round trip to be accepted")
	}
	if got := c.PeerTimeCorrection(); got != -3900 {
 t.Errorf("peerTimeCorrection = %d, want -3900", got)
	}
	if got := c.EstimatedRTT(); got != 200 {
 t.Errorf("estimatedRTT = %d, want 200", got)
	}
}

func TestBestChunkSizeMonotoneNonIncreasing(t *testing.T) {
	c := New(newFakeSender(), nil, nil)

	c.UpdateRTT(300)
	c.UpdateRTT(300) // (0+300)/2 = 150, then (150+300)/2 = 225
	if got := c.BestChunkSize(); got != 64*1024 {
 t.Errorf("chunk size at rtt<=500 = %d, want 64KiB", got)
	}

	c2 := New(newFakeSender(), nil, nil)
	c2.estimatedRTT = 800
	if got := c2.BestChunkSize(); got != 32*1024 {
 t.Errorf("chunk size at rtt<=1000 = %d, want 32KiB", got)
	}

	c3 := New(newFakeSender(), nil, nil)
	c3.estimatedRTT = 1500
	if got := c3.BestChunkSize(); got != 16*1024 {
 t.Errorf("chunk size at rtt>1000 = %d, want 16KiB", got)
	}
}

func TestUpdateRTTIgnoresOutOfRangeMeasurements(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	c.estimatedRTT = 100
	c.UpdateRTT(-5)
	c.UpdateRTT(70_000)
	if got := c.EstimatedRTT(); got != 100 {
 t.Errorf("estimatedRTT = %d, want unchanged 100", got)
	}
}

func TestResponseVersionAppliesMinorWorkaround(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	c.peerMajorVersion, c.peerMinorVersion = 2, 14

	major, minor := c.ResponseVersion()
	if major != 2 || minor != 12 {
 t.Errorf("ResponseVersion = (%d,%d), want (2,12)", major, minor)
	}
}

func TestResponseVersionCapsAtMax(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	c.peerMajorVersion, c.peerMinorVersion = 9, 9

	major, minor := c.ResponseVersion()
	if major != MaxMajorVersion || minor != MaxMinorVersion {
 t.Errorf("ResponseVersion = (%d,%d), want (%d,%d)", major, minor, MaxMajorVersion, MaxMinorVersion)
	}
}

func TestInFlightResolvedOnce(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	requestID := c.NextRequestID()
	c.RegisterInFlight(requestID, nil)
	if c.InFlightLen() != 1 {
 t.Fatalf("InFlightLen = %d, want 1", c.InFlightLen())
	}

	if _, _, ok := c.ResolveInFlight(requestID); !ok {
 t.Fatal("ResolveInFlight should find the entry once")
	}
	if _, _, ok := c.ResolveInFlight(requestID); ok {
 t.Fatal("ResolveInFlight should not find the entry a second time")
	}
	if c.InFlightLen() != 0 {
 t.Errorf("InFlightLen = %d, want 0", c.InFlightLen())
	}
}

func TestPreparePushRejectsDeletedOrExpired(t *testing.T) {
	c := New(newFakeSender(), nil, nil)
	now := time.Now()

	deleted := &descriptor.Object{Base: descriptor.Base{DeleteTimestamp: 1}}
	if c.PreparePush(deleted, now) {
 t.Error("PreparePush should reject a deleted descriptor")
	}

	expired := &descriptor.Object{Base: descriptor.Base{
 CreatedTimestamp: now.Add(-time.Hour).UnixMilli(),
 ExpireTimeout: 1000,
	}}
	if c.PreparePush(expired, now) {
 t.Error("PreparePush should reject an expired descriptor")
	}

	fresh := &descriptor.Object{Base: descriptor.Base{CreatedTimestamp: now.UnixMilli()}}
	if !c.PreparePush(fresh, now) {
 t.Error("PreparePush should accept a live descriptor")
	}
	if fresh.SentTimestamp == 0 {
 t.Error("PreparePush should stamp SentTimestamp on first successful push")
	}
}

func TestTransferPeerConnectionMovesStateAndClosesSource(t *testing.T) {
	src := New(newFakeSender(), nil, nil)
	openIncomingSide(src)
	requestID := src.NextRequestID()
	src.RegisterInFlight(requestID, nil)

	dst := New(newFakeSender(), nil, nil)

	TransferPeerConnection(src, dst)

	if dst.PeerConnectionID() != "peer-1" {
 t.Errorf("dst.PeerConnectionID() = %q, want peer-1", dst.PeerConnectionID())
	}
	if dst.InFlightLen() != 1 {
 t.Errorf("dst.InFlightLen() = %d, want 1", dst.InFlightLen())
	}
	if src.State() != Closed {
 t.Errorf("src.State() = %v, want Closed", src.State())
	}
	if src.PeerConnectionID() != "" {
 t.Error("src.PeerConnectionID() should be cleared")
	}
	if src.InFlightLen() != 0 {
 t.Error("src in-flight table should be cleared")
	}
}
