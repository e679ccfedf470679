// Package connection implements ConversationConnection:
// the per-peer, dual-direction state machine that owns version
// knowledge, clock correction, open file transfers and the in-flight
// request table an Operation sends through. ConversationHandler
// (handler.go) is the sole driver of its transport-facing transitions.
package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/assertpoint"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/filetransfer"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/operation"
	"github.com/twinlife/conversation-engine/internal/transport"
)

// State is one direction's position in the connection lifecycle.
type State int

const (
	Closed State = iota
	Creating
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
 return "CLOSED"
	case Creating:
 return "CREATING"
	case Opening:
 return "OPENING"
	case Open:
 return "OPEN"
	default:
 return "UNKNOWN"
	}
}

// DeviceState bits.
const (
	DeviceForeground uint32 = 1
	DeviceHasOperations uint32 = 2
	DeviceSynchronizeKeys uint32 = 4
	DeviceValid uint32 = 16
)

// MaxMajorVersion/MaxMinorVersion cap the protocol version this engine
// will ever send, regardless of what a peer claims to support.
const (
	MaxMajorVersion = 2
	MaxMinorVersion = 20
)

// ErrUnknownPeerConnection is the error TransferPeerConnection reports
// through the assertion channel when src and dst are the same connection.
// OpenPeerConnection does not return it; it reports failure as false.
var ErrUnknownPeerConnection = errors.New("connection: unknown peer connection id")

// Admission is the outcome of offering an incoming connection.
type Admission int

const (
	AdmitAccepted Admission = iota
	AdmitRejected
	AdmitUnknown
)

type inFlightEntry struct {
	desc descriptor.Descriptor
	sentAt int64 // unix millis, used to compute round trips (clock sync, RTT)
}

// Connection is one ConversationConnection: the per-(local conversation,
// remote peer) state machine. The zero value is not ready to use;
// construct with New.
type Connection struct {
	mu sync.Mutex

	sender transport.Sender
	assertions *assertpoint.Reporter

	incomingState State
	outgoingState State

	incomingPeerConnectionID string
	outgoingPeerConnectionID string
	peerConnectionID string // effective: whichever side opened

	peerMajorVersion int
	peerMinorVersion int

	peerTimeCorrection int64
	estimatedRTT int64

	leadingPadding bool

	deviceState uint32
	peerDeviceState uint32

	peerGeolocationReceived bool
	peerGeolocationID descriptor.Id

	requestID int64 // atomic counter, NextRequestID
	inFlight map[int64]inFlightEntry

	sendingFiles *filetransfer.Sender
	receivingFiles *filetransfer.Receiver
	sendingThumbnails *filetransfer.Sender
	receivingThumbnails *filetransfer.Receiver

	openTimeout *time.Timer

	accessedTime int64

	onBothClosed func()
}

// Connection implements operation.Connection: an Operation executes
// against this type directly.
var _ operation.Connection = (*Connection)(nil)

// New returns a Connection with both directions CLOSED, ready to accept
// an incoming offer or start an outgoing one. sender is the transport
// collaborator; onBothClosed fires once, synchronously,
// whenever both directions transition to CLOSED.
func New(sender transport.Sender, assertions *assertpoint.Reporter, onBothClosed func()) *Connection {
	if assertions == nil {
 assertions = assertpoint.New(nil)
	}
	return &Connection{
 sender: sender,
 assertions: assertions,
 inFlight: make(map[int64]inFlightEntry),
 sendingFiles: filetransfer.NewSender(),
 receivingFiles: filetransfer.NewReceiver(),
 sendingThumbnails: filetransfer.NewSender(),
 receivingThumbnails: filetransfer.NewReceiver(),
 deviceState: DeviceValid,
 onBothClosed: onBothClosed,
	}
}

// touch stamps accessedTime; caller must hold mu.
func (c *Connection) touch() { c.accessedTime = time.Now().UnixMilli() }

// Touch updates the idle-detection timestamp.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
}

// AccessedTime returns the last-touched time.
func (c *Connection) AccessedTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.accessedTime)
}

// State returns the derived overall connection state:
// prefer the non-CLOSED side; if both non-CLOSED, prefer incoming.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Connection) stateLocked() State {
	if c.incomingState != Closed {
 return c.incomingState
	}
	return c.outgoingState
}

// PeerConnectionID returns the effective peer connection id, or "" if
// neither side is open.
func (c *Connection) PeerConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerConnectionID
}

// OfferIncoming runs the admission check for an
// incoming offer and, on acceptance, transitions the incoming side to
// CREATING. Rejected if either direction is OPEN or CREATING; if a
// connection attempt is already in flight (openTimeout non-nil) the
// caller gets AdmitUnknown and may retry later.
func (c *Connection) OfferIncoming() Admission {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.incomingState == Open || c.incomingState == Creating ||
 c.outgoingState == Open || c.outgoingState == Creating {
 return AdmitRejected
	}
	if c.openTimeout != nil {
 return AdmitUnknown
	}
	c.incomingState = Creating
	c.touch()
	return AdmitAccepted
}

// StartOutgoing is permitted only if outgoing is CLOSED and incoming is
// either CLOSED or has no pending openTimeout. Returns
// false with no state change when not permitted.
func (c *Connection) StartOutgoing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outgoingState != Closed {
 return false
	}
	if c.incomingState != Closed && c.openTimeout != nil {
 return false
	}
	c.outgoingState = Creating
	c.touch()
	return true
}

// ScheduleOpenTimeout arms a timer that calls onTimeout after d unless
// the connection opens or closes first. Any previously scheduled timer
// is replaced.
func (c *Connection) ScheduleOpenTimeout(d time.Duration, onTimeout func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openTimeout != nil {
 c.openTimeout.Stop()
	}
	c.openTimeout = time.AfterFunc(d, onTimeout)
}

func (c *Connection) cancelOpenTimeoutLocked() {
	if c.openTimeout != nil {
 c.openTimeout.Stop()
 c.openTimeout = nil
	}
}

// OnPeerConnectionID records the id the transport assigned once it
// accepted our offer/request.
func (c *Connection) OnPeerConnectionID(incoming bool, peerConnectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if incoming {
 if c.incomingState != Creating {
 return
 }
 c.incomingState = Opening
 c.incomingPeerConnectionID = peerConnectionID
	} else {
 if c.outgoingState != Creating {
 return
 }
 c.outgoingState = Opening
 c.outgoingPeerConnectionID = peerConnectionID
	}
	c.touch()
}

// OnDataChannelOpen transitions the direction to OPEN:
// clears openTimeout, publishes the effective peerConnectionId and peer
// version, resets peerTimeCorrection/peerDeviceState, and touches the
// idle clock. peerVersion is nil when the peer did not announce one.
func (c *Connection) OnDataChannelOpen(incoming bool, peerConnectionID string, peerVersion *transport.Version, leadingPadding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if incoming {
 c.incomingState = Open
 c.incomingPeerConnectionID = peerConnectionID
	} else {
 c.outgoingState = Open
 c.outgoingPeerConnectionID = peerConnectionID
	}
	c.peerConnectionID = peerConnectionID
	c.leadingPadding = leadingPadding
	if peerVersion != nil {
 c.peerMajorVersion = peerVersion.Major
 c.peerMinorVersion = peerVersion.Minor
	}
	c.peerTimeCorrection = 0
	c.peerDeviceState = 0
	c.peerGeolocationReceived = false
	c.peerGeolocationID = descriptor.Id{}
	c.cancelOpenTimeoutLocked()
	c.touch()
}

// Close transitions one direction to CLOSED. When this call leaves both
// directions CLOSED, it cancels every in-flight file transfer, clears the
// in-flight request table and invokes onBothClosed exactly once; closing
// a connection whose directions were already both CLOSED does neither.
func (c *Connection) Close(incoming bool) {
	c.mu.Lock()
	wasBothClosed := c.incomingState == Closed && c.outgoingState == Closed

	if incoming {
 c.incomingState = Closed
 c.incomingPeerConnectionID = ""
	} else {
 c.outgoingState = Closed
 c.outgoingPeerConnectionID = ""
	}
	c.cancelOpenTimeoutLocked()

	bothClosed := !wasBothClosed && c.incomingState == Closed && c.outgoingState == Closed
	var notify func()
	if bothClosed {
 c.peerConnectionID = ""
 notify = c.onBothClosed
	}
	c.mu.Unlock()

	if bothClosed {
 c.cancelAllInFlight()
 c.sendingFiles.CancelAll()
 c.receivingFiles.CancelAll()
 c.sendingThumbnails.CancelAll()
 c.receivingThumbnails.CancelAll()
 if notify != nil {
 notify()
 }
	}
}

// OpenPeerConnection advances whichever direction is CREATING (incoming
// first) to OPENING and records id as that direction's peer connection
// id; used by a transport callback that only knows the id it was handed,
// not which direction requested it. id is not compared with any stored
// id, so any id advances a CREATING direction. Returns false and makes
// no state change when neither direction is CREATING.
func (c *Connection) OpenPeerConnection(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.incomingState == Creating:
 c.incomingState = Opening
 c.incomingPeerConnectionID = id
	case c.outgoingState == Creating:
 c.outgoingState = Opening
 c.outgoingPeerConnectionID = id
	default:
 return false
	}
	c.touch()
	return true
}

// AdjustPeerTime runs the clock-skew computation and
// stores the result. now is the local clock at the moment the ack
// arrived. Returns false (no state change) when the round trip is
// unusable.
func (c *Connection) AdjustPeerTime(startTime, now, peerTime int64) bool {
	correction, rtt, ok := iq.ClockCorrection(startTime, now, peerTime)
	if !ok {
 return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerTimeCorrection = correction
	c.estimatedRTT = rtt
	return true
}

// UpdateRTT folds a new RTT measurement into the running estimate:
// estimatedRTT = (estimatedRTT + measurement) / 2, ignoring out-of-range
// samples.
func (c *Connection) UpdateRTT(measurement int64) {
	if measurement < 0 || measurement > 60_000 {
 return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimatedRTT = (c.estimatedRTT + measurement) / 2
}

// EstimatedRTT returns the current RTT estimate in milliseconds.
func (c *Connection) EstimatedRTT() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimatedRTT
}

// PeerTimeCorrection returns the signed correction applied to peer
// timestamps that need adjusting.
func (c *Connection) PeerTimeCorrection() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTimeCorrection
}

// AdjustedPeerTimestamp applies the stored correction to a timestamp
// read from the peer.
func (c *Connection) AdjustedPeerTimestamp(peerTS int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return peerTS + c.peerTimeCorrection
}

// BestChunkSize returns the adaptive file-transfer chunk size,
// monotone-non-increasing in estimatedRTT.
func (c *Connection) BestChunkSize() int {
	rtt := c.EstimatedRTT()
	switch {
	case rtt <= 500:
 return 64 * 1024
	case rtt <= 1000:
 return 32 * 1024
	default:
 return 16 * 1024
	}
}

// minorWorkaround rewrites a response minor version for known broken
// peer ranges: major=2, minor in [13,15] is rewritten
// down to 12 to avoid a peer bug in that range.
func minorWorkaround(major, minor int) int {
	if major == 2 && minor >= 13 && minor <= 15 {
 return 12
	}
	return minor
}

// ResponseVersion caps the version this connection will claim in a
// response by min(peer, Max), with the documented minor-range
// workaround.
func (c *Connection) ResponseVersion() (int, int) {
	c.mu.Lock()
	major, minor := c.peerMajorVersion, c.peerMinorVersion
	c.mu.Unlock()

	if major > MaxMajorVersion || (major == MaxMajorVersion && minor > MaxMinorVersion) {
 major, minor = MaxMajorVersion, MaxMinorVersion
	}
	return major, minorWorkaround(major, minor)
}

// PeerSupports reports whether the negotiated peer version is at least
// (major, minor).
func (c *Connection) PeerSupports(major, minor int) bool {
	c.mu.Lock()
	pMajor, pMinor := c.peerMajorVersion, c.peerMinorVersion
	c.mu.Unlock()

	if pMajor != major {
 return pMajor > major
	}
	return pMinor >= minor
}

// LeadingPadding reports which codec framing variant this connection's
// transport expects.
func (c *Connection) LeadingPadding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leadingPadding
}

// DeviceState returns the local device-state bitmask advertised in acks.
func (c *Connection) DeviceState() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceState
}

// SetDeviceState replaces the local device-state bitmask, e.g. when the
// application moves to/from the foreground.
func (c *Connection) SetDeviceState(state uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceState = state
}

// PeerDeviceState returns the peer's last-announced device state.
func (c *Connection) PeerDeviceState() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerDeviceState
}

func (c *Connection) setPeerDeviceState(state uint32) {
	c.mu.Lock()
	c.peerDeviceState = state
	c.mu.Unlock()
}

// NextRequestID allocates a fresh request id.
func (c *Connection) NextRequestID() int64 {
	return atomic.AddInt64(&c.requestID, 1)
}

// RegisterInFlight records a request awaiting an ack, along with the
// send time it needs for RTT/clock-sync bookkeeping.
func (c *Connection) RegisterInFlight(requestID int64, desc descriptor.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[requestID] = inFlightEntry{desc: desc, sentAt: time.Now().UnixMilli()}
}

// ResolveInFlight removes and returns the entry for requestID, the
// descriptor it was tracking (possibly nil) and whether it was present.
// After this call the table never contains requestID again.
func (c *Connection) ResolveInFlight(requestID int64) (descriptor.Descriptor, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.inFlight[requestID]
	if !ok {
 return nil, 0, false
	}
	delete(c.inFlight, requestID)
	return e.desc, e.sentAt, true
}

// InFlightLen reports how many requests are awaiting an ack, for tests.
func (c *Connection) InFlightLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// cancelAllInFlight clears the in-flight table without invoking any
// callback, used on close.
func (c *Connection) cancelAllInFlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = make(map[int64]inFlightEntry)
}

// PreparePush gates an outbound descriptor push, returning false once the
// descriptor is deleted or expired, otherwise stamping sentTimestamp on
// first successful push.
func (c *Connection) PreparePush(desc descriptor.Descriptor, now time.Time) bool {
	env := desc.Envelope()
	if env.Deleted() || env.Expired(now) {
 return false
	}
	descriptor.MarkSent(desc, now)
	return true
}

// PeerGeolocationReceived reports whether any geolocation descriptor has
// ever been received from this peer.
func (c *Connection) PeerGeolocationReceived() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerGeolocationReceived
}

func (c *Connection) markPeerGeolocationReceived(id descriptor.Id) {
	c.mu.Lock()
	c.peerGeolocationReceived = true
	c.peerGeolocationID = id
	c.mu.Unlock()
}

// clearPeerGeolocationIfMatches resets the "have we ever received one" flag,
// but only when id names the descriptor currently tracked as the peer's
// geolocation — a DELETE timestamp update for an unrelated descriptor must
// leave the flag untouched.
func (c *Connection) clearPeerGeolocationIfMatches(id descriptor.Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerGeolocationReceived && c.peerGeolocationID.Key() == id.Key() {
 c.peerGeolocationReceived = false
	}
}

// SendingFiles / ReceivingFiles expose the file-transfer tables to the
// handler; thumbnails get their own pair of tables so a
// thumbnail transfer never collides with the main file transfer sharing
// the same descriptor.
func (c *Connection) SendingFiles() *filetransfer.Sender { return c.sendingFiles }
func (c *Connection) ReceivingFiles() *filetransfer.Receiver { return c.receivingFiles }
func (c *Connection) SendingThumbnails() *filetransfer.Sender { return c.sendingThumbnails }
func (c *Connection) ReceivingThumbnails() *filetransfer.Receiver { return c.receivingThumbnails }

// SendPacket hands a framed IQ to the transport. A
// connection with no effective peerConnectionId reports
// TransientTransportFailure by returning an error; the
// caller (Operation) keeps the send QUEUED for retry.
func (c *Connection) SendPacket(stat transport.StatType, frame []byte) error {
	c.mu.Lock()
	peerConnectionID := c.peerConnectionID
	c.mu.Unlock()

	if peerConnectionID == "" {
 return fmt.Errorf("connection: no open peer connection")
	}
	return c.sender.SendPacket(peerConnectionID, stat, frame)
}

// SendMessage hands already-serialised bytes to the transport with no
// IQ framing.
func (c *Connection) SendMessage(stat transport.StatType, bytes []byte) error {
	c.mu.Lock()
	peerConnectionID := c.peerConnectionID
	c.mu.Unlock()

	if peerConnectionID == "" {
 return fmt.Errorf("connection: no open peer connection")
	}
	return c.sender.SendMessage(peerConnectionID, stat, bytes)
}

// IncrementStat forwards the counter hook to the transport for whichever
// peer connection is currently effective; a no-op when none is.
func (c *Connection) IncrementStat(stat transport.StatType) {
	c.mu.Lock()
	peerConnectionID := c.peerConnectionID
	c.mu.Unlock()
	if peerConnectionID == "" {
 return
	}
	c.sender.IncrementStat(peerConnectionID, stat)
}

// TransferPeerConnection moves every piece of negotiated state from src
// to dst and closes src. Both mutexes are acquired in a fixed order:
// this function is the only place the transfer happens, and it always
// acquires src then dst, so no two callers can ever take them in the
// opposite order.
func TransferPeerConnection(src, dst *Connection) {
	if src == dst {
 src.assertions.Fire("connection.transferPeerConnection.selfTransfer", ErrUnknownPeerConnection, nil)
 return
	}

	src.mu.Lock()
	dst.mu.Lock()

	dst.incomingState = src.incomingState
	dst.outgoingState = src.outgoingState
	dst.incomingPeerConnectionID = src.incomingPeerConnectionID
	dst.outgoingPeerConnectionID = src.outgoingPeerConnectionID
	dst.peerConnectionID = src.peerConnectionID
	dst.peerMajorVersion = src.peerMajorVersion
	dst.peerMinorVersion = src.peerMinorVersion
	dst.peerTimeCorrection = src.peerTimeCorrection
	dst.estimatedRTT = src.estimatedRTT
	dst.leadingPadding = src.leadingPadding
	dst.deviceState = src.deviceState
	dst.peerDeviceState = src.peerDeviceState
	dst.peerGeolocationReceived = src.peerGeolocationReceived
	dst.peerGeolocationID = src.peerGeolocationID
	dst.inFlight = src.inFlight
	dst.accessedTime = src.accessedTime

	src.incomingState = Closed
	src.outgoingState = Closed
	src.incomingPeerConnectionID = ""
	src.outgoingPeerConnectionID = ""
	src.peerConnectionID = ""
	src.inFlight = make(map[int64]inFlightEntry)
	src.cancelOpenTimeoutLocked()

	dst.mu.Unlock()
	src.mu.Unlock()

	slog.Debug("connection: transferred peer connection", "peerConnectionId", dst.peerConnectionID)
}

// NewPeerConnectionID generates a fresh 128-bit peer connection id. The
// transport is free to hand back its own id instead; this helper exists
// for callers (tests, a simple in-process transport) that need to mint
// one.
func NewPeerConnectionID() string {
	return uuid.NewString()
}
