package connection

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/crypto"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/filetransfer"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/transport"
)

// Callbacks is the application-level surface a ConversationHandler
// drives as it demultiplexes inbound IQs: delivering
// descriptors, reporting read/delete notices, answering group-join
// requests, and so on. A host wires one implementation per conversation
// (or shares one across conversations, keyed by the conversationID the
// handler passes through).
type Callbacks interface {
	// OnPopDescriptor delivers a freshly received descriptor, already
	// stamped with ReceivedTimestamp.
	OnPopDescriptor(conversationID int64, desc descriptor.Descriptor)

	// OnReadDescriptor reports that the peer marked id as read.
	OnReadDescriptor(conversationID int64, id descriptor.Id, timestamp int64)

	// OnDeleteDescriptor reports a local or peer-side delete notice.
	OnDeleteDescriptor(conversationID int64, id descriptor.Id, timestamp int64, isPeerDelete bool)

	// OnUpdateDescriptor reports an in-place edit to an existing descriptor.
	OnUpdateDescriptor(conversationID int64, id descriptor.Id, u *iq.UpdateDescriptorIQ)

	// OnUpdateAnnotations reports a bulk annotation change.
	OnUpdateAnnotations(conversationID int64, id descriptor.Id, mode iq.AnnotationMode, entries map[uuid.UUID][]iq.Annotation)

	// OnUpdatePermissions reports a peer-granted permissions change.
	OnUpdatePermissions(conversationID int64, twincodeID uuid.UUID, permissions uint32)

	// OnResetConversation reports an inbound conversation reset.
	OnResetConversation(conversationID int64, clearTimestamp int64, mode iq.ClearMode, cleared *descriptor.Clear)

	// OnInviteGroup reports an inbound group invitation.
	OnInviteGroup(conversationID int64, in *iq.InviteGroupIQ)

	// OnJoinGroup asks the application to admit a join request; ok=false
	// means no signature material is available locally, which the
	// handler turns into OnJoinGroupFail.
	OnJoinGroup(conversationID int64, groupTwincodeID uuid.UUID, inviter *crypto.SignatureInfo) (info *crypto.SignatureInfo, ok bool)

	// OnFileChunk delivers one received chunk's resulting offset.
	OnFileChunk(conversationID int64, id descriptor.Id, newOffset int64)

	// FileInfo resolves the on-disk path and declared length for a file
	// transfer identified by its descriptor id, so the receiver knows
	// when the transfer is complete. ok=false drops the
	// chunk: the descriptor was never announced to this peer.
	FileInfo(conversationID int64, id descriptor.Id, thumbnail bool) (filetransfer.Info, bool)
}

// Handler is ConversationHandler: the inbound packet
// demultiplexer. It holds the schema registry used to decode every
// frame and forwards decoded IQs to the Connection that owns the
// requestId/file-transfer state and to Callbacks for application
// delivery.
type Handler struct {
	reg *schema.Registry
	callbacks Callbacks
	filesDir string

	inboundIQCount uint64
}

// NewHandler returns a Handler bound to reg (already populated via
// descriptor.RegisterAll + iq.RegisterIQs) and callbacks. filesDir roots
// every relative path a File/Image/... descriptor names.
func NewHandler(reg *schema.Registry, callbacks Callbacks, filesDir string) *Handler {
	return &Handler{reg: reg, callbacks: callbacks, filesDir: filesDir}
}

// InboundIQCount returns how many frames HandleFrame has processed, for
// diagnostics.
func (h *Handler) InboundIQCount() uint64 { return h.inboundIQCount }

// HandleFrame implements the inbound dispatch loop: increment the
// counter, pick the codec framing variant from conn, read the schema
// header, look up and run the serialiser, and invoke the matching
// handling for the decoded type. Every error along the way, and any
// panic during deserialisation, is logged and swallowed — it must never
// reach the transport callback that invoked this method.
func (h *Handler) HandleFrame(conn *Connection, conversationID int64, frame []byte) {
	conn.IncrementStat(transport.StatInboundIQ)
	h.inboundIQCount++

	defer func() {
 if r := recover(); r != nil {
 slog.Error("handler: panic decoding inbound frame, dropped", "recover", r)
 }
	}()

	padded := conn.LeadingPadding()
	d, err := codec.NewDecoder(frame, padded)
	if err != nil {
 slog.Warn("handler: truncated frame, dropped", "error", err)
 return
	}
	key, err := schema.ReadHeader(d)
	if err != nil {
 slog.Warn("handler: truncated envelope header, dropped", "error", err)
 return
	}
	ser, ok := h.reg.Lookup(key)
	if !ok {
 slog.Warn("handler: unknown schema, dropped", "key", key.String())
 return
	}
	obj, err := ser.Deserialize(d)
	if err != nil {
 slog.Warn("handler: deserialization failed, dropped", "key", key.String(), "error", err)
 return
	}

	now := time.Now()
	switch v := obj.(type) {
	case *iq.PushIQ:
 h.handlePush(conn, conversationID, v, now)
	case *iq.PushTransientIQ:
 h.handlePushTransient(conn, v)
	case *iq.UpdateGeolocationIQ:
 h.handleUpdateGeolocation(conn, conversationID, v, now)
	case *iq.UpdateTimestampIQ:
 h.handleUpdateTimestamp(conn, conversationID, v)
	case *iq.UpdateDescriptorIQ:
 h.handleUpdateDescriptor(conn, conversationID, v, now)
	case *iq.UpdateAnnotationIQ:
 h.callbacks.OnUpdateAnnotations(conversationID, v.DescriptorID, v.Mode, v.Entries)
	case *iq.UpdatePermissionsIQ:
 h.callbacks.OnUpdatePermissions(conversationID, v.TwincodeOutboundID, v.Permissions)
	case *iq.ResetConversationIQ:
 h.handleReset(conn, conversationID, v, now)
	case *iq.InviteGroupIQ:
 h.callbacks.OnInviteGroup(conversationID, v)
	case *iq.JoinGroupIQ:
 h.handleJoinGroup(conn, conversationID, v, now)
	case *iq.OnJoinGroupIQ:
 conn.ResolveInFlight(v.RequestID)
	case *iq.PushFileChunkIQ:
 h.handlePushFileChunk(conn, conversationID, v, now)
	case *iq.PushThumbnailIQ:
 h.handlePushThumbnail(conn, conversationID, v)
	case *iq.OnPushFileChunkIQ:
 h.handleOnPushFileChunk(conn, v, now)
	case *iq.SynchronizeIQ:
 h.handleSynchronize(conn, v, now)
	case *iq.OnSynchronizeIQ:
 h.handleOnSynchronize(conn, v, now)
	case *iq.OnPushIQ:
 h.handleOnPush(conn, v)
	default:
 slog.Warn("handler: no dispatcher for decoded type", "key", key.String(), "type", fmt.Sprintf("%T", obj))
	}
}

// ackKeyForKind maps a descriptor kind to the per-operation typed ack
// schema named here, falling back to the generic OnPushIQ
// schema for kinds without a dedicated one.
func ackKeyForKind(kind descriptor.Kind) schema.Key {
	id := iq.SchemaOnPush
	switch kind {
	case descriptor.KindObject:
 id = iq.SchemaOnPushObject
	case descriptor.KindFile, descriptor.KindImage, descriptor.KindAudio, descriptor.KindVideo, descriptor.KindNamedFile:
 id = iq.SchemaOnPushFile
	case descriptor.KindTwincode:
 id = iq.SchemaOnPushTwincode
	case descriptor.KindGeolocation:
 id = iq.SchemaOnPushGeolocation
	case descriptor.KindInvitation:
 id = iq.SchemaOnPushInvitation
	}
	return schema.Key{SchemaID: id, SchemaVersion: 1}
}

// sendAck encodes and sends an ack IQ under key, logging (never
// returning) any failure: an ack that cannot be sent is retried
// implicitly the next time the peer resends its request after a timeout
// upstream, TransientTransportFailure.
func (h *Handler) sendAck(conn *Connection, key schema.Key, ack any) {
	e := codec.NewEncoder(conn.LeadingPadding())
	if err := h.reg.EncodeObject(e, key, ack); err != nil {
 slog.Error("handler: failed to encode ack", "key", key.String(), "error", err)
 return
	}
	if err := conn.SendPacket(transport.StatOutboundIQ, e.Bytes()); err != nil {
 slog.Warn("handler: failed to send ack", "key", key.String(), "error", err)
	}
}

// handlePush implements the Push*IQ listener: expired descriptors are
// not accepted on receive, everything else is delivered via
// OnPopDescriptor and acknowledged.
func (h *Handler) handlePush(conn *Connection, conversationID int64, p *iq.PushIQ, now time.Time) {
	env := p.Descriptor.Envelope()
	if env.Expired(now) {
 slog.Debug("handler: dropping expired pushed descriptor", "requestId", p.RequestID)
 return
	}
	env.ReceivedTimestamp = now.UnixMilli()
	if p.Descriptor.Kind() == descriptor.KindGeolocation {
 conn.markPeerGeolocationReceived(p.Descriptor.Envelope().ID)
	}
	h.callbacks.OnPopDescriptor(conversationID, p.Descriptor)

	ack := &iq.OnPushIQ{
 Envelope: iq.Envelope{RequestID: p.RequestID},
 DeviceState: conn.DeviceState(),
 ReceivedTimestamp: env.ReceivedTimestamp,
	}
	h.sendAck(conn, ackKeyForKind(p.Descriptor.Kind()), ack)
}

// handlePushTransient delivers a short-lived payload. Transient objects
// are never persisted and never acknowledged; the
// handler only logs receipt, since the payload's own schema-specific
// meaning is opaque to this layer.
func (h *Handler) handlePushTransient(conn *Connection, p *iq.PushTransientIQ) {
	slog.Debug("handler: received transient payload", "key", p.PayloadKey.String())
}

// handleUpdateGeolocation mutates the peer's current geolocation in
// place. If no geolocation has ever been received from this peer, the
// ack carries receivedTimestamp=-1 ("nothing to update").
func (h *Handler) handleUpdateGeolocation(conn *Connection, conversationID int64, u *iq.UpdateGeolocationIQ, now time.Time) {
	received := int64(-1)
	if conn.PeerGeolocationReceived() {
 received = now.UnixMilli()
 geo := &descriptor.Geolocation{
 Longitude: u.Longitude,
 Latitude: u.Latitude,
 Altitude: u.Altitude,
 MapLongitudeDelta: u.MapLongitudeDelta,
 MapLatitudeDelta: u.MapLatitudeDelta,
 Updated: true,
 }
 h.callbacks.OnPopDescriptor(conversationID, geo)
	}
	ack := &iq.OnPushIQ{
 Envelope: iq.Envelope{RequestID: u.RequestID},
 DeviceState: conn.DeviceState(),
 ReceivedTimestamp: received,
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnPushGeolocation, SchemaVersion: 1}, ack)
}

// handleUpdateTimestamp dispatches READ/DELETE/PEER_DELETE notices.
// PEER_DELETE triggers no local action; it is a tombstone the peer
// records for itself.
func (h *Handler) handleUpdateTimestamp(conn *Connection, conversationID int64, u *iq.UpdateTimestampIQ) {
	switch u.Type {
	case iq.TimestampRead:
 h.callbacks.OnReadDescriptor(conversationID, u.DescriptorID, u.Timestamp)
	case iq.TimestampDelete:
 h.callbacks.OnDeleteDescriptor(conversationID, u.DescriptorID, u.Timestamp, false)
 conn.clearPeerGeolocationIfMatches(u.DescriptorID)
	case iq.TimestampPeerDelete:
 // No local action: peer-side tombstone only.
	}
}

func (h *Handler) handleUpdateDescriptor(conn *Connection, conversationID int64, u *iq.UpdateDescriptorIQ, now time.Time) {
	h.callbacks.OnUpdateDescriptor(conversationID, u.DescriptorID, u)
	ack := &iq.OnPushIQ{
 Envelope: iq.Envelope{RequestID: u.RequestID},
 DeviceState: conn.DeviceState(),
 ReceivedTimestamp: now.UnixMilli(),
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnUpdateDescriptor, SchemaVersion: 1}, ack)
}

func (h *Handler) handleReset(conn *Connection, conversationID int64, r *iq.ResetConversationIQ, now time.Time) {
	h.callbacks.OnResetConversation(conversationID, r.ClearTimestamp, r.Mode, r.ClearDescriptor)
	ack := &iq.OnPushIQ{
 Envelope: iq.Envelope{RequestID: r.RequestID},
 DeviceState: conn.DeviceState(),
 ReceivedTimestamp: now.UnixMilli(),
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnResetConversation, SchemaVersion: 1}, ack)
}

// handleJoinGroup answers a join request: the application decides admission via
// Callbacks.OnJoinGroup; a denial or missing key material produces the
// documented failure ack with no signature attached.
func (h *Handler) handleJoinGroup(conn *Connection, conversationID int64, j *iq.JoinGroupIQ, now time.Time) {
	info, ok := h.callbacks.OnJoinGroup(conversationID, j.GroupTwincodeID, j.InviterInfo)
	var ack *iq.OnJoinGroupIQ
	if !ok {
 ack = iq.OnJoinGroupFail(j.RequestID, conn.DeviceState())
	} else {
 ack = &iq.OnJoinGroupIQ{
 Envelope: iq.Envelope{RequestID: j.RequestID},
 DeviceState: conn.DeviceState(),
 Success: true,
 GroupInfo: info,
 }
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnJoinGroup, SchemaVersion: 1}, ack)
}

// handlePushFileChunk writes one inbound chunk and tells the sender
// where to continue from. A protocol violation (chunk
// out of order) is dropped silently and no ack is sent,
// so the sender's own retry/backoff policy decides what happens next.
func (h *Handler) handlePushFileChunk(conn *Connection, conversationID int64, p *iq.PushFileChunkIQ, now time.Time) {
	info, ok := h.callbacks.FileInfo(conversationID, p.DescriptorID, false)
	if !ok {
 slog.Warn("handler: file chunk for unknown descriptor, dropped", "descriptorId", p.DescriptorID)
 return
	}
	next, err := conn.ReceivingFiles().WriteChunk(h.filesDir, info, p.ChunkStart, p.Chunk)
	if err != nil {
 slog.Warn("handler: file chunk protocol violation, dropped", "error", err)
 return
	}
	h.callbacks.OnFileChunk(conversationID, p.DescriptorID, next)

	ack := &iq.OnPushFileChunkIQ{
 Envelope: iq.Envelope{RequestID: p.RequestID},
 DeviceState: conn.DeviceState(),
 ReceivedTimestamp: now.UnixMilli(),
 SenderTimestamp: p.Timestamp,
 NextChunkStart: next,
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnPushFileChunk, SchemaVersion: 1}, ack)
}

// handlePushThumbnail writes one inbound thumbnail chunk. Thumbnails
// travel through their own tracking table so they
// never collide with the main file transfer for the same descriptor;
// the side channel carries no dedicated ack schema.
func (h *Handler) handlePushThumbnail(conn *Connection, conversationID int64, p *iq.PushThumbnailIQ) {
	info, ok := h.callbacks.FileInfo(conversationID, p.DescriptorID, true)
	if !ok {
 slog.Warn("handler: thumbnail chunk for unknown descriptor, dropped", "descriptorId", p.DescriptorID)
 return
	}
	if _, err := conn.ReceivingThumbnails().WriteChunk(h.filesDir, info, p.ChunkStart, p.Chunk); err != nil {
 slog.Warn("handler: thumbnail chunk protocol violation, dropped", "error", err)
	}
}

// handleOnPushFileChunk is the sender-side ack: it folds the observed
// round trip into the RTT estimate that drives adaptive chunk sizing.
func (h *Handler) handleOnPushFileChunk(conn *Connection, o *iq.OnPushFileChunkIQ, now time.Time) {
	if _, sentAt, ok := conn.ResolveInFlight(o.RequestID); ok {
 conn.UpdateRTT(now.UnixMilli() - sentAt)
	} else {
 conn.UpdateRTT(o.ReceivedTimestamp - o.SenderTimestamp)
	}
}

// handleSynchronize answers a clock-skew handshake: peerTime is this
// side's own clock at receipt, echoed back with the initiator's original
// timestamp so it can compute the round trip.
func (h *Handler) handleSynchronize(conn *Connection, s *iq.SynchronizeIQ, now time.Time) {
	ack := &iq.OnSynchronizeIQ{
 Envelope: iq.Envelope{RequestID: s.RequestID},
 Timestamp: now.UnixMilli(),
 SenderTimestamp: s.Timestamp,
	}
	h.sendAck(conn, schema.Key{SchemaID: iq.SchemaOnSynchronize, SchemaVersion: 1}, ack)
}

// handleOnSynchronize completes the initiator side of the handshake:
// startTime is the local send time recorded when the SynchronizeIQ was
// registered in-flight.
func (h *Handler) handleOnSynchronize(conn *Connection, o *iq.OnSynchronizeIQ, now time.Time) {
	_, startTime, ok := conn.ResolveInFlight(o.RequestID)
	if !ok {
 slog.Warn("handler: synchronize ack for unknown requestId, dropped", "requestId", o.RequestID)
 return
	}
	if !conn.AdjustPeerTime(startTime, now.UnixMilli(), o.Timestamp) {
 slog.Debug("handler: synchronize round trip out of range, discarded", "requestId", o.RequestID)
	}
}

// handleOnPush is the generic ack: it removes the in-flight entry and,
// if the operation was tracking a descriptor, stamps its received
// timestamp.
func (h *Handler) handleOnPush(conn *Connection, o *iq.OnPushIQ) {
	desc, _, ok := conn.ResolveInFlight(o.RequestID)
	if !ok {
 slog.Debug("handler: ack for unknown requestId, discarded", "requestId", o.RequestID)
 return
	}
	if desc != nil {
 descriptor.MarkReceived(desc, o.ReceivedTimestamp)
	}
}
