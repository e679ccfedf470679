// Package transport declares the data-channel contract the conversation
// engine depends on without implementing it: the underlying
// WebRTC data channel is an external collaborator, wired in by the host
// application. This package only gives the rest of the engine a stable
// interface to call and a stable set of callbacks to be driven by.
package transport

// StatType identifies a counter bucket for incrementStat/sendPacket/
// sendMessage hooks. The core only needs a
// handful of buckets; callers outside this module may define their own
// values above statTypeCount without colliding.
type StatType int

const (
	StatInboundIQ StatType = iota
	StatOutboundIQ
	StatOutboundMessage
	statTypeCount
)

// Sender is the outbound half of the transport contract.
// sendPacket/sendMessage MUST be non-blocking — the operation-executor
// context that calls them may never stall behind a slow data channel.
type Sender interface {
	// SendPacket enqueues a framed, serialised IQ addressed to
	// peerConnectionId. iq is already encoded; the transport treats it as
	// an opaque byte slice.
	SendPacket(peerConnectionID string, stat StatType, frame []byte) error

	// SendMessage enqueues already-serialised bytes with no IQ framing.
	SendMessage(peerConnectionID string, stat StatType, bytes []byte) error

	// IncrementStat is a counter hook with no delivery semantics.
	IncrementStat(peerConnectionID string, stat StatType)
}

// Observer receives the events a data channel reports. The
// ConversationHandler is the sole consumer; it is driven by
// these calls from the transport-callback context and must not block in
// any of them.
type Observer interface {
	// OnDataChannelOpen fires once the channel is usable. peerVersion is
	// nil when the peer did not announce one on this handshake.
	OnDataChannelOpen(peerConnectionID string, peerVersion *Version, leadingPadding bool)

	// OnDataChannelMessage delivers one inbound frame, still encoded with
	// whatever framing leadingPadding selects.
	OnDataChannelMessage(peerConnectionID string, frame []byte, leadingPadding bool)

	// OnDataChannelClosed fires once, regardless of which side initiated
	// the close.
	OnDataChannelClosed(peerConnectionID string)
}

// Version is a negotiated (major, minor) protocol version.
type Version struct {
	Major int
	Minor int
}
