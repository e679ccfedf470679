// Package descriptor implements the Descriptor content-object model: the
// immutable-identity, mutable-timestamp objects exchanged inside IQs —
// Object, File and its specialisations, Geolocation, Twincode,
// Invitation, Clear and TransientObject.
//
// Deep inheritance across versioned ancestor types becomes composition
// here: Base holds the envelope fields every descriptor shares, and each
// variant embeds it rather than extending a version-specific ancestor.
package descriptor

import (
	"time"

	"github.com/google/uuid"
)

// Flag bits on Descriptor.Flags.
const (
	FlagCopyAllowed uint32 = 1 << 0
	FlagUpdated uint32 = 1 << 1
	FlagHasThumbnail uint32 = 1 << 2
)

// Id is the identity of one descriptor: (twincodeOutboundId, sequenceId) is
// globally unique across peers; localDatabaseId is a purely local handle
// used to look the object up in storage.
type Id struct {
	LocalDatabaseID int64
	TwincodeOutboundID uuid.UUID
	SequenceID int64
}

// Key returns the globally-unique pair used for deduplication across peers.
func (id Id) Key() (uuid.UUID, int64) { return id.TwincodeOutboundID, id.SequenceID }

// Kind discriminates the descriptor variants for tagged-union dispatch in
// IQs that carry "any descriptor" (PushFileIQ's subtype tag, the polymorphic
// payload of PushTransientIQ).
type Kind int

const (
	KindObject Kind = iota
	KindFile
	KindImage
	KindAudio
	KindVideo
	KindNamedFile
	KindGeolocation
	KindTwincode
	KindInvitation
	KindClear
	KindTransientObject
)

// Base holds the envelope fields shared by every Descriptor variant.
type Base struct {
	ID Id
	ConversationID int64
	SendTo *uuid.UUID
	ReplyTo *Id

	CreatedTimestamp int64
	SentTimestamp int64
	ReceivedTimestamp int64
	ReadTimestamp int64
	UpdatedTimestamp int64

	PeerDeleteTimestamp int64
	DeleteTimestamp int64

	ExpireTimeout int64 // milliseconds; 0 = never
	Flags uint32
}

// HasFlag reports whether bit is set in Flags.
func (b *Base) HasFlag(bit uint32) bool { return b.Flags&bit != 0 }

func (b *Base) SetFlag(bit uint32, on bool) {
	if on {
 b.Flags |= bit
	} else {
 b.Flags &^= bit
	}
}

// Expired reports whether this descriptor is expired as of now:
// expireTimeout > 0 AND now > createdTimestamp + expireTimeout.
// Expired descriptors are not pushed and are not accepted on receive.
func (b *Base) Expired(now time.Time) bool {
	if b.ExpireTimeout <= 0 {
 return false
	}
	nowMs := now.UnixMilli()
	return nowMs > b.CreatedTimestamp+b.ExpireTimeout
}

// Deleted reports whether DeleteTimestamp has been set. This is terminal:
// no mutation other than garbage collection may occur after.
func (b *Base) Deleted() bool { return b.DeleteTimestamp > 0 }

// Descriptor is implemented by every content-object variant.
type Descriptor interface {
	Envelope() *Base
	Kind() Kind
}

// MarkSent stamps SentTimestamp on first successful push. A second call
// is a no-op — sent is monotonic once set.
func MarkSent(d Descriptor, now time.Time) {
	b := d.Envelope()
	if b.SentTimestamp == 0 {
 b.SentTimestamp = now.UnixMilli()
	}
}

// MarkReceived stamps ReceivedTimestamp. A value of -1 is a valid sentinel
// and is always accepted even though it is not a wallclock value.
func MarkReceived(d Descriptor, ts int64) {
	b := d.Envelope()
	if b.ReceivedTimestamp == 0 || ts == -1 {
 b.ReceivedTimestamp = ts
	}
}

// MarkRead stamps ReadTimestamp, non-decreasing.
func MarkRead(d Descriptor, now time.Time) {
	b := d.Envelope()
	ts := now.UnixMilli()
	if ts > b.ReadTimestamp {
 b.ReadTimestamp = ts
	}
}
