// Package operation implements the durable Operation model: one record per unit of outbound work, executed against an open
// ConversationConnection to produce (at most) one IQ.
//
// One Operation struct carries fields used only by the Types that need
// them, the same choice already made for the Descriptor family, rather
// than a subclass per intent.
package operation

import (
	"time"

	"github.com/google/uuid"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/crypto"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
	"github.com/twinlife/conversation-engine/internal/transport"
)

// Connection is the slice of ConversationConnection behaviour execute
// needs: allocate a requestId, track it while an ack is
// pending, gate a descriptor push against delete/expiry, report peer
// capability, and hand bytes to the transport.
type Connection interface {
	NextRequestID() int64
	RegisterInFlight(requestID int64, desc descriptor.Descriptor)
	PreparePush(desc descriptor.Descriptor, now time.Time) bool
	PeerSupports(major, minor int) bool
	LeadingPadding() bool
	DeviceState() uint32
	SendPacket(stat transport.StatType, frame []byte) error
}

// Operation is a durable unit of outbound work. Descriptor
// is held by strong reference once loaded; DescriptorLocalID lets execute
// fetch it from storage when the in-memory value is absent.
type Operation struct {
	ID int64
	Type Type
	ConversationID int64
	CreationDate int64

	DescriptorLocalID int64
	Descriptor descriptor.Descriptor

	// PUSH_TRANSIENT_OBJECT / PUSH_COMMAND
	TransientKey schema.Key
	TransientPayload any

	// UPDATE_DESCRIPTOR_TIMESTAMP
	TimestampType iq.TimestampType
	TimestampValue int64

	// UPDATE_ANNOTATIONS
	AnnotationMode iq.AnnotationMode
	AnnotationEntries map[uuid.UUID][]iq.Annotation

	// UPDATE_DESCRIPTOR
	UpdatedTimestamp int64
	ExpireTimeout *int64
	CopyAllowed *bool
	Message *string

	// UPDATE_PERMISSIONS
	TargetTwincodeID uuid.UUID
	Permissions uint32

	// RESET_CONVERSATION
	ClearDescriptor *descriptor.Clear
	ClearTimestamp int64
	ClearMode iq.ClearMode

	// JOIN_GROUP / INVOKE_JOIN_GROUP / INVOKE_ADD_MEMBER
	GroupTwincodeID uuid.UUID
	MemberTwincodeID uuid.UUID
	JoinPermissions uint32
	InviterInfo *crypto.SignatureInfo

	// SYNCHRONIZE_CONVERSATION
	PeerTwincodeOutboundID uuid.UUID
	ResourceID uuid.UUID

	// RequestID is populated by Execute once a request has been sent and
	// an ack is pending; zero before that.
	RequestID int64
}

// Execute runs the operation against conn, loading Descriptor from store
// first if it is not already held in memory. reg encodes
// whichever IQ this operation produces.
func (o *Operation) Execute(conn Connection, store storage.Store, reg *schema.Registry, now time.Time) ErrorCode {
	switch o.Type {
	case TypePushObject, TypePushFile, TypePushGeolocation, TypePushInvitation:
 return o.executePushDescriptor(conn, store, reg, now)
	case TypePushTwincode:
 return o.executePushTwincode(conn, store, reg, now)
	case TypePushTransientObject:
 return o.executeTransient(conn, reg, iq.SchemaPushTransient)
	case TypePushCommand:
 return o.executeTransient(conn, reg, iq.SchemaPushCommand)
	case TypeUpdateDescriptorTimestamp:
 return o.executeUpdateTimestamp(conn, store, reg)
	case TypeUpdateAnnotations:
 return o.executeUpdateAnnotations(conn, store, reg)
	case TypeUpdateDescriptor:
 return o.executeUpdateDescriptor(conn, store, reg)
	case TypeUpdatePermissions:
 return o.executeUpdatePermissions(conn, reg)
	case TypeResetConversation:
 return o.executeResetConversation(conn, reg)
	case TypeJoinGroup:
 return o.executeJoinGroup(conn, reg)
	case TypeInvokeJoinGroup:
 return o.executeInviteGroup(conn, reg)
	case TypeInvokeAddMember:
 // Membership bookkeeping only: the member was already admitted
 // through a completed JoinGroup/InviteGroup exchange, so there is
 // nothing left to put on the wire.
 return Success
	case TypeSynchronizeConversation:
 return o.executeSynchronize(conn, reg, now)
	default:
 return Expired
	}
}

// loadDescriptor returns o.Descriptor, fetching it from store on first use.
func (o *Operation) loadDescriptor(store storage.Store) (descriptor.Descriptor, bool) {
	if o.Descriptor != nil {
 return o.Descriptor, true
	}
	if o.DescriptorLocalID == 0 {
 return nil, false
	}
	d, err := store.LoadDescriptor(o.DescriptorLocalID)
	if err != nil {
 return nil, false
	}
	o.Descriptor = d
	return d, true
}

func (o *Operation) send(conn Connection, reg *schema.Registry, key schema.Key, body any, expectAck bool, desc descriptor.Descriptor) ErrorCode {
	requestID := conn.NextRequestID()

	switch v := body.(type) {
	case *iq.PushIQ:
 v.RequestID = requestID
	case *iq.PushTransientIQ:
 v.RequestID = requestID
	case *iq.UpdateTimestampIQ:
 v.RequestID = requestID
	case *iq.UpdateAnnotationIQ:
 v.RequestID = requestID
	case *iq.UpdateDescriptorIQ:
 v.RequestID = requestID
	case *iq.UpdatePermissionsIQ:
 v.RequestID = requestID
	case *iq.ResetConversationIQ:
 v.RequestID = requestID
	case *iq.JoinGroupIQ:
 v.RequestID = requestID
	case *iq.InviteGroupIQ:
 v.RequestID = requestID
	case *iq.SynchronizeIQ:
 v.RequestID = requestID
	}

	e := codec.NewEncoder(conn.LeadingPadding())
	if err := reg.EncodeObject(e, key, body); err != nil {
 return Expired
	}

	if expectAck {
 conn.RegisterInFlight(requestID, desc)
 o.RequestID = requestID
	}

	if err := conn.SendPacket(transport.StatOutboundIQ, e.Bytes()); err != nil {
 // TransientTransportFailure: stays eligible for
 // retry once the connection re-opens.
 return Queued
	}
	if expectAck {
 return Queued
	}
	return Success
}
