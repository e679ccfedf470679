package operation

import (
	"time"

	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
)

func (o *Operation) executeJoinGroup(conn Connection, reg *schema.Registry) ErrorCode {
	body := &iq.JoinGroupIQ{
 GroupTwincodeID: o.GroupTwincodeID,
 InviterInfo: o.InviterInfo,
	}
	key := schema.Key{SchemaID: iq.SchemaJoinGroup, SchemaVersion: 2}
	return o.send(conn, reg, key, body, true, nil)
}

func (o *Operation) executeInviteGroup(conn Connection, reg *schema.Registry) ErrorCode {
	body := &iq.InviteGroupIQ{
 GroupTwincodeID: o.GroupTwincodeID,
 MemberTwincodeID: o.MemberTwincodeID,
 JoinPermissions: o.JoinPermissions,
 InviterInfo: o.InviterInfo,
	}
	key := schema.Key{SchemaID: iq.SchemaInviteGroup, SchemaVersion: 1}
	// InviteGroupIQ has no dedicated ack schema; the remote's own
	// JoinGroupIQ (sent once it accepts) is the real confirmation, so
	// this send itself completes immediately.
	return o.send(conn, reg, key, body, false, nil)
}

func (o *Operation) executeSynchronize(conn Connection, reg *schema.Registry, now time.Time) ErrorCode {
	body := &iq.SynchronizeIQ{
 PeerTwincodeOutboundID: o.PeerTwincodeOutboundID,
 ResourceID: o.ResourceID,
 Timestamp: now.UnixMilli(),
	}
	key := schema.Key{SchemaID: iq.SchemaSynchronize, SchemaVersion: 1}
	return o.send(conn, reg, key, body, true, nil)
}
