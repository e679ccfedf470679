package descriptor

import "github.com/google/uuid"

// InvitationStatus is the lifecycle of a group invitation.
type InvitationStatus int32

const (
	InvitationPending InvitationStatus = iota
	InvitationAccepted
	InvitationRefused
	InvitationWithdrawn
	InvitationJoined
)

// Invitation represents an offer to join a group conversation.
type Invitation struct {
	Base
	GroupTwincodeID uuid.UUID
	MemberTwincodeID uuid.UUID
	InviterTwincodeID uuid.UUID
	Name string
	PublicKey []byte
	Status InvitationStatus
}

func (i *Invitation) Kind() Kind { return KindInvitation }
func (i *Invitation) Envelope() *Base { return &i.Base }

var _ Descriptor = (*Invitation)(nil)
