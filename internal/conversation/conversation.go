// Package conversation implements the Conversation data model: the local record of a communication with a single peer or a
// group. A ConversationConnection (internal/connection) is looked up
// from a Conversation by local id rather than embedded by pointer, so
// the cyclic references between a Conversation, a GroupConversation and
// their member conversations become non-owning back-references through a
// single Registry keyed by local id.
package conversation

import "github.com/google/uuid"

// Flag bits on Conversation.Flags, packed into one bitfield rather than
// a handful of separate booleans.
const (
	FlagJoined uint32 = 1 << 0
	FlagLeaving uint32 = 1 << 1
	FlagDeleted uint32 = 1 << 2
)

// Conversation is the local record of a communication with one peer.
// GroupConversation embeds it for the group case.
type Conversation struct {
	LocalID int64
	ConversationID uuid.UUID
	SubjectRef int64 // opaque reference to the contact/twincode this conversation is with

	ResourceID uuid.UUID
	PeerResourceID uuid.UUID

	Permissions uint32
	LastConnect int64
	LastRetry int64
	Flags uint32
}

// HasFlag reports whether bit is set in Flags.
func (c *Conversation) HasFlag(bit uint32) bool { return c.Flags&bit != 0 }

func (c *Conversation) SetFlag(bit uint32, on bool) {
	if on {
 c.Flags |= bit
	} else {
 c.Flags &^= bit
	}
}

// Leaving reports whether this conversation endpoint has been revoked:
// "a member whose permissions == 0 is deemed leaving and is
// excluded from sends and member listings unless explicitly requested".
func (c *Conversation) Leaving() bool { return c.Permissions == 0 }

// GroupMemberConversation is one member's conversation inside a group:
// itself a full Conversation targeting a single member twincode, so the
// ConversationConnection state machine is not duplicated for group
// members.
type GroupMemberConversation struct {
	Conversation
	MemberTwincodeID uuid.UUID
}

// GroupConversation adds the group-specific fields on top of the base
// Conversation: the group twincode, its members, the permissions offered
// to new joiners, and an incoming conversation used to receive from any
// member before a specific per-member connection has been established.
type GroupConversation struct {
	Conversation
	GroupTwincodeID uuid.UUID
	Members map[uuid.UUID]*GroupMemberConversation // keyed by MemberTwincodeID
	JoinPermissions uint32
	IncomingConversation *Conversation
}

// NewGroupConversation returns a GroupConversation with an empty member
// map, ready for AddMember.
func NewGroupConversation(base Conversation, groupTwincodeID uuid.UUID) *GroupConversation {
	return &GroupConversation{
 Conversation: base,
 GroupTwincodeID: groupTwincodeID,
 Members: make(map[uuid.UUID]*GroupMemberConversation),
	}
}

// AddMember registers a member conversation, keyed by its twincode.
func (g *GroupConversation) AddMember(m *GroupMemberConversation) {
	g.Members[m.MemberTwincodeID] = m
}

// Member looks a member conversation up by twincode.
func (g *GroupConversation) Member(twincodeID uuid.UUID) (*GroupMemberConversation, bool) {
	m, ok := g.Members[twincodeID]
	return m, ok
}

// ActiveMembers returns every member not deemed leaving,
// unless includeLeaving is set — used by the member-listing paths that
// explicitly want to see everyone.
func (g *GroupConversation) ActiveMembers(includeLeaving bool) []*GroupMemberConversation {
	out := make([]*GroupMemberConversation, 0, len(g.Members))
	for _, m := range g.Members {
 if !includeLeaving && m.Leaving() {
 continue
 }
 out = append(out, m)
	}
	return out
}

// Registry owns every Conversation and GroupConversation by local id, so
// cross-references between them stay non-owning lookups rather than
// pointers baked into the structs themselves. It holds no connections.
type Registry struct {
	conversations map[int64]*Conversation
	groups map[int64]*GroupConversation
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
 conversations: make(map[int64]*Conversation),
 groups: make(map[int64]*GroupConversation),
	}
}

// Put registers a direct conversation under its LocalID.
func (r *Registry) Put(c *Conversation) { r.conversations[c.LocalID] = c }

// PutGroup registers a group conversation under its LocalID.
func (r *Registry) PutGroup(g *GroupConversation) {
	r.groups[g.LocalID] = g
	r.conversations[g.LocalID] = &g.Conversation
}

// Get looks a conversation up by local id; for a group registered with
// PutGroup it returns the group's base Conversation.
func (r *Registry) Get(localID int64) (*Conversation, bool) {
	c, ok := r.conversations[localID]
	return c, ok
}

// GetGroup looks a group conversation up by local id.
func (r *Registry) GetGroup(localID int64) (*GroupConversation, bool) {
	g, ok := r.groups[localID]
	return g, ok
}

// Delete removes a conversation (and, if it was one, its group entry).
func (r *Registry) Delete(localID int64) {
	delete(r.conversations, localID)
	delete(r.groups, localID)
}
