package conversation

import (
	"testing"

	"github.com/google/uuid"
)

func TestLeavingReflectsZeroPermissions(t *testing.T) {
	c := &Conversation{Permissions: 0}
	if !c.Leaving() {
 t.Error("Leaving should be true when Permissions == 0")
	}
	c.Permissions = 1
	if c.Leaving() {
 t.Error("Leaving should be false once Permissions is non-zero")
	}
}

func TestFlags(t *testing.T) {
	c := &Conversation{}
	c.SetFlag(FlagJoined, true)
	if !c.HasFlag(FlagJoined) {
 t.Error("HasFlag(FlagJoined) should be true after SetFlag(true)")
	}
	c.SetFlag(FlagJoined, false)
	if c.HasFlag(FlagJoined) {
 t.Error("HasFlag(FlagJoined) should be false after SetFlag(false)")
	}
}

func TestGroupConversationActiveMembersExcludesLeaving(t *testing.T) {
	g := NewGroupConversation(Conversation{LocalID: 1}, uuid.New())

	active := &GroupMemberConversation{Conversation: Conversation{Permissions: 1}, MemberTwincodeID: uuid.New()}
	leaving := &GroupMemberConversation{Conversation: Conversation{Permissions: 0}, MemberTwincodeID: uuid.New()}
	g.AddMember(active)
	g.AddMember(leaving)

	got := g.ActiveMembers(false)
	if len(got) != 1 || got[0].MemberTwincodeID != active.MemberTwincodeID {
 t.Fatalf("ActiveMembers(false) = %v, want only the active member", got)
	}

	all := g.ActiveMembers(true)
	if len(all) != 2 {
 t.Fatalf("ActiveMembers(true) = %d members, want 2", len(all))
	}

	if m, ok := g.Member(active.MemberTwincodeID); !ok || m != active {
 t.Error("Member lookup should find the registered member")
	}
}

func TestRegistryPutGetDelete(t *testing.T) {
	r := NewRegistry()
	c := &Conversation{LocalID: 10}
	r.Put(c)

	if got, ok := r.Get(10); !ok || got != c {
 t.Fatal("Get should return the conversation just Put")
	}

	g := NewGroupConversation(Conversation{LocalID: 20}, uuid.New())
	r.PutGroup(g)
	if got, ok := r.GetGroup(20); !ok || got != g {
 t.Fatal("GetGroup should return the group just PutGroup")
	}
	if got, ok := r.Get(20); !ok || got != &g.Conversation {
 t.Fatal("Get should also resolve a group's base Conversation by the same local id")
	}

	r.Delete(10)
	if _, ok := r.Get(10); ok {
 t.Error("Get should fail after Delete")
	}
	r.Delete(20)
	if _, ok := r.GetGroup(20); ok {
 t.Error("GetGroup should fail after Delete")
	}
}
