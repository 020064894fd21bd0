package space

import (
	"testing"

	"flowerchat.dev/internal/protocol"
)

// buildRichState exercises every projected collection so round trips
// cover rooms, messages, roles, bans, nicknames, balances and proofs.
func buildRichState(t *testing.T) (*State, *refSeq) {
	t.Helper()
	s := newTestState()
	refs := &refSeq{}

	fund(t, s, refs, alice, s.tune.Costs.CreateRoom+2*s.tune.Costs.PublicMessage)
	fund(t, s, refs, bob, s.tune.Costs.RenameUser)

	mustApply(t, s, protocol.CreatePublicRoomEvent{Name: "general"}, refs.next(alice))
	mustApply(t, s, protocol.PublicMessageEvent{RoomName: "general", Content: "first"}, refs.next(alice))
	mustApply(t, s, protocol.PublicMessageEvent{RoomName: "general", Content: "second"}, refs.next(alice))
	mustApply(t, s, protocol.GrantRoleEvent{Target: bob, Role: byte(RoleModerator)}, refs.next(rootAuthor))
	mustApply(t, s, protocol.GrantRoleEvent{RoomName: "general", Target: carol, Role: byte(RoleModerator)}, refs.next(alice))
	mustApply(t, s, protocol.BanUserEvent{Target: carol}, refs.next(bob))
	mustApply(t, s, protocol.RenameUserEvent{Target: bob, Nickname: "bobby"}, refs.next(bob))
	return s, refs
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _ := buildRichState(t)

	snap := s.ExportSnapshot()
	restored, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if got, want := restored.Digest(), s.Digest(); got != want {
		t.Fatalf("digest after round trip: %s, want %s", got, want)
	}
	if restored.Applied() != s.Applied() {
		t.Fatalf("applied = %d, want %d", restored.Applied(), s.Applied())
	}
	if restored.Nickname(bob) != "bobby" {
		t.Fatal("nickname lost")
	}
	if restored.Balance(alice) != s.Balance(alice) {
		t.Fatal("balance lost")
	}
	if !restored.Banned(SpaceScope(), carol) {
		t.Fatal("ban lost")
	}
	if restored.RoleOf(RoomScope("general"), carol) != RoleModerator {
		t.Fatal("room role lost")
	}
}

func TestSnapshotResumeStaysDeterministic(t *testing.T) {
	s, refs := buildRichState(t)
	restored, err := FromSnapshot(s.ExportSnapshot())
	if err != nil {
		t.Fatal(err)
	}

	// The same post-snapshot events fold identically on both.
	post := []struct {
		ev  protocol.Event
		ref Reference
	}{
		{protocol.PublicMessageEvent{RoomName: "general", Content: "third"}, refs.next(alice)},
		{protocol.RenameRoomEvent{RoomName: "general", Title: "The lobby"}, refs.next(rootAuthor)},
	}
	for _, p := range post {
		o1, err1 := s.Apply(p.ev, p.ref)
		o2, err2 := restored.Apply(p.ev, p.ref)
		if err1 != nil || err2 != nil {
			t.Fatalf("apply: %v / %v", err1, err2)
		}
		if o1 != o2 {
			t.Fatalf("outcome diverged: %+v vs %+v", o1, o2)
		}
	}
	if s.Digest() != restored.Digest() {
		t.Fatal("digest diverged after resume")
	}
}

func TestSnapshotReplaySuppression(t *testing.T) {
	s, _ := buildRichState(t)
	restored, err := FromSnapshot(s.ExportSnapshot())
	if err != nil {
		t.Fatal(err)
	}

	// Re-delivering a pre-snapshot reference is a replay, not a fresh
	// apply: the seen set survives the round trip.
	var pre Reference
	for k := range s.seen {
		pre = Reference{Block: k.Block, Tx: k.Tx, Author: alice}
		break
	}
	out, err := restored.Apply(protocol.PublicMessageEvent{RoomName: "general", Content: "again"}, pre)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Replay {
		t.Fatalf("outcome = %+v, want replay", out)
	}
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	s, _ := buildRichState(t)
	snap := s.ExportSnapshot()
	snap.Header.Version = 99
	if _, err := FromSnapshot(snap); err == nil {
		t.Fatal("expected version error")
	}
}

func TestSnapshotRejectsBadKey(t *testing.T) {
	s, _ := buildRichState(t)
	snap := s.ExportSnapshot()
	snap.Bans = []string{"zz"}
	if _, err := FromSnapshot(snap); err == nil {
		t.Fatal("expected parse error")
	}
}
