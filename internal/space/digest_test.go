package space

import (
	"testing"

	"flowerchat.dev/internal/protocol"
)

func TestDigestIsStable(t *testing.T) {
	s, _ := buildRichState(t)
	if s.Digest() != s.Digest() {
		t.Fatal("digest not stable across calls")
	}
}

func TestDigestReflectsState(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}
	empty := s.Digest()

	fund(t, s, refs, alice, s.tune.Costs.CreateRoom)
	afterMint := s.Digest()
	if afterMint == empty {
		t.Fatal("minting did not change the digest")
	}

	mustApply(t, s, protocol.CreatePublicRoomEvent{Name: "general"}, refs.next(alice))
	if s.Digest() == afterMint {
		t.Fatal("room creation did not change the digest")
	}
}

func TestDigestIgnoresMapIterationOrder(t *testing.T) {
	// Two states built with the same grants in a different submission
	// order hold different seen-sets, so drive both from one scripted
	// sequence and compare against a fresh fold.
	s1, _ := buildRichState(t)
	s2, _ := buildRichState(t)
	if s1.Digest() != s2.Digest() {
		t.Fatal("identical folds produced different digests")
	}
}

func TestDigestDiffersAcrossSpaces(t *testing.T) {
	s1 := newTestState()
	s2 := New(Config{RootBlock: testHash(0xBB), Author: rootAuthor, Title: "test space"}, testTuning())
	if s1.Digest() == s2.Digest() {
		t.Fatal("different root blocks share a digest")
	}
}
