package space

import (
	"testing"

	"flowerchat.dev/internal/protocol"
)

func TestSubmitPowCredits(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}

	nonce := mineNonce(t, s, alice)
	mustApply(t, s, protocol.SubmitPowEvent{Nonce: nonce}, refs.next(alice))
	if got := s.Balance(alice); got != s.tune.PowReward {
		t.Fatalf("balance = %d, want %d", got, s.tune.PowReward)
	}
}

func TestSubmitPowRejectsWeakProof(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}

	// Find a nonce that does NOT clear the difficulty.
	var weak []byte
	for i := byte(0); ; i++ {
		candidate := []byte{i}
		if leadingZeroBits(s.proofHash(alice, candidate)) < s.tune.PowDifficultyBits {
			weak = candidate
			break
		}
	}
	mustReject(t, s, protocol.SubmitPowEvent{Nonce: weak}, refs.next(alice), protocol.CodeInvalidProof)
	if s.Balance(alice) != 0 {
		t.Fatal("weak proof credited")
	}
}

func TestSubmitPowRejectsDuplicateProof(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}

	nonce := mineNonce(t, s, alice)
	mustApply(t, s, protocol.SubmitPowEvent{Nonce: nonce}, refs.next(alice))
	mustReject(t, s, protocol.SubmitPowEvent{Nonce: nonce}, refs.next(alice), protocol.CodeDuplicateProof)
	if got := s.Balance(alice); got != s.tune.PowReward {
		t.Fatalf("balance = %d after duplicate, want %d", got, s.tune.PowReward)
	}
}

func TestProofIsBoundToPrincipal(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}

	// A nonce mined for alice is almost surely worthless for bob, and
	// is in any case evaluated against bob's own proof hash.
	nonce := mineNonce(t, s, alice)
	out, err := s.Apply(protocol.SubmitPowEvent{Nonce: nonce}, refs.next(bob))
	if err != nil {
		t.Fatal(err)
	}
	if out.Applied {
		// Legitimately cleared bob's difficulty too; both balances
		// must then be independent.
		if s.Balance(alice) != 0 {
			t.Fatal("credit leaked to alice")
		}
		return
	}
	if out.Code != protocol.CodeInvalidProof {
		t.Fatalf("code = %s", out.Code)
	}
}

func TestBannedPrincipalCanMint(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}
	mustApply(t, s, protocol.BanUserEvent{Target: bob}, refs.next(rootAuthor))

	nonce := mineNonce(t, s, bob)
	mustApply(t, s, protocol.SubmitPowEvent{Nonce: nonce}, refs.next(bob))
	if s.Balance(bob) != s.tune.PowReward {
		t.Fatal("banned principal could not mint")
	}
}

func TestBalanceNeverGoesNegative(t *testing.T) {
	s := newTestState()
	refs := &refSeq{}
	fund(t, s, refs, rootAuthor, s.tune.Costs.CreateRoom)
	mustApply(t, s, protocol.CreatePublicRoomEvent{Name: "general"}, refs.next(rootAuthor))

	// bob holds nothing; the message is rejected whole.
	mustReject(t, s, protocol.PublicMessageEvent{RoomName: "general", Content: "free?"},
		refs.next(bob), protocol.CodeInsufficientBalance)
	if s.Balance(bob) != 0 {
		t.Fatalf("balance = %d", s.Balance(bob))
	}
	if len(s.Messages("general")) != 0 {
		t.Fatal("unpaid message applied")
	}
}

func TestLeadingZeroBits(t *testing.T) {
	var h Hash
	if got := leadingZeroBits(h); got != 256 {
		t.Fatalf("all-zero hash = %d bits", got)
	}
	h[0] = 0x80
	if got := leadingZeroBits(h); got != 0 {
		t.Fatalf("0x80.. = %d bits", got)
	}
	h[0] = 0x00
	h[1] = 0x01
	if got := leadingZeroBits(h); got != 15 {
		t.Fatalf("0x0001.. = %d bits", got)
	}
}
