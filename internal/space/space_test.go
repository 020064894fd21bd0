package space

import (
	"encoding/binary"
	"testing"

	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/tuning"
)

// Test helpers. Difficulty is lowered so mining a valid proof takes a
// few hundred hashes instead of tens of thousands.

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.PowDifficultyBits = 8
	return t
}

func testKey(fill byte) PublicKey {
	var k PublicKey
	for i := range k {
		k[i] = fill
	}
	return k
}

func testHash(fill byte) Hash {
	var h Hash
	for i := range h {
		h[i] = fill
	}
	return h
}

var (
	rootAuthor = testKey(0x01)
	alice      = testKey(0x0A)
	bob        = testKey(0x0B)
	carol      = testKey(0x0C)
)

func newTestState() *State {
	return New(Config{
		RootBlock: testHash(0xAA),
		Author:    rootAuthor,
		Title:     "test space",
	}, testTuning())
}

// refSeq hands out unique ledger references.
type refSeq struct{ n uint64 }

func (r *refSeq) next(author PublicKey) Reference {
	r.n++
	var block, tx Hash
	binary.BigEndian.PutUint64(block[:8], r.n)
	binary.BigEndian.PutUint64(tx[:8], ^r.n)
	return Reference{Block: block, Tx: tx, Author: author}
}

// mineNonce finds a nonce whose proof hash clears the state's
// difficulty for the given principal.
func mineNonce(t *testing.T, s *State, principal PublicKey) []byte {
	t.Helper()
	nonce := make([]byte, 8)
	for i := uint64(0); i < 1<<20; i++ {
		binary.BigEndian.PutUint64(nonce, i)
		proof := s.proofHash(principal, nonce)
		if _, spent := s.spentProofs[proof]; spent {
			continue
		}
		if leadingZeroBits(proof) >= s.tune.PowDifficultyBits {
			out := make([]byte, len(nonce))
			copy(out, nonce)
			return out
		}
	}
	t.Fatal("no valid nonce found")
	return nil
}

func mustApply(t *testing.T, s *State, ev protocol.Event, ref Reference) Outcome {
	t.Helper()
	out, err := s.Apply(ev, ref)
	if err != nil {
		t.Fatalf("Apply(%T): %v", ev, err)
	}
	if !out.Applied {
		t.Fatalf("Apply(%T): rejected code=%s reason=%v", ev, out.Code, out.Reason)
	}
	return out
}

func mustReject(t *testing.T, s *State, ev protocol.Event, ref Reference, wantCode string) Outcome {
	t.Helper()
	out, err := s.Apply(ev, ref)
	if err != nil {
		t.Fatalf("Apply(%T): %v", ev, err)
	}
	if out.Applied || out.Replay {
		t.Fatalf("Apply(%T): applied=%v replay=%v, want rejection %s", ev, out.Applied, out.Replay, wantCode)
	}
	if out.Code != wantCode {
		t.Fatalf("Apply(%T): code=%s want=%s (reason=%v)", ev, out.Code, wantCode, out.Reason)
	}
	return out
}

// fund mines proofs until the principal holds at least min balance.
func fund(t *testing.T, s *State, refs *refSeq, principal PublicKey, min uint64) {
	t.Helper()
	for s.Balance(principal) < min {
		nonce := mineNonce(t, s, principal)
		mustApply(t, s, protocol.SubmitPowEvent{Nonce: nonce}, refs.next(principal))
	}
}
