package space

import (
	"crypto/sha256"
	"math/bits"
)

// proofHash binds a proof-of-work nonce to this space and principal so
// that proofs cannot be replayed across spaces or submitters.
func (s *State) proofHash(principal PublicKey, nonce []byte) Hash {
	h := sha256.New()
	h.Write(s.cfg.RootBlock[:])
	h.Write(principal[:])
	h.Write(nonce)
	var out Hash
	h.Sum(out[:0])
	return out
}

func leadingZeroBits(h Hash) int {
	n := 0
	for _, b := range h {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}

// credit validates a proof-of-work submission and, on success, adds the
// configured reward to the principal's balance.
func (s *State) credit(principal PublicKey, nonce []byte) error {
	proof := s.proofHash(principal, nonce)
	if leadingZeroBits(proof) < s.tune.PowDifficultyBits {
		return ErrInvalidProof
	}
	if _, dup := s.spentProofs[proof]; dup {
		return ErrDuplicateProof
	}
	s.spentProofs[proof] = struct{}{}
	s.balances[principal] += s.tune.PowReward
	return nil
}

// debit removes amount from the principal's balance. Balances never go
// negative: an action costing more than the balance is rejected whole.
func (s *State) debit(principal PublicKey, amount uint64) error {
	if s.balances[principal] < amount {
		return ErrInsufficientBalance
	}
	s.balances[principal] -= amount
	return nil
}

// Balance reads the current anti-abuse balance of a principal.
func (s *State) Balance(principal PublicKey) uint64 {
	return s.balances[principal]
}
