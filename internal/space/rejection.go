package space

import (
	"errors"

	"flowerchat.dev/internal/protocol"
)

// Expected per-event rejection reasons. None of them is fatal to the
// projector; all are surfaced to the audit collaborator.
var (
	ErrUnknownScope        = errors.New("unknown scope")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateProof      = errors.New("duplicate proof")
	ErrInvalidProof        = errors.New("invalid proof")
	ErrNameTaken           = errors.New("room name taken")
)

// ErrCorruptedChain halts projection for the space: the external input
// stream broke an invariant and state integrity is gone.
var ErrCorruptedChain = errors.New("corrupted chain")

// Outcome reports what a single Apply did.
type Outcome struct {
	// Applied is true when the event mutated state.
	Applied bool

	// Replay is true when the reference was already seen and the event
	// was silently skipped.
	Replay bool

	// Code and Reason are set for rejected events.
	Code   string
	Reason error
}

func reject(err error) Outcome {
	return Outcome{Code: rejectionCode(err), Reason: err}
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownScope):
		return protocol.CodeUnknownScope
	case errors.Is(err, ErrUnauthorized):
		return protocol.CodeUnauthorized
	case errors.Is(err, ErrInsufficientBalance):
		return protocol.CodeInsufficientBalance
	case errors.Is(err, ErrDuplicateProof):
		return protocol.CodeDuplicateProof
	case errors.Is(err, ErrInvalidProof):
		return protocol.CodeInvalidProof
	case errors.Is(err, ErrNameTaken):
		return protocol.CodeNameTaken
	case errors.Is(err, ErrCorruptedChain):
		return protocol.CodeCorruptedChain
	}
	return protocol.CodeDecode
}
