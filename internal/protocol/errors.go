package protocol

import "errors"

// Decode failures. All of them mean the transaction is rejected and the
// chain continues; none is fatal.
var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrSchemaViolation  = errors.New("schema violation")
	ErrFieldTooLarge    = errors.New("field too large")
)

// Rejection codes carried in the journal, the audit log and the
// observer feed.
const (
	CodeDecode              = "E_DECODE"
	CodeUnknownScope        = "E_UNKNOWN_SCOPE"
	CodeUnauthorized        = "E_UNAUTHORIZED"
	CodeInsufficientBalance = "E_INSUFFICIENT_BALANCE"
	CodeDuplicateProof      = "E_DUPLICATE_PROOF"
	CodeInvalidProof        = "E_INVALID_PROOF"
	CodeNameTaken           = "E_NAME_TAKEN"
	CodeCorruptedChain      = "E_CORRUPTED_CHAIN"
)

var knownRejectionCodes = map[string]struct{}{
	CodeDecode:              {},
	CodeUnknownScope:        {},
	CodeUnauthorized:        {},
	CodeInsufficientBalance: {},
	CodeDuplicateProof:      {},
	CodeInvalidProof:        {},
	CodeNameTaken:           {},
	CodeCorruptedChain:      {},
}

func KnownRejectionCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownRejectionCodes[code]
	return ok
}
