package space

// JournalEntry is one projected transaction, exactly as the runner saw
// it: reference, raw payload and outcome. Replaying a journal from
// genesis must reproduce every digest.
type JournalEntry struct {
	Seq     uint64 `json:"seq"`
	Space   string `json:"space"`
	Block   string `json:"block"`
	Tx      string `json:"tx"`
	Author  string `json:"author"`
	Payload []byte `json:"payload"`
	Kind    string `json:"kind,omitempty"`
	Applied bool   `json:"applied"`
	Replay  bool   `json:"replay,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Digest  string `json:"digest"`
}

// AuditEntry records one rejection for the observability collaborator.
type AuditEntry struct {
	Seq    uint64 `json:"seq"`
	Space  string `json:"space"`
	Block  string `json:"block"`
	Tx     string `json:"tx"`
	Author string `json:"author"`
	Kind   string `json:"kind,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
