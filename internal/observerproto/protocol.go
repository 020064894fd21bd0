package observerproto

import "flowerchat.dev/internal/space"

// Version is the observer protocol version (separate from the ingest API).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Hex root block hash; empty subscribes to every space.
	Space string `json:"space,omitempty"`

	// Include rejected transactions in the feed, not just applied ones.
	Rejections bool `json:"rejections,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Spaces          []SpaceInfo `json:"spaces"`
}

type SpaceInfo struct {
	Root    string `json:"root"`
	Author  string `json:"author"`
	Title   string `json:"title,omitempty"`
	Applied uint64 `json:"applied"`
	Rooms   int    `json:"rooms"`
	Digest  string `json:"digest"`
}

// Server -> Client. One projected transaction.
type EntryMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Entry           space.JournalEntry `json:"entry"`
}
