package observerproto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"flowerchat.dev/internal/space"
)

// The wire structs must stay in lockstep with the published schemas.

func validate(t *testing.T, schemaPath string, v any) error {
	t.Helper()
	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var loose any
	if err := json.Unmarshal(b, &loose); err != nil {
		t.Fatal(err)
	}
	return schema.Validate(loose)
}

func TestSubscribeMatchesSchema(t *testing.T) {
	msg := SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: Version,
		Space:           strings.Repeat("a", 64),
		Rejections:      true,
	}
	if err := validate(t, "../../schemas/observer_subscribe.schema.json", msg); err != nil {
		t.Fatal(err)
	}

	msg.Space = ""
	if err := validate(t, "../../schemas/observer_subscribe.schema.json", msg); err != nil {
		t.Fatal(err)
	}

	msg.Space = "not-hex"
	if err := validate(t, "../../schemas/observer_subscribe.schema.json", msg); err == nil {
		t.Fatal("bad space filter should not validate")
	}
}

func TestEntryMatchesSchema(t *testing.T) {
	entry := space.JournalEntry{
		Seq:     7,
		Space:   strings.Repeat("a", 64),
		Block:   strings.Repeat("b", 64),
		Tx:      strings.Repeat("c", 64),
		Author:  "02" + strings.Repeat("d", 64),
		Payload: []byte{0x01, 0x02},
		Kind:    "v1.rooms.public_message",
		Applied: true,
		Digest:  strings.Repeat("e", 64),
	}
	msg := EntryMsg{Type: "ENTRY", ProtocolVersion: Version, Entry: entry}
	if err := validate(t, "../../schemas/observer_entry.schema.json", msg); err != nil {
		t.Fatal(err)
	}

	rejected := entry
	rejected.Applied = false
	rejected.Code = "E_UNAUTHORIZED"
	rejected.Detail = "role user below moderator"
	msg.Entry = rejected
	if err := validate(t, "../../schemas/observer_entry.schema.json", msg); err != nil {
		t.Fatal(err)
	}

	bad := entry
	bad.Code = "not-a-code"
	msg.Entry = bad
	if err := validate(t, "../../schemas/observer_entry.schema.json", msg); err == nil {
		t.Fatal("malformed code should not validate")
	}
}
