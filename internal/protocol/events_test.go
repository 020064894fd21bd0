package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

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

func mustEncode(t *testing.T, ev Event) []byte {
	t.Helper()
	raw, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode(%T): %v", ev, err)
	}
	return raw
}

func TestCodecRoundTrip(t *testing.T) {
	events := []Event{
		CreatePublicRoomEvent{Name: "general"},
		PublicMessageEvent{RoomName: "general", Content: "hello, world"},
		RenameRoomEvent{RoomName: "general", Title: "General discussion"},
		DeleteRoomEvent{RoomName: "general"},
		DeleteMessageEvent{RoomName: "general", Block: testHash(0x11), Tx: testHash(0x22)},
		BanUserEvent{RoomName: "general", Target: testKey(0x33)},
		BanUserEvent{Target: testKey(0x44)}, // space scope
		RenameUserEvent{Target: testKey(0x55), Nickname: "alice"},
		GrantRoleEvent{RoomName: "general", Target: testKey(0x66), Role: 1},
		GrantRoleEvent{Target: testKey(0x77), Role: 2}, // space scope
		SubmitPowEvent{Nonce: []byte{1, 2, 3, 4}},
	}
	for _, ev := range events {
		raw := mustEncode(t, ev)
		if Kind(raw[0]) != ev.Kind() {
			t.Errorf("%T: tag byte %d, want %d", ev, raw[0], ev.Kind())
		}
		got, err := Decode(raw)
		if err != nil {
			t.Errorf("Decode(%T): %v", ev, err)
			continue
		}
		switch want := ev.(type) {
		case SubmitPowEvent:
			if !bytes.Equal(got.(SubmitPowEvent).Nonce, want.Nonce) {
				t.Errorf("SubmitPow nonce mismatch")
			}
		default:
			if got != ev {
				t.Errorf("round trip %T: got %#v want %#v", ev, got, ev)
			}
		}
	}
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	if !errors.Is(err, ErrUnknownEventKind) {
		t.Fatalf("got %v, want ErrUnknownEventKind", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	raw := mustEncode(t, DeleteRoomEvent{RoomName: "general"})
	raw = append(raw, 0x00)
	_, err := Decode(raw)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	raw := mustEncode(t, BanUserEvent{RoomName: "general", Target: testKey(0x33)})
	_, err := Decode(raw[:len(raw)-5])
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeRejectsOversizedField(t *testing.T) {
	// Hand-built payload: a compressed room name over the limit.
	var buf bytes.Buffer
	buf.WriteByte(byte(KindCreatePublicRoom))
	writeCompressed8(&buf, []byte(strings.Repeat("x", MaxRoomNameLen+1)))
	_, err := Decode(buf.Bytes())
	if !errors.Is(err, ErrFieldTooLarge) {
		t.Fatalf("got %v, want ErrFieldTooLarge", err)
	}
}

func TestDecodeRejectsInvalidRoomName(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindCreatePublicRoom))
	writeCompressed8(&buf, []byte("-bad-"))
	_, err := Decode(buf.Bytes())
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeRejectsControlCharMessage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindPublicMessage))
	writeCompressed8(&buf, []byte("general"))
	writeCompressed16(&buf, []byte("hi\x00there"))
	_, err := Decode(buf.Bytes())
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeRejectsCorruptZstd(t *testing.T) {
	raw := []byte{byte(KindCreatePublicRoom), 4, 0xDE, 0xAD, 0xBE, 0xEF}
	_, err := Decode(raw)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}

func TestEncodeValidates(t *testing.T) {
	cases := []Event{
		CreatePublicRoomEvent{Name: "-bad"},
		PublicMessageEvent{RoomName: "general", Content: ""},
		RenameUserEvent{Target: testKey(1), Nickname: strings.Repeat("n", MaxNicknameLen+1)},
		SubmitPowEvent{Nonce: nil},
		SubmitPowEvent{Nonce: bytes.Repeat([]byte{1}, MaxNonceLen+1)},
	}
	for _, ev := range cases {
		if _, err := Encode(ev); err == nil {
			t.Errorf("Encode(%#v): expected error", ev)
		}
	}
}

func TestKindNames(t *testing.T) {
	if got := KindPublicMessage.String(); got != "v1.rooms.user.public_message" {
		t.Errorf("KindPublicMessage = %q", got)
	}
	if KnownKind(Kind(200)) {
		t.Error("Kind(200) reported known")
	}
	if got := Kind(200).String(); got != "unknown(200)" {
		t.Errorf("unknown kind string = %q", got)
	}
}

func TestKnownRejectionCode(t *testing.T) {
	for _, code := range []string{
		CodeDecode, CodeUnknownScope, CodeUnauthorized, CodeInsufficientBalance,
		CodeDuplicateProof, CodeInvalidProof, CodeNameTaken, CodeCorruptedChain,
	} {
		if !KnownRejectionCode(code) {
			t.Errorf("code %s not known", code)
		}
	}
	if KnownRejectionCode("E_MADE_UP") {
		t.Error("bogus code accepted")
	}
}
