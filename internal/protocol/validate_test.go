package protocol

import (
	"strings"
	"testing"
)

func TestNormalizeRoomName(t *testing.T) {
	valid := []string{
		"a",
		"room",
		"Room42",
		"my-room",
		"a-b-c",
		"a--b",
		"  padded  ",
		strings.Repeat("x", MaxRoomNameLen),
	}
	for _, name := range valid {
		if _, ok := NormalizeRoomName(name); !ok {
			t.Errorf("NormalizeRoomName(%q) = invalid, want valid", name)
		}
	}

	invalid := []string{
		"",
		"   ",
		"-room",
		"room-",
		"-",
		"my room",
		"room!",
		"комната",
		"room\n",
		strings.Repeat("x", MaxRoomNameLen+1),
	}
	for _, name := range invalid {
		if got, ok := NormalizeRoomName(name); ok {
			t.Errorf("NormalizeRoomName(%q) = %q, want invalid", name, got)
		}
	}
}

func TestNormalizeRoomNameTrims(t *testing.T) {
	got, ok := NormalizeRoomName("  general  ")
	if !ok || got != "general" {
		t.Fatalf("got %q ok=%v, want %q", got, ok, "general")
	}
}

func TestNormalizeMessage(t *testing.T) {
	if _, ok := NormalizeMessage("hello, world"); !ok {
		t.Error("plain message rejected")
	}
	if _, ok := NormalizeMessage(strings.Repeat("m", MaxMessageLen)); !ok {
		t.Error("max-length message rejected")
	}
	if got, ok := NormalizeMessage("  hi  "); !ok || got != "hi" {
		t.Errorf("got %q ok=%v, want trimmed %q", got, ok, "hi")
	}

	for _, bad := range []string{
		"",
		"   ",
		"line\nbreak",
		"tab\there",
		"del\x7f",
		"bell\x07",
		strings.Repeat("m", MaxMessageLen+1),
	} {
		if _, ok := NormalizeMessage(bad); ok {
			t.Errorf("NormalizeMessage(%q) accepted, want rejection", bad)
		}
	}

	// Non-ASCII text is fine; only ASCII control bytes are banned.
	if _, ok := NormalizeMessage("привет 😀"); !ok {
		t.Error("unicode message rejected")
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got, ok := NormalizeLabel("  My Space  ", MaxTitleLen); !ok || got != "My Space" {
		t.Errorf("got %q ok=%v", got, ok)
	}
	if _, ok := NormalizeLabel(strings.Repeat("t", MaxTitleLen+1), MaxTitleLen); ok {
		t.Error("over-limit label accepted")
	}
	if _, ok := NormalizeLabel("ctrl\x01", MaxNicknameLen); ok {
		t.Error("control char label accepted")
	}
}
