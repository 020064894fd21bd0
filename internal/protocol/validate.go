package protocol

import (
	"regexp"
	"strings"
)

// Room names: latin letters and digits, dashes only in-between, 1..=64
// bytes. Length is checked separately from the pattern.
var roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9]+([a-zA-Z0-9-]*[a-zA-Z0-9]+)?$`)

// NormalizeRoomName trims the name and reports whether it is a valid
// public room name.
func NormalizeRoomName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > MaxRoomNameLen {
		return "", false
	}
	if !roomNameRe.MatchString(name) {
		return "", false
	}
	return name, true
}

// NormalizeMessage trims the content and reports whether it is a valid
// room message: 1..=1024 bytes, no ASCII control characters.
func NormalizeMessage(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if len(content) < 1 || len(content) > MaxMessageLen {
		return "", false
	}
	for _, c := range content {
		if c < 0x20 || c == 0x7f {
			return "", false
		}
	}
	return content, true
}

// NormalizeLabel validates titles and nicknames: 1..=max bytes after
// trimming, no ASCII control characters.
func NormalizeLabel(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 1 || len(s) > max {
		return "", false
	}
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return "", false
		}
	}
	return s, true
}
