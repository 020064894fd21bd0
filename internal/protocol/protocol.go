package protocol

import (
	"encoding/hex"
	"fmt"
)

const Version = "1.0"

// Kind is the wire tag of an event. The tag is a single byte; the dotted
// names are used in journals, the observer feed and logs.
type Kind byte

const (
	KindCreatePublicRoom Kind = 0
	KindPublicMessage    Kind = 1
	KindRenameRoom       Kind = 2
	KindDeleteRoom       Kind = 3
	KindDeleteMessage    Kind = 4
	KindBanUser          Kind = 5
	KindRenameUser       Kind = 6
	KindGrantRole        Kind = 7
	KindSubmitPow        Kind = 8
)

var kindNames = map[Kind]string{
	KindCreatePublicRoom: "v1.rooms.user.create_public",
	KindPublicMessage:    "v1.rooms.user.public_message",
	KindRenameRoom:       "v1.rooms.moderation.rename",
	KindDeleteRoom:       "v1.rooms.moderation.delete",
	KindDeleteMessage:    "v1.rooms.moderation.delete_message",
	KindBanUser:          "v1.moderation.ban_user",
	KindRenameUser:       "v1.users.rename",
	KindGrantRole:        "v1.users.grant_role",
	KindSubmitPow:        "v1.mint.submit_pow",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(k))
}

func KnownKind(k Kind) bool {
	_, ok := kindNames[k]
	return ok
}

// Protocol field limits, in bytes after decompression and trimming.
const (
	MaxRoomNameLen = 64
	MaxMessageLen  = 1024
	MaxTitleLen    = 128
	MaxNicknameLen = 128
	MaxNonceLen    = 64
)

// Hash is a 32-byte block or transaction hash from the external ledger.
type Hash [32]byte

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// PublicKey is a pre-verified 33-byte compressed signer key.
type PublicKey [33]byte

func (k PublicKey) Hex() string { return hex.EncodeToString(k[:]) }

func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse public key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("parse public key: want %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Reference anchors an event to its origin in the ledger.
type Reference struct {
	Block  Hash
	Tx     Hash
	Author PublicKey
}
