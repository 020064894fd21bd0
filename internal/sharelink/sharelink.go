// Package sharelink encodes and decodes space share links: a compact
// base64url string carrying the root block hash, the space author's
// public key and a list of bootstrap shard addresses.
package sharelink

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"flowerchat.dev/internal/protocol"
)

// Link format version 0: one version byte, then a zstd stream of
// 32-byte root hash, 33-byte author key and repeated
// (u16le length, address bytes) shard entries.
const formatVersion = 0

var (
	ErrBadBase64 = errors.New("sharelink: invalid base64")
	ErrBadFormat = errors.New("sharelink: invalid link format")
)

var b64 = base64.RawURLEncoding

var (
	zenc *zstd.Encoder
	zdec *zstd.Decoder
)

func init() {
	var err error
	zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic(err)
	}
	zdec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
	if err != nil {
		panic(err)
	}
}

// Link identifies a space and how to reach it.
type Link struct {
	Root   protocol.Hash
	Author protocol.PublicKey
	Shards []string
}

// Encode serializes the link to its base64url form.
func (l Link) Encode() string {
	var body bytes.Buffer
	body.Write(l.Root[:])
	body.Write(l.Author[:])
	for _, addr := range l.Shards {
		if len(addr) > 0xFFFF {
			continue
		}
		var n [2]byte
		binary.LittleEndian.PutUint16(n[:], uint16(len(addr)))
		body.Write(n[:])
		body.WriteString(addr)
	}

	out := make([]byte, 1, 1+body.Len())
	out[0] = formatVersion
	out = zenc.EncodeAll(body.Bytes(), out)
	return b64.EncodeToString(out)
}

// Decode parses a base64url share link.
func Decode(s string) (Link, error) {
	raw, err := b64.DecodeString(s)
	if err != nil {
		return Link{}, ErrBadBase64
	}
	if len(raw) == 0 {
		return Link{}, ErrBadFormat
	}
	if raw[0] != formatVersion {
		return Link{}, fmt.Errorf("%w: unknown version %d", ErrBadFormat, raw[0])
	}

	body, err := zdec.DecodeAll(raw[1:], nil)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if len(body) < 32+33 {
		return Link{}, ErrBadFormat
	}
	var l Link
	copy(l.Root[:], body[:32])
	copy(l.Author[:], body[32:65])

	i := 65
	for i < len(body) {
		if i+2 > len(body) {
			return Link{}, ErrBadFormat
		}
		n := int(binary.LittleEndian.Uint16(body[i : i+2]))
		i += 2
		if i+n > len(body) {
			return Link{}, ErrBadFormat
		}
		l.Shards = append(l.Shards, string(body[i:i+n]))
		i += n
	}
	return l, nil
}
