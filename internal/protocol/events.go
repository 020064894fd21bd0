package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Event is one decoded entry of the closed event catalog.
type Event interface {
	Kind() Kind
}

type CreatePublicRoomEvent struct {
	Name string
}

type PublicMessageEvent struct {
	RoomName string
	Content  string
}

type RenameRoomEvent struct {
	RoomName string
	Title    string
}

type DeleteRoomEvent struct {
	RoomName string
}

// DeleteMessageEvent identifies the target message by its ledger
// reference. An empty room name is a schema violation.
type DeleteMessageEvent struct {
	RoomName string
	Block    Hash
	Tx       Hash
}

// BanUserEvent with an empty RoomName targets the space scope.
type BanUserEvent struct {
	RoomName string
	Target   PublicKey
}

type RenameUserEvent struct {
	Target   PublicKey
	Nickname string
}

// GrantRoleEvent with an empty RoomName targets the space scope.
type GrantRoleEvent struct {
	RoomName string
	Target   PublicKey
	Role     byte
}

type SubmitPowEvent struct {
	Nonce []byte
}

func (CreatePublicRoomEvent) Kind() Kind { return KindCreatePublicRoom }
func (PublicMessageEvent) Kind() Kind    { return KindPublicMessage }
func (RenameRoomEvent) Kind() Kind       { return KindRenameRoom }
func (DeleteRoomEvent) Kind() Kind       { return KindDeleteRoom }
func (DeleteMessageEvent) Kind() Kind    { return KindDeleteMessage }
func (BanUserEvent) Kind() Kind          { return KindBanUser }
func (RenameUserEvent) Kind() Kind       { return KindRenameUser }
func (GrantRoleEvent) Kind() Kind        { return KindGrantRole }
func (SubmitPowEvent) Kind() Kind        { return KindSubmitPow }

// Shared zstd coders for the small compressed text fields. The encoder
// level matches the original protocol frames.
var (
	zenc *zstd.Encoder
	zdec *zstd.Decoder
)

func init() {
	var err error
	zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic(fmt.Sprintf("protocol: zstd encoder: %v", err))
	}
	zdec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
	if err != nil {
		panic(fmt.Sprintf("protocol: zstd decoder: %v", err))
	}
}

// Decode parses a raw transaction payload into a typed event.
//
// Decode is a pure function of its input: it never touches state and
// never accepts an event whose fields violate the protocol limits.
func Decode(raw []byte) (Event, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSchemaViolation)
	}
	kind := Kind(raw[0])
	if !KnownKind(kind) {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownEventKind, raw[0])
	}
	r := bytes.NewReader(raw[1:])

	var (
		ev  Event
		err error
	)
	switch kind {
	case KindCreatePublicRoom:
		ev, err = decodeCreatePublicRoom(r)
	case KindPublicMessage:
		ev, err = decodePublicMessage(r)
	case KindRenameRoom:
		ev, err = decodeRenameRoom(r)
	case KindDeleteRoom:
		ev, err = decodeDeleteRoom(r)
	case KindDeleteMessage:
		ev, err = decodeDeleteMessage(r)
	case KindBanUser:
		ev, err = decodeBanUser(r)
	case KindRenameUser:
		ev, err = decodeRenameUser(r)
	case KindGrantRole:
		ev, err = decodeGrantRole(r)
	case KindSubmitPow:
		ev, err = decodeSubmitPow(r)
	}
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSchemaViolation, r.Len())
	}
	return ev, nil
}

// Encode serializes an event into its wire payload: a tag byte followed
// by the event's fields.
func Encode(ev Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ev.Kind()))

	switch e := ev.(type) {
	case CreatePublicRoomEvent:
		name, ok := NormalizeRoomName(e.Name)
		if !ok {
			return nil, fmt.Errorf("%w: room name %q", ErrSchemaViolation, e.Name)
		}
		writeCompressed8(&buf, []byte(name))
	case PublicMessageEvent:
		name, ok := NormalizeRoomName(e.RoomName)
		if !ok {
			return nil, fmt.Errorf("%w: room name %q", ErrSchemaViolation, e.RoomName)
		}
		content, ok := NormalizeMessage(e.Content)
		if !ok {
			return nil, fmt.Errorf("%w: message content", ErrSchemaViolation)
		}
		writeCompressed8(&buf, []byte(name))
		writeCompressed16(&buf, []byte(content))
	case RenameRoomEvent:
		name, ok := NormalizeRoomName(e.RoomName)
		if !ok {
			return nil, fmt.Errorf("%w: room name %q", ErrSchemaViolation, e.RoomName)
		}
		title, ok := NormalizeLabel(e.Title, MaxTitleLen)
		if !ok {
			return nil, fmt.Errorf("%w: room title", ErrSchemaViolation)
		}
		writeCompressed8(&buf, []byte(name))
		writeCompressed16(&buf, []byte(title))
	case DeleteRoomEvent:
		name, ok := NormalizeRoomName(e.RoomName)
		if !ok {
			return nil, fmt.Errorf("%w: room name %q", ErrSchemaViolation, e.RoomName)
		}
		writeCompressed8(&buf, []byte(name))
	case DeleteMessageEvent:
		name, ok := NormalizeRoomName(e.RoomName)
		if !ok {
			return nil, fmt.Errorf("%w: room name %q", ErrSchemaViolation, e.RoomName)
		}
		writeCompressed8(&buf, []byte(name))
		buf.Write(e.Block[:])
		buf.Write(e.Tx[:])
	case BanUserEvent:
		if err := writeOptionalRoom(&buf, e.RoomName); err != nil {
			return nil, err
		}
		buf.Write(e.Target[:])
	case RenameUserEvent:
		nick, ok := NormalizeLabel(e.Nickname, MaxNicknameLen)
		if !ok {
			return nil, fmt.Errorf("%w: nickname", ErrSchemaViolation)
		}
		buf.Write(e.Target[:])
		writeCompressed16(&buf, []byte(nick))
	case GrantRoleEvent:
		if err := writeOptionalRoom(&buf, e.RoomName); err != nil {
			return nil, err
		}
		buf.Write(e.Target[:])
		buf.WriteByte(e.Role)
	case SubmitPowEvent:
		if len(e.Nonce) < 1 || len(e.Nonce) > MaxNonceLen {
			return nil, fmt.Errorf("%w: nonce length %d", ErrSchemaViolation, len(e.Nonce))
		}
		buf.WriteByte(byte(len(e.Nonce)))
		buf.Write(e.Nonce)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventKind, ev)
	}
	return buf.Bytes(), nil
}

func decodeCreatePublicRoom(r *bytes.Reader) (Event, error) {
	name, err := readRoomName(r)
	if err != nil {
		return nil, err
	}
	return CreatePublicRoomEvent{Name: name}, nil
}

func decodePublicMessage(r *bytes.Reader) (Event, error) {
	name, err := readRoomName(r)
	if err != nil {
		return nil, err
	}
	raw, err := readCompressed16(r, MaxMessageLen)
	if err != nil {
		return nil, err
	}
	content, ok := NormalizeMessage(string(raw))
	if !ok {
		return nil, fmt.Errorf("%w: message content", ErrSchemaViolation)
	}
	return PublicMessageEvent{RoomName: name, Content: content}, nil
}

func decodeRenameRoom(r *bytes.Reader) (Event, error) {
	name, err := readRoomName(r)
	if err != nil {
		return nil, err
	}
	raw, err := readCompressed16(r, MaxTitleLen)
	if err != nil {
		return nil, err
	}
	title, ok := NormalizeLabel(string(raw), MaxTitleLen)
	if !ok {
		return nil, fmt.Errorf("%w: room title", ErrSchemaViolation)
	}
	return RenameRoomEvent{RoomName: name, Title: title}, nil
}

func decodeDeleteRoom(r *bytes.Reader) (Event, error) {
	name, err := readRoomName(r)
	if err != nil {
		return nil, err
	}
	return DeleteRoomEvent{RoomName: name}, nil
}

func decodeDeleteMessage(r *bytes.Reader) (Event, error) {
	name, err := readRoomName(r)
	if err != nil {
		return nil, err
	}
	var block, tx Hash
	if _, err := io.ReadFull(r, block[:]); err != nil {
		return nil, fmt.Errorf("%w: message block hash: %v", ErrSchemaViolation, err)
	}
	if _, err := io.ReadFull(r, tx[:]); err != nil {
		return nil, fmt.Errorf("%w: message transaction hash: %v", ErrSchemaViolation, err)
	}
	return DeleteMessageEvent{RoomName: name, Block: block, Tx: tx}, nil
}

func decodeBanUser(r *bytes.Reader) (Event, error) {
	name, err := readOptionalRoom(r)
	if err != nil {
		return nil, err
	}
	target, err := readPublicKey(r)
	if err != nil {
		return nil, err
	}
	return BanUserEvent{RoomName: name, Target: target}, nil
}

func decodeRenameUser(r *bytes.Reader) (Event, error) {
	target, err := readPublicKey(r)
	if err != nil {
		return nil, err
	}
	raw, err := readCompressed16(r, MaxNicknameLen)
	if err != nil {
		return nil, err
	}
	nick, ok := NormalizeLabel(string(raw), MaxNicknameLen)
	if !ok {
		return nil, fmt.Errorf("%w: nickname", ErrSchemaViolation)
	}
	return RenameUserEvent{Target: target, Nickname: nick}, nil
}

func decodeGrantRole(r *bytes.Reader) (Event, error) {
	name, err := readOptionalRoom(r)
	if err != nil {
		return nil, err
	}
	target, err := readPublicKey(r)
	if err != nil {
		return nil, err
	}
	role, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: role byte: %v", ErrSchemaViolation, err)
	}
	return GrantRoleEvent{RoomName: name, Target: target, Role: role}, nil
}

func decodeSubmitPow(r *bytes.Reader) (Event, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: nonce length: %v", ErrSchemaViolation, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty nonce", ErrSchemaViolation)
	}
	if int(n) > MaxNonceLen {
		return nil, fmt.Errorf("%w: nonce length %d", ErrFieldTooLarge, n)
	}
	nonce := make([]byte, n)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSchemaViolation, err)
	}
	return SubmitPowEvent{Nonce: nonce}, nil
}

func readRoomName(r *bytes.Reader) (string, error) {
	raw, err := readCompressed8(r, MaxRoomNameLen)
	if err != nil {
		return "", err
	}
	name, ok := NormalizeRoomName(string(raw))
	if !ok {
		return "", fmt.Errorf("%w: room name %q", ErrSchemaViolation, string(raw))
	}
	return name, nil
}

// readOptionalRoom reads a room name whose zero length means "space
// scope".
func readOptionalRoom(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: room name length: %v", ErrSchemaViolation, err)
	}
	if n == 0 {
		return "", nil
	}
	if err := r.UnreadByte(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return readRoomName(r)
}

func writeOptionalRoom(buf *bytes.Buffer, name string) error {
	if name == "" {
		buf.WriteByte(0)
		return nil
	}
	normalized, ok := NormalizeRoomName(name)
	if !ok {
		return fmt.Errorf("%w: room name %q", ErrSchemaViolation, name)
	}
	writeCompressed8(buf, []byte(normalized))
	return nil
}

func readPublicKey(r *bytes.Reader) (PublicKey, error) {
	var k PublicKey
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, fmt.Errorf("%w: public key: %v", ErrSchemaViolation, err)
	}
	return k, nil
}

func writeCompressed8(buf *bytes.Buffer, data []byte) {
	c := zenc.EncodeAll(data, nil)
	buf.WriteByte(byte(len(c)))
	buf.Write(c)
}

func writeCompressed16(buf *bytes.Buffer, data []byte) {
	c := zenc.EncodeAll(data, nil)
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(c)))
	buf.Write(n[:])
	buf.Write(c)
}

func readCompressed8(r *bytes.Reader, maxLen int) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: field length: %v", ErrSchemaViolation, err)
	}
	return readCompressedBody(r, int(n), maxLen)
}

func readCompressed16(r *bytes.Reader, maxLen int) ([]byte, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, fmt.Errorf("%w: field length: %v", ErrSchemaViolation, err)
	}
	return readCompressedBody(r, int(binary.LittleEndian.Uint16(n[:])), maxLen)
}

func readCompressedBody(r *bytes.Reader, n, maxLen int) ([]byte, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: empty field", ErrSchemaViolation)
	}
	c := make([]byte, n)
	if _, err := io.ReadFull(r, c); err != nil {
		return nil, fmt.Errorf("%w: field body: %v", ErrSchemaViolation, err)
	}
	data, err := zdec.DecodeAll(c, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrSchemaViolation, err)
	}
	if len(data) > maxLen {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFieldTooLarge, len(data), maxLen)
	}
	return data, nil
}
