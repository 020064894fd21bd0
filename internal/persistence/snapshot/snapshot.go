package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	Space   string `json:"space"` // root block hash, hex
	Applied uint64 `json:"applied"`
}

// SnapshotV1 captures a full SpaceState so projection can resume
// without re-folding from genesis.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Rules       string `json:"rules,omitempty"`

	Permissions SpacePermissionsV1 `json:"permissions"`

	Rooms    []RoomV1    `json:"rooms"`
	Messages []MessageV1 `json:"messages"`

	Roles     []RoleGrantV1 `json:"roles,omitempty"`
	Bans      []string      `json:"bans,omitempty"`
	Nicknames []NicknameV1  `json:"nicknames,omitempty"`
	Balances  []BalanceV1   `json:"balances,omitempty"`

	SpentProofs []string `json:"spent_proofs,omitempty"`
	Seen        []SeenV1 `json:"seen,omitempty"`

	// Operational parameters captured for deterministic resume.
	PowDifficultyBits int    `json:"pow_difficulty_bits"`
	PowReward         uint64 `json:"pow_reward"`
	CostCreateRoom    uint64 `json:"cost_create_room"`
	CostRenameUser    uint64 `json:"cost_rename_user"`
	CostPublicMessage uint64 `json:"cost_public_message"`
}

type SpacePermissionsV1 struct {
	RenameUser byte `json:"rename_user"`
	BanUser    byte `json:"ban_user"`
	CreateRoom byte `json:"create_room"`
	RenameRoom byte `json:"rename_room"`
	DeleteRoom byte `json:"delete_room"`
	GrantRole  byte `json:"grant_role"`
}

type RoomV1 struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Block  string `json:"block"`
	Tx     string `json:"tx"`
	Author string `json:"author"`
	Seq    uint64 `json:"seq"`

	PermBanUser       byte `json:"perm_ban_user"`
	PermDeleteMessage byte `json:"perm_delete_message"`

	Roles []RoleGrantV1 `json:"roles,omitempty"`
	Bans  []string      `json:"bans,omitempty"`
}

type MessageV1 struct {
	Room    string `json:"room"`
	Content string `json:"content"`
	Block   string `json:"block"`
	Tx      string `json:"tx"`
	Author  string `json:"author"`
	Seq     uint64 `json:"seq"`
}

type RoleGrantV1 struct {
	Principal string `json:"principal"`
	Role      byte   `json:"role"`
}

type NicknameV1 struct {
	Principal string `json:"principal"`
	Nickname  string `json:"nickname"`
}

type BalanceV1 struct {
	Principal string `json:"principal"`
	Balance   uint64 `json:"balance"`
}

type SeenV1 struct {
	Block string `json:"block"`
	Tx    string `json:"tx"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; the gob body repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Latest returns the newest *.snap.zst in dir by applied-count in the
// filename, or "" if none exist.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestApplied uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		applied, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || applied > bestApplied {
			bestApplied = applied
			best = filepath.Join(dir, name)
		}
	}
	return best
}
