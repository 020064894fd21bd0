package space

import (
	"fmt"
	"sort"

	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/tuning"
)

const snapshotVersion = 1

// ExportSnapshot captures the full state for off-thread persistence.
// Must be called from the fold goroutine.
func (s *State) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshotVersion,
			Space:   s.cfg.RootBlock.Hex(),
			Applied: s.applied,
		},
		Author:      s.cfg.Author.Hex(),
		Title:       s.meta.Title,
		Description: s.meta.Description,
		Rules:       s.meta.Rules,
		Permissions: snapshot.SpacePermissionsV1{
			RenameUser: byte(s.perms.RenameUser),
			BanUser:    byte(s.perms.BanUser),
			CreateRoom: byte(s.perms.CreateRoom),
			RenameRoom: byte(s.perms.RenameRoom),
			DeleteRoom: byte(s.perms.DeleteRoom),
			GrantRole:  byte(s.perms.GrantRole),
		},
		Roles:             exportRoles(s.spaceRoles),
		Bans:              exportBans(s.spaceBans),
		PowDifficultyBits: s.tune.PowDifficultyBits,
		PowReward:         s.tune.PowReward,
		CostCreateRoom:    s.tune.Costs.CreateRoom,
		CostRenameUser:    s.tune.Costs.RenameUser,
		CostPublicMessage: s.tune.Costs.PublicMessage,
	}

	for _, name := range s.roomOrder {
		room := s.rooms[name]
		snap.Rooms = append(snap.Rooms, snapshot.RoomV1{
			Name:              room.Name,
			Title:             room.Title,
			Block:             room.Ref.Block.Hex(),
			Tx:                room.Ref.Tx.Hex(),
			Author:            room.Ref.Author.Hex(),
			Seq:               room.Seq,
			PermBanUser:       byte(room.Perms.BanUser),
			PermDeleteMessage: byte(room.Perms.DeleteMessage),
			Roles:             exportRoles(room.Roles),
			Bans:              exportBans(room.Bans),
		})
		for _, m := range s.messages[name] {
			snap.Messages = append(snap.Messages, snapshot.MessageV1{
				Room:    m.RoomName,
				Content: m.Content,
				Block:   m.Ref.Block.Hex(),
				Tx:      m.Ref.Tx.Hex(),
				Author:  m.Ref.Author.Hex(),
				Seq:     m.Seq,
			})
		}
	}

	for _, k := range sortedKeys(s.nicknames) {
		snap.Nicknames = append(snap.Nicknames, snapshot.NicknameV1{
			Principal: k.Hex(),
			Nickname:  s.nicknames[k],
		})
	}
	for _, k := range sortedKeys(s.balances) {
		snap.Balances = append(snap.Balances, snapshot.BalanceV1{
			Principal: k.Hex(),
			Balance:   s.balances[k],
		})
	}

	proofs := make([]string, 0, len(s.spentProofs))
	for p := range s.spentProofs {
		proofs = append(proofs, p.Hex())
	}
	sort.Strings(proofs)
	snap.SpentProofs = proofs

	seen := make([]snapshot.SeenV1, 0, len(s.seen))
	for k := range s.seen {
		seen = append(seen, snapshot.SeenV1{Block: k.Block.Hex(), Tx: k.Tx.Hex()})
	}
	sort.Slice(seen, func(i, j int) bool {
		if seen[i].Block != seen[j].Block {
			return seen[i].Block < seen[j].Block
		}
		return seen[i].Tx < seen[j].Tx
	})
	snap.Seen = seen

	return snap
}

// FromSnapshot rebuilds a State from a snapshot. The snapshot carries
// the tuning that was in effect, so a resumed fold stays deterministic
// even if the config file changed meanwhile.
func FromSnapshot(snap snapshot.SnapshotV1) (*State, error) {
	if snap.Header.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	root, err := protocol.ParseHash(snap.Header.Space)
	if err != nil {
		return nil, fmt.Errorf("snapshot space: %w", err)
	}
	author, err := protocol.ParsePublicKey(snap.Author)
	if err != nil {
		return nil, fmt.Errorf("snapshot author: %w", err)
	}

	s := New(Config{RootBlock: root, Author: author, Title: snap.Title}, tuningFromSnapshot(snap))
	s.applied = snap.Header.Applied
	s.meta = Metadata{Title: snap.Title, Description: snap.Description, Rules: snap.Rules}
	s.perms = SpacePermissions{
		RenameUser: Role(snap.Permissions.RenameUser),
		BanUser:    Role(snap.Permissions.BanUser),
		CreateRoom: Role(snap.Permissions.CreateRoom),
		RenameRoom: Role(snap.Permissions.RenameRoom),
		DeleteRoom: Role(snap.Permissions.DeleteRoom),
		GrantRole:  Role(snap.Permissions.GrantRole),
	}

	if s.spaceRoles, err = importRoles(snap.Roles); err != nil {
		return nil, err
	}
	if s.spaceBans, err = importBans(snap.Bans); err != nil {
		return nil, err
	}

	for _, rv := range snap.Rooms {
		ref, err := importRef(rv.Block, rv.Tx, rv.Author)
		if err != nil {
			return nil, fmt.Errorf("room %q: %w", rv.Name, err)
		}
		room := &Room{
			Name:  rv.Name,
			Title: rv.Title,
			Ref:   ref,
			Perms: RoomPermissions{
				BanUser:       Role(rv.PermBanUser),
				DeleteMessage: Role(rv.PermDeleteMessage),
			},
			Seq: rv.Seq,
		}
		if room.Roles, err = importRoles(rv.Roles); err != nil {
			return nil, fmt.Errorf("room %q: %w", rv.Name, err)
		}
		if room.Bans, err = importBans(rv.Bans); err != nil {
			return nil, fmt.Errorf("room %q: %w", rv.Name, err)
		}
		s.rooms[rv.Name] = room
		s.roomOrder = append(s.roomOrder, rv.Name)
	}

	for _, mv := range snap.Messages {
		ref, err := importRef(mv.Block, mv.Tx, mv.Author)
		if err != nil {
			return nil, fmt.Errorf("message in %q: %w", mv.Room, err)
		}
		s.messages[mv.Room] = append(s.messages[mv.Room], &Message{
			RoomName: mv.Room,
			Content:  mv.Content,
			Ref:      ref,
			Seq:      mv.Seq,
		})
	}

	for _, nv := range snap.Nicknames {
		k, err := protocol.ParsePublicKey(nv.Principal)
		if err != nil {
			return nil, err
		}
		s.nicknames[k] = nv.Nickname
	}
	for _, bv := range snap.Balances {
		k, err := protocol.ParsePublicKey(bv.Principal)
		if err != nil {
			return nil, err
		}
		s.balances[k] = bv.Balance
	}
	for _, p := range snap.SpentProofs {
		h, err := protocol.ParseHash(p)
		if err != nil {
			return nil, err
		}
		s.spentProofs[h] = struct{}{}
	}
	for _, sv := range snap.Seen {
		block, err := protocol.ParseHash(sv.Block)
		if err != nil {
			return nil, err
		}
		tx, err := protocol.ParseHash(sv.Tx)
		if err != nil {
			return nil, err
		}
		s.seen[refKey{Block: block, Tx: tx}] = struct{}{}
	}

	return s, nil
}

func tuningFromSnapshot(snap snapshot.SnapshotV1) tuning.Tuning {
	t := tuning.Defaults()
	t.PowDifficultyBits = snap.PowDifficultyBits
	t.PowReward = snap.PowReward
	t.Costs.CreateRoom = snap.CostCreateRoom
	t.Costs.RenameUser = snap.CostRenameUser
	t.Costs.PublicMessage = snap.CostPublicMessage
	return t
}

func exportRoles(m map[PublicKey]Role) []snapshot.RoleGrantV1 {
	keys := sortedKeys(m)
	out := make([]snapshot.RoleGrantV1, 0, len(keys))
	for _, k := range keys {
		out = append(out, snapshot.RoleGrantV1{Principal: k.Hex(), Role: byte(m[k])})
	}
	return out
}

func importRoles(grants []snapshot.RoleGrantV1) (map[PublicKey]Role, error) {
	out := make(map[PublicKey]Role, len(grants))
	for _, g := range grants {
		k, err := protocol.ParsePublicKey(g.Principal)
		if err != nil {
			return nil, err
		}
		if !KnownRole(g.Role) {
			return nil, fmt.Errorf("unknown role %d for %s", g.Role, g.Principal)
		}
		out[k] = Role(g.Role)
	}
	return out, nil
}

func exportBans(m map[PublicKey]bool) []string {
	out := make([]string, 0, len(m))
	for k, banned := range m {
		if banned {
			out = append(out, k.Hex())
		}
	}
	sort.Strings(out)
	return out
}

func importBans(bans []string) (map[PublicKey]bool, error) {
	out := make(map[PublicKey]bool, len(bans))
	for _, b := range bans {
		k, err := protocol.ParsePublicKey(b)
		if err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, nil
}

func importRef(block, tx, author string) (Reference, error) {
	var ref Reference
	var err error
	if ref.Block, err = protocol.ParseHash(block); err != nil {
		return ref, err
	}
	if ref.Tx, err = protocol.ParseHash(tx); err != nil {
		return ref, err
	}
	if ref.Author, err = protocol.ParsePublicKey(author); err != nil {
		return ref, err
	}
	return ref, nil
}
