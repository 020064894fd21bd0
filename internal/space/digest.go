package space

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Digest is a deterministic sha256 over the whole projected state. Two
// folds of the same event sequence produce the same digest; the replay
// tool relies on this to verify journals.
func (s *State) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	h.Write(s.cfg.RootBlock[:])
	h.Write(s.cfg.Author[:])
	digestWriteU64(h, &tmp, s.applied)
	digestWriteString(h, &tmp, s.meta.Title)
	digestWriteString(h, &tmp, s.meta.Description)
	digestWriteString(h, &tmp, s.meta.Rules)

	s.digestRooms(h, &tmp)
	s.digestMessages(h, &tmp)
	s.digestPrincipals(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *State) digestRooms(h hash.Hash, tmp *[8]byte) {
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	digestWriteU64(h, tmp, uint64(len(names)))
	for _, name := range names {
		room := s.rooms[name]
		digestWriteString(h, tmp, room.Name)
		digestWriteString(h, tmp, room.Title)
		h.Write(room.Ref.Block[:])
		h.Write(room.Ref.Tx[:])
		h.Write(room.Ref.Author[:])
		digestWriteU64(h, tmp, room.Seq)
		h.Write([]byte{byte(room.Perms.BanUser), byte(room.Perms.DeleteMessage)})
		digestRoleMap(h, tmp, room.Roles)
		digestBanMap(h, tmp, room.Bans)
	}
}

func (s *State) digestMessages(h hash.Hash, tmp *[8]byte) {
	names := make([]string, 0, len(s.messages))
	for name := range s.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msgs := s.messages[name]
		digestWriteString(h, tmp, name)
		digestWriteU64(h, tmp, uint64(len(msgs)))
		for _, m := range msgs {
			h.Write(m.Ref.Block[:])
			h.Write(m.Ref.Tx[:])
			h.Write(m.Ref.Author[:])
			digestWriteU64(h, tmp, m.Seq)
			digestWriteString(h, tmp, m.Content)
		}
	}
}

func (s *State) digestPrincipals(h hash.Hash, tmp *[8]byte) {
	digestRoleMap(h, tmp, s.spaceRoles)
	digestBanMap(h, tmp, s.spaceBans)

	nicks := sortedKeys(s.nicknames)
	digestWriteU64(h, tmp, uint64(len(nicks)))
	for _, k := range nicks {
		h.Write(k[:])
		digestWriteString(h, tmp, s.nicknames[k])
	}

	balances := sortedKeys(s.balances)
	digestWriteU64(h, tmp, uint64(len(balances)))
	for _, k := range balances {
		h.Write(k[:])
		digestWriteU64(h, tmp, s.balances[k])
	}

	proofs := make([]string, 0, len(s.spentProofs))
	for p := range s.spentProofs {
		proofs = append(proofs, string(p[:]))
	}
	sort.Strings(proofs)
	digestWriteU64(h, tmp, uint64(len(proofs)))
	for _, p := range proofs {
		h.Write([]byte(p))
	}
}

func digestRoleMap(h hash.Hash, tmp *[8]byte, m map[PublicKey]Role) {
	keys := sortedKeys(m)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		h.Write(k[:])
		h.Write([]byte{byte(m[k])})
	}
}

func digestBanMap(h hash.Hash, tmp *[8]byte, m map[PublicKey]bool) {
	keys := make([]PublicKey, 0, len(m))
	for k, banned := range m {
		if banned {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		h.Write(k[:])
	}
}

func sortedKeys[V any](m map[PublicKey]V) []PublicKey {
	keys := make([]PublicKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	return keys
}

func lessKey(a, b PublicKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteString(h hash.Hash, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}
