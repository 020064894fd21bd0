package space

import (
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/tuning"
)

// Ledger primitives, re-exported for callers of the engine.
type (
	Hash      = protocol.Hash
	PublicKey = protocol.PublicKey
	Reference = protocol.Reference
)

// Config is the immutable identity of a space: the hash of its root
// block and the public key of the root block's author.
type Config struct {
	RootBlock Hash
	Author    PublicKey
	Title     string
}

type Metadata struct {
	Title       string
	Description string
	Rules       string
}

// SpacePermissions is the minimum-role table for space-wide actions.
// One field per recognized action; there is no open action registry.
type SpacePermissions struct {
	RenameUser Role
	BanUser    Role
	CreateRoom Role
	RenameRoom Role
	DeleteRoom Role
	GrantRole  Role
}

// RoomPermissions overrides the space table for room-scoped actions.
type RoomPermissions struct {
	BanUser       Role
	DeleteMessage Role
}

func DefaultSpacePermissions() SpacePermissions {
	return SpacePermissions{
		RenameUser: RoleModerator,
		BanUser:    RoleModerator,
		CreateRoom: RoleUser,
		RenameRoom: RoleModerator,
		DeleteRoom: RoleAdministrator,
		GrantRole:  RoleAdministrator,
	}
}

func DefaultRoomPermissions() RoomPermissions {
	return RoomPermissions{
		BanUser:       RoleModerator,
		DeleteMessage: RoleModerator,
	}
}

// Room is a named sub-scope within a space.
type Room struct {
	Name  string
	Title string
	Ref   Reference
	Perms RoomPermissions

	Roles map[PublicKey]Role
	Bans  map[PublicKey]bool

	// Seq is the creation position within this space's event stream.
	Seq uint64
}

// Message is a projected public room message.
type Message struct {
	RoomName string
	Content  string
	Ref      Reference
	Seq      uint64
}

type refKey struct {
	Block Hash
	Tx    Hash
}

// State is the projected, authoritative state of one space.
//
// State is single-threaded by design: all access must happen from the
// goroutine that folds the space's event stream. No locks are taken
// inside Apply.
type State struct {
	cfg  Config
	tune tuning.Tuning

	meta  Metadata
	perms SpacePermissions

	rooms     map[string]*Room
	roomOrder []string
	messages  map[string][]*Message

	spaceRoles map[PublicKey]Role
	spaceBans  map[PublicKey]bool
	nicknames  map[PublicKey]string

	balances    map[PublicKey]uint64
	spentProofs map[Hash]struct{}

	seen map[refKey]struct{}

	// applied counts committed events; used for message/room sequencing.
	applied uint64
}

func New(cfg Config, tune tuning.Tuning) *State {
	return &State{
		cfg:         cfg,
		tune:        tune,
		meta:        Metadata{Title: cfg.Title},
		perms:       DefaultSpacePermissions(),
		rooms:       map[string]*Room{},
		messages:    map[string][]*Message{},
		spaceRoles:  map[PublicKey]Role{},
		spaceBans:   map[PublicKey]bool{},
		nicknames:   map[PublicKey]string{},
		balances:    map[PublicKey]uint64{},
		spentProofs: map[Hash]struct{}{},
		seen:        map[refKey]struct{}{},
	}
}

func (s *State) Config() Config     { return s.cfg }
func (s *State) Metadata() Metadata { return s.meta }
func (s *State) Applied() uint64    { return s.applied }
