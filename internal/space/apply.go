package space

import (
	"fmt"

	"flowerchat.dev/internal/protocol"
)

// Apply folds one decoded event into the state.
//
// The check order is fixed: replay detection, scope resolution, ban and
// permission checks, balance debit, then the effect. Debit and effect
// commit together or not at all; a rejected event leaves state exactly
// as it was.
//
// The returned error is non-nil only for a corrupted input stream, in
// which case projection for this space must halt.
func (s *State) Apply(ev protocol.Event, ref Reference) (Outcome, error) {
	var zero Hash
	if s.cfg.RootBlock == zero {
		return Outcome{}, fmt.Errorf("%w: space has no root block", ErrCorruptedChain)
	}

	key := refKey{Block: ref.Block, Tx: ref.Tx}
	if _, dup := s.seen[key]; dup {
		return Outcome{Replay: true}, nil
	}

	var out Outcome
	var err error
	switch e := ev.(type) {
	case protocol.CreatePublicRoomEvent:
		out = s.applyCreateRoom(e, ref)
	case protocol.PublicMessageEvent:
		out = s.applyPublicMessage(e, ref)
	case protocol.RenameRoomEvent:
		out = s.applyRenameRoom(e, ref)
	case protocol.DeleteRoomEvent:
		out = s.applyDeleteRoom(e, ref)
	case protocol.DeleteMessageEvent:
		out = s.applyDeleteMessage(e, ref)
	case protocol.BanUserEvent:
		out = s.applyBanUser(e, ref)
	case protocol.RenameUserEvent:
		out = s.applyRenameUser(e, ref)
	case protocol.GrantRoleEvent:
		out = s.applyGrantRole(e, ref)
	case protocol.SubmitPowEvent:
		out = s.applySubmitPow(e, ref)
	default:
		err = fmt.Errorf("%w: unhandled event %T", ErrCorruptedChain, ev)
	}
	if err != nil {
		return Outcome{}, err
	}
	if out.Applied {
		s.seen[key] = struct{}{}
		s.applied++
	}
	return out, nil
}

func (s *State) applyCreateRoom(e protocol.CreatePublicRoomEvent, ref Reference) Outcome {
	if !s.Authorized(ActionCreateRoom, SpaceScope(), ref.Author) {
		return reject(ErrUnauthorized)
	}
	// Balance is checked before the name collision, so a broke
	// principal sees E_INSUFFICIENT_BALANCE even for a taken name. The
	// debit itself commits only together with the room.
	if s.balances[ref.Author] < s.tune.Costs.CreateRoom {
		return reject(ErrInsufficientBalance)
	}
	if _, exists := s.rooms[e.Name]; exists {
		return reject(ErrNameTaken)
	}
	if err := s.debit(ref.Author, s.tune.Costs.CreateRoom); err != nil {
		return reject(err)
	}
	room := &Room{
		Name:  e.Name,
		Title: e.Name,
		Ref:   ref,
		Perms: DefaultRoomPermissions(),
		Roles: map[PublicKey]Role{},
		Bans:  map[PublicKey]bool{},
		Seq:   s.applied,
	}
	s.rooms[e.Name] = room
	s.roomOrder = append(s.roomOrder, e.Name)
	return Outcome{Applied: true}
}

func (s *State) applyPublicMessage(e protocol.PublicMessageEvent, ref Reference) Outcome {
	scope := RoomScope(e.RoomName)
	if _, ok := s.rooms[e.RoomName]; !ok {
		return reject(ErrUnknownScope)
	}
	if !s.Authorized(ActionSendMessage, scope, ref.Author) {
		return reject(ErrUnauthorized)
	}
	if err := s.debit(ref.Author, s.tune.Costs.PublicMessage); err != nil {
		return reject(err)
	}
	msg := &Message{
		RoomName: e.RoomName,
		Content:  e.Content,
		Ref:      ref,
		Seq:      s.applied,
	}
	s.messages[e.RoomName] = append(s.messages[e.RoomName], msg)
	return Outcome{Applied: true}
}

func (s *State) applyRenameRoom(e protocol.RenameRoomEvent, ref Reference) Outcome {
	room, ok := s.rooms[e.RoomName]
	if !ok {
		return reject(ErrUnknownScope)
	}
	// Room rename and delete are space-administrative actions; the
	// space table governs them even for room-level principals.
	if !s.Authorized(ActionRenameRoom, SpaceScope(), ref.Author) {
		return reject(ErrUnauthorized)
	}
	room.Title = e.Title
	return Outcome{Applied: true}
}

func (s *State) applyDeleteRoom(e protocol.DeleteRoomEvent, ref Reference) Outcome {
	if _, ok := s.rooms[e.RoomName]; !ok {
		return reject(ErrUnknownScope)
	}
	if !s.Authorized(ActionDeleteRoom, SpaceScope(), ref.Author) {
		return reject(ErrUnauthorized)
	}
	// The room's messages stay in the immutable ledger but drop out of
	// the projection, together with room-scoped grants and bans.
	delete(s.rooms, e.RoomName)
	delete(s.messages, e.RoomName)
	for i, name := range s.roomOrder {
		if name == e.RoomName {
			s.roomOrder = append(s.roomOrder[:i], s.roomOrder[i+1:]...)
			break
		}
	}
	return Outcome{Applied: true}
}

func (s *State) applyDeleteMessage(e protocol.DeleteMessageEvent, ref Reference) Outcome {
	if _, ok := s.rooms[e.RoomName]; !ok {
		return reject(ErrUnknownScope)
	}
	msgs := s.messages[e.RoomName]
	idx := -1
	for i, m := range msgs {
		if m.Ref.Block == e.Block && m.Ref.Tx == e.Tx {
			idx = i
			break
		}
	}
	if idx < 0 {
		return reject(ErrUnknownScope)
	}
	sender := msgs[idx].Ref.Author
	if sender != ref.Author && !s.Authorized(ActionDeleteMessage, RoomScope(e.RoomName), ref.Author) {
		return reject(ErrUnauthorized)
	}
	if sender == ref.Author && s.Banned(RoomScope(e.RoomName), ref.Author) {
		return reject(ErrUnauthorized)
	}
	s.messages[e.RoomName] = append(msgs[:idx], msgs[idx+1:]...)
	return Outcome{Applied: true}
}

func (s *State) applyBanUser(e protocol.BanUserEvent, ref Reference) Outcome {
	scope := SpaceScope()
	if e.RoomName != "" {
		if _, ok := s.rooms[e.RoomName]; !ok {
			return reject(ErrUnknownScope)
		}
		scope = RoomScope(e.RoomName)
	}
	if !s.Authorized(ActionBanUser, scope, ref.Author) {
		return reject(ErrUnauthorized)
	}
	// The chain author is unbannable, and nobody bans a peer or
	// superior.
	if e.Target == s.cfg.Author {
		return reject(ErrUnauthorized)
	}
	if s.RoleOf(scope, e.Target) >= s.RoleOf(scope, ref.Author) {
		return reject(ErrUnauthorized)
	}
	if scope.IsSpace() {
		s.spaceBans[e.Target] = true
	} else {
		s.rooms[e.RoomName].Bans[e.Target] = true
	}
	return Outcome{Applied: true}
}

func (s *State) applyRenameUser(e protocol.RenameUserEvent, ref Reference) Outcome {
	self := e.Target == ref.Author
	if !self && !s.Authorized(ActionRenameUser, SpaceScope(), ref.Author) {
		return reject(ErrUnauthorized)
	}
	if self && s.Banned(SpaceScope(), ref.Author) {
		return reject(ErrUnauthorized)
	}
	if err := s.debit(ref.Author, s.tune.Costs.RenameUser); err != nil {
		return reject(err)
	}
	s.nicknames[e.Target] = e.Nickname
	return Outcome{Applied: true}
}

func (s *State) applyGrantRole(e protocol.GrantRoleEvent, ref Reference) Outcome {
	if !KnownRole(e.Role) || Role(e.Role) >= RoleOwner {
		return reject(ErrUnauthorized)
	}
	scope := SpaceScope()
	if e.RoomName != "" {
		if _, ok := s.rooms[e.RoomName]; !ok {
			return reject(ErrUnknownScope)
		}
		scope = RoomScope(e.RoomName)
	}
	if !s.Authorized(ActionGrantRole, scope, ref.Author) {
		return reject(ErrUnauthorized)
	}
	// A grant must stay strictly below the granting actor.
	if Role(e.Role) >= s.RoleOf(scope, ref.Author) {
		return reject(ErrUnauthorized)
	}
	if scope.IsSpace() {
		s.spaceRoles[e.Target] = Role(e.Role)
	} else {
		s.rooms[e.RoomName].Roles[e.Target] = Role(e.Role)
	}
	return Outcome{Applied: true}
}

func (s *State) applySubmitPow(e protocol.SubmitPowEvent, ref Reference) Outcome {
	// Open to everyone, banned or not: minting balance is the way back
	// in for new principals.
	if err := s.credit(ref.Author, e.Nonce); err != nil {
		return reject(err)
	}
	return Outcome{Applied: true}
}
