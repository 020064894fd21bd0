package space

// RequiredRole looks up the minimum role for an action in a scope. Room
// actions without a room-level override fall back to the space table.
func (s *State) RequiredRole(action Action, scope Scope) Role {
	if !scope.IsSpace() {
		if room, ok := s.rooms[scope.RoomName()]; ok {
			switch action {
			case ActionBanUser:
				return room.Perms.BanUser
			case ActionDeleteMessage:
				return room.Perms.DeleteMessage
			case ActionSendMessage:
				return RoleUser
			}
		}
	}
	switch action {
	case ActionSendMessage:
		return RoleUser
	case ActionCreateRoom:
		return s.perms.CreateRoom
	case ActionRenameRoom:
		return s.perms.RenameRoom
	case ActionDeleteRoom:
		return s.perms.DeleteRoom
	case ActionDeleteMessage:
		return RoleModerator
	case ActionBanUser:
		return s.perms.BanUser
	case ActionRenameUser:
		return s.perms.RenameUser
	case ActionGrantRole:
		return s.perms.GrantRole
	}
	return RoleOwner
}

// Banned reports whether the principal is banned in the scope. A space
// ban also covers every room of the space.
func (s *State) Banned(scope Scope, principal PublicKey) bool {
	if s.spaceBans[principal] {
		return true
	}
	if scope.IsSpace() {
		return false
	}
	room, ok := s.rooms[scope.RoomName()]
	return ok && room.Bans[principal]
}

// Authorized is the single authorization entry point: the ban veto is
// checked first, then the role order.
func (s *State) Authorized(action Action, scope Scope, principal PublicKey) bool {
	if s.Banned(scope, principal) {
		return false
	}
	return s.RoleOf(scope, principal) >= s.RequiredRole(action, scope)
}
