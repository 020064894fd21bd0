package space

import "fmt"

// Role is the totally ordered permission level of a principal within a
// scope. Holding a role implies holding every role below it.
type Role uint8

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdministrator
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleAdministrator:
		return "administrator"
	case RoleOwner:
		return "owner"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func KnownRole(b byte) bool { return b <= byte(RoleOwner) }

// ParseRole accepts the canonical names plus the historical aliases.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user", "member":
		return RoleUser, nil
	case "moderator", "mod", "moder":
		return RoleModerator, nil
	case "administrator", "admin":
		return RoleAdministrator, nil
	case "owner", "creator", "author":
		return RoleOwner, nil
	}
	return RoleUser, fmt.Errorf("unknown role: %q", s)
}

// RoleOf resolves the effective role of a principal in a scope.
//
// The space's root author is owner everywhere; a room's creator is
// owner of that room. Otherwise the highest explicit grant in the scope
// applies, defaulting to user. Space and room grants are independent.
func (s *State) RoleOf(scope Scope, principal PublicKey) Role {
	if principal == s.cfg.Author {
		return RoleOwner
	}
	if scope.IsSpace() {
		return s.spaceRoles[principal]
	}
	room, ok := s.rooms[scope.RoomName()]
	if !ok {
		return RoleUser
	}
	if principal == room.Ref.Author {
		return RoleOwner
	}
	return room.Roles[principal]
}
