package space

// Scope selects either the space itself or one of its rooms as the
// target of an authorization query.
type Scope struct {
	room string
}

func SpaceScope() Scope           { return Scope{} }
func RoomScope(name string) Scope { return Scope{room: name} }
func (s Scope) IsSpace() bool     { return s.room == "" }
func (s Scope) RoomName() string  { return s.room }

func (s Scope) String() string {
	if s.IsSpace() {
		return "space"
	}
	return "room:" + s.room
}

// Action enumerates everything the permission tables gate.
type Action uint8

const (
	ActionSendMessage Action = iota
	ActionCreateRoom
	ActionRenameRoom
	ActionDeleteRoom
	ActionDeleteMessage
	ActionBanUser
	ActionRenameUser
	ActionGrantRole
)

func (a Action) String() string {
	switch a {
	case ActionSendMessage:
		return "send_message"
	case ActionCreateRoom:
		return "create_room"
	case ActionRenameRoom:
		return "rename_room"
	case ActionDeleteRoom:
		return "delete_room"
	case ActionDeleteMessage:
		return "delete_message"
	case ActionBanUser:
		return "ban_user"
	case ActionRenameUser:
		return "rename_user"
	case ActionGrantRole:
		return "grant_role"
	}
	return "unknown"
}
