package space

// Read API consumed by the UI/network collaborators. Everything is
// returned by value; callers never see the fold's internal maps.

type RoomInfo struct {
	Name    string
	Title   string
	Ref     Reference
	Creator PublicKey
}

type MessageInfo struct {
	RoomName string
	Content  string
	Ref      Reference
	Sender   PublicKey
}

// Rooms lists live rooms in creation order.
func (s *State) Rooms() []RoomInfo {
	out := make([]RoomInfo, 0, len(s.roomOrder))
	for _, name := range s.roomOrder {
		room := s.rooms[name]
		out = append(out, RoomInfo{
			Name:    room.Name,
			Title:   room.Title,
			Ref:     room.Ref,
			Creator: room.Ref.Author,
		})
	}
	return out
}

func (s *State) HasRoom(name string) bool {
	_, ok := s.rooms[name]
	return ok
}

// Messages lists a room's live messages in block order. A deleted or
// unknown room has no messages.
func (s *State) Messages(roomName string) []MessageInfo {
	msgs := s.messages[roomName]
	out := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageInfo{
			RoomName: m.RoomName,
			Content:  m.Content,
			Ref:      m.Ref,
			Sender:   m.Ref.Author,
		})
	}
	return out
}

// Nickname returns the projected display name of a principal, falling
// back to the hex form of its public key.
func (s *State) Nickname(principal PublicKey) string {
	if nick, ok := s.nicknames[principal]; ok {
		return nick
	}
	return principal.Hex()
}
