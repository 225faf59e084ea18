package domain

// PlayerInfo is the identity of a connected player. It lives as long as the
// websocket connection, not the lobby membership. Gameplay code only reads it.
type PlayerInfo struct {
	Id         string
	Name       string
	Icon       string
	Color      string
	UserId     *string
	GuestToken string
}

func (p PlayerInfo) IsGuest() bool {
	return p.UserId == nil
}
