package user

import "talkative/internal/chat"

type User struct {
	ID          chat.UserID `json:"id"`
	Username    string      `json:"username"`
	AvatarImage string      `json:"avatarImage"`
}

func (u User) Profile() chat.Profile {
	return chat.Profile{ID: u.ID, Username: u.Username, AvatarRef: u.AvatarImage}
}

// SearchResult is a user as listed to other users, with live presence.
type SearchResult struct {
	User
	Online bool `json:"online"`
}
