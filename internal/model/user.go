package model

// User is the authenticated identity owned by the session manager.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	IsBanned bool   `json:"is_banned,omitempty"`
}
