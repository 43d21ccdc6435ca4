package model

import "time"

// Chat identifies the single room the client is currently joined to.
type Chat struct {
	ID int64 `json:"id"`

	// Name is the locally known display identity, when available.
	Name string `json:"name,omitempty"`
}

// ChatMessage is one message inside a chat room. Realtime frames carry
// only sender and text; history payloads may include the timestamp.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ChatSummary is one entry of the user's chat list as returned by the
// chat list endpoint, ordered by most recent activity.
type ChatSummary struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
