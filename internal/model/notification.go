package model

import "time"

// Notification represents an alert pushed to the user over the realtime
// channel, or hydrated from the local cache at startup.
type Notification struct {
	// ID is the server-assigned identifier, unique per user.
	ID int64 `json:"id"`

	// TypeName is the free-form category tag ("notification", "failure",
	// "ready_task", ...). The server needs it back on mark-read frames to
	// route the update to the correct backing store.
	TypeName string `json:"type_name,omitempty"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Content carries optional extra body text.
	Content string `json:"content,omitempty"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"is_read"`

	// AutoRead marks notifications the server flips to read on delivery.
	AutoRead bool `json:"auto_read,omitempty"`

	// ObjectID optionally points at the object the notification is about.
	ObjectID int64 `json:"object_id,omitempty"`

	// AddData carries auxiliary routing data for link building.
	AddData string `json:"add_data,omitempty"`

	// CreatedAt is when the server generated this notification.
	CreatedAt time.Time `json:"created_at"`
}
