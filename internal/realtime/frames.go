package realtime

import (
	"encoding/json"

	"github.com/studiumhq/studium-go/internal/model"
)

// frame is the outbound wire shape. The action field selects the type;
// the remaining fields are populated per action and omitted otherwise.
type frame struct {
	Action   string `json:"action"`
	Token    string `json:"token"`
	ID       int64  `json:"id,omitempty"`
	TypeName string `json:"type_name,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

func updateTokenFrame(token string) frame {
	return frame{Action: "update_token", Token: token}
}

func markAllReadFrame(token string) frame {
	return frame{Action: "mark_all_read", Token: token}
}

func markReadFrame(token string, id int64, typeName string) frame {
	return frame{Action: "mark_read", Token: token, ID: id, TypeName: typeName}
}

func joinChatFrame(token string, chatID int64) frame {
	return frame{Action: "join_chat", Token: token, ChatID: chatID}
}

func leaveChatFrame(token string, chatID int64) frame {
	return frame{Action: "leave_chat", Token: token, ChatID: chatID}
}

func sendMessageFrame(token string, chatID int64, text string) frame {
	return frame{Action: "send_message", Token: token, ChatID: chatID, Message: text}
}

// Event is the closed union of inbound frame kinds. Frames are decoded
// once at the boundary; anything unrecognized or malformed becomes an
// UnknownEvent and never crashes the dispatch loop.
type Event interface {
	eventKind() string
}

// NotificationEvent carries a new or updated notification.
type NotificationEvent struct {
	Notification model.Notification
}

// ChatMessageEvent carries one incoming message for a chat room.
type ChatMessageEvent struct {
	ChatID  int64
	Message model.ChatMessage
}

// ChatHistoryEvent replaces the message list wholesale.
type ChatHistoryEvent struct {
	Messages []model.ChatMessage
}

// ChatJoinedEvent acknowledges a join. The server includes the room
// history in the ack; HasHistory distinguishes an empty room from an
// ack without a messages payload.
type ChatJoinedEvent struct {
	ChatID     int64
	Messages   []model.ChatMessage
	HasHistory bool
}

// ChatLeftEvent confirms the client left a room.
type ChatLeftEvent struct {
	ChatID int64
}

// UnknownEvent is the fallback for malformed or unrecognized frames.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (NotificationEvent) eventKind() string { return "notification" }
func (ChatMessageEvent) eventKind() string  { return "chat_message" }
func (ChatHistoryEvent) eventKind() string  { return "chat_history" }
func (ChatJoinedEvent) eventKind() string   { return "chat_joined" }
func (ChatLeftEvent) eventKind() string     { return "chat_left" }
func (UnknownEvent) eventKind() string      { return "unknown" }

// decodeEvent turns one raw inbound frame into a typed event.
func decodeEvent(data []byte) Event {
	var env struct {
		Type         string               `json:"type"`
		Notification *model.Notification  `json:"notification"`
		ChatID       int64                `json:"chat_id"`
		Message      json.RawMessage      `json:"message"`
		Messages     *[]model.ChatMessage `json:"messages"`
	}

	if err := json.Unmarshal(data, &env); err != nil {
		return UnknownEvent{Raw: data}
	}

	switch env.Type {
	case "notification":
		if env.Notification == nil {
			return UnknownEvent{Type: env.Type, Raw: data}
		}
		return NotificationEvent{Notification: *env.Notification}

	case "chat_message":
		var msg model.ChatMessage
		if len(env.Message) == 0 || json.Unmarshal(env.Message, &msg) != nil {
			return UnknownEvent{Type: env.Type, Raw: data}
		}
		return ChatMessageEvent{ChatID: env.ChatID, Message: msg}

	case "chat_history":
		ev := ChatHistoryEvent{Messages: []model.ChatMessage{}}
		if env.Messages != nil {
			ev.Messages = *env.Messages
		}
		return ev

	case "chat_joined":
		ev := ChatJoinedEvent{ChatID: env.ChatID}
		if env.Messages != nil {
			ev.Messages = *env.Messages
			ev.HasHistory = true
		}
		return ev

	case "chat_left":
		return ChatLeftEvent{ChatID: env.ChatID}

	case "":
		// The server hydrates state right after accept with bare
		// {"notification": {...}} frames that carry no type tag.
		if env.Notification != nil {
			return NotificationEvent{Notification: *env.Notification}
		}
		return UnknownEvent{Raw: data}

	default:
		return UnknownEvent{Type: env.Type, Raw: data}
	}
}
