package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	ev := decodeEvent([]byte(`{
		"type": "notification",
		"notification": {
			"id": 42,
			"type_name": "ready_task",
			"message": "your task sold",
			"created_at": "2024-03-01T10:00:00Z",
			"is_read": false,
			"object_id": 17
		}
	}`))

	n, ok := ev.(NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, int64(42), n.Notification.ID)
	assert.Equal(t, "ready_task", n.Notification.TypeName)
	assert.Equal(t, int64(17), n.Notification.ObjectID)
	assert.False(t, n.Notification.IsRead)
}

func TestDecodeBareNotificationHydrationFrame(t *testing.T) {
	// The server pushes untagged notification frames right after accept.
	ev := decodeEvent([]byte(`{"notification": {"id": 1, "message": "hi", "created_at": "2024-01-01T00:00:00Z"}}`))

	n, ok := ev.(NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), n.Notification.ID)
}

func TestDecodeChatMessage(t *testing.T) {
	ev := decodeEvent([]byte(`{"type":"chat_message","chat_id":5,"message":{"sender":"u1","text":"hey"}}`))

	msg, ok := ev.(ChatMessageEvent)
	require.True(t, ok)
	assert.Equal(t, int64(5), msg.ChatID)
	assert.Equal(t, "u1", msg.Message.Sender)
	assert.Equal(t, "hey", msg.Message.Text)
}

func TestDecodeChatHistory(t *testing.T) {
	ev := decodeEvent([]byte(`{"type":"chat_history","messages":[{"sender":"u1","text":"a"},{"sender":"u2","text":"b"}]}`))

	hist, ok := ev.(ChatHistoryEvent)
	require.True(t, ok)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "b", hist.Messages[1].Text)
}

func TestDecodeChatHistoryMissingPayload(t *testing.T) {
	// Absent messages payload means an empty list, not nil.
	ev := decodeEvent([]byte(`{"type":"chat_history"}`))

	hist, ok := ev.(ChatHistoryEvent)
	require.True(t, ok)
	assert.NotNil(t, hist.Messages)
	assert.Empty(t, hist.Messages)
}

func TestDecodeChatJoinedWithHistory(t *testing.T) {
	ev := decodeEvent([]byte(`{"type":"chat_joined","chat_id":3,"messages":[{"sender":"u1","text":"hello"}]}`))

	joined, ok := ev.(ChatJoinedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(3), joined.ChatID)
	assert.True(t, joined.HasHistory)
	require.Len(t, joined.Messages, 1)
}

func TestDecodeChatJoinedBareAck(t *testing.T) {
	ev := decodeEvent([]byte(`{"type":"chat_joined","chat_id":3}`))

	joined, ok := ev.(ChatJoinedEvent)
	require.True(t, ok)
	assert.False(t, joined.HasHistory)
}

func TestDecodeChatLeft(t *testing.T) {
	ev := decodeEvent([]byte(`{"type":"chat_left","chat_id":8}`))

	left, ok := ev.(ChatLeftEvent)
	require.True(t, ok)
	assert.Equal(t, int64(8), left.ChatID)
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	cases := []string{
		`{"type":"presence","who":"u9"}`,
		`{"status":"Токен обновлён"}`,
		`{"type":"notification"}`,
		`{"type":"chat_message","chat_id":1}`,
		`not json`,
		``,
	}

	for _, raw := range cases {
		ev := decodeEvent([]byte(raw))
		_, ok := ev.(UnknownEvent)
		assert.True(t, ok, "expected UnknownEvent for %q", raw)
	}
}
