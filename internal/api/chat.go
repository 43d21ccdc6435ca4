package api

import (
	"context"
	"fmt"

	"github.com/studiumhq/studium-go/internal/model"
)

// ListChats retrieves the user's chat list, most recently active first.
func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	var chats []model.ChatSummary
	if err := c.Get(ctx, "/api/chat/all/", &chats); err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	return chats, nil
}

// ChatHistory retrieves the stored messages of a single chat room in
// creation order. Independent of the realtime join state; used when
// history needs to be (re)loaded without re-joining.
func (c *Client) ChatHistory(ctx context.Context, chatID int64) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	path := fmt.Sprintf("/api/chat/%d/messages/", chatID)
	if err := c.Get(ctx, path, &messages); err != nil {
		return nil, fmt.Errorf("loading history for chat %d: %w", chatID, err)
	}
	return messages, nil
}
