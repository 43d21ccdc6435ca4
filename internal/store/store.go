package store

import (
	"context"

	"github.com/studiumhq/studium-go/internal/model"
)

// NotificationCache persists the notification list locally so the next
// run can hydrate it before the realtime channel delivers fresh state.
// It is an optional mirror, never the source of truth.
type NotificationCache interface {
	Upsert(ctx context.Context, n model.Notification) error
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	List(ctx context.Context) ([]model.Notification, error)
	Clear(ctx context.Context) error
	Close() error
}
