package realtime

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a websocket connection the manager uses.
// *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer establishes realtime connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production Dialer on top of gorilla/websocket.
type wsDialer struct{}

func (wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
