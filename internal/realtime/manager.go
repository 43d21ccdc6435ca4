package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studiumhq/studium-go/internal/model"
)

// HistoryFetcher is the slice of the REST client used for out-of-band
// history loading.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, chatID int64) ([]model.ChatMessage, error)
}

// NotificationCache optionally mirrors the notification list to local
// storage so the next run can hydrate before the socket delivers fresh
// state. All cache writes are best effort.
type NotificationCache interface {
	Upsert(ctx context.Context, n model.Notification) error
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	Clear(ctx context.Context) error
}

// SessionEvents is what the manager subscribes to on the session
// manager: token value changes and the logout broadcast.
type SessionEvents interface {
	OnTokenChange(fn func(token string)) (unsubscribe func())
	OnLogout(fn func()) (unsubscribe func())
}

const (
	dialTimeout   = 15 * time.Second
	dialAttempts  = 3
	dialBaseDelay = time.Second
)

// Manager owns exactly one live connection to the realtime endpoint,
// keeps it aligned with the latest access token, decodes inbound frames
// into typed events, and exposes the notification and chat operation
// surface. Components never touch the socket directly.
type Manager struct {
	socketURL string
	history   HistoryFetcher
	cache     NotificationCache
	dialer    Dialer
	log       *zap.Logger

	dialAttempts  int
	dialBaseDelay time.Duration

	mu            sync.Mutex
	state         ConnState
	conn          Conn
	gen           int
	token         string
	notifications []model.Notification
	unread        int
	currentChat   *model.Chat
	messages      []model.ChatMessage
	closed        bool

	unsubs []func()
}

// Config carries channel manager dependencies.
type Config struct {
	// SocketURL is the realtime endpoint; the token is appended as a
	// query parameter on dial.
	SocketURL string

	// History loads chat history over REST.
	History HistoryFetcher

	// Cache is optional; nil disables local mirroring.
	Cache NotificationCache

	// Dialer defaults to gorilla/websocket.
	Dialer Dialer

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewManager creates a channel manager. It stays Disconnected until a
// non-empty token arrives via SetToken or an attached session.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Manager{
		socketURL:     cfg.SocketURL,
		history:       cfg.History,
		cache:         cfg.Cache,
		dialer:        cfg.Dialer,
		log:           cfg.Logger,
		state:         StateDisconnected,
		dialAttempts:  dialAttempts,
		dialBaseDelay: dialBaseDelay,
	}
}

// Attach subscribes the manager to a session's token and logout events.
// The subscriptions are released by Close.
func (m *Manager) Attach(s SessionEvents) {
	unsubToken := s.OnTokenChange(m.SetToken)
	unsubLogout := s.OnLogout(m.HandleLogout)

	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsubToken, unsubLogout)
	m.mu.Unlock()
}

// SetToken reacts to a token value change. An empty token forces the
// Disconnected state; any other value tears down the current connection
// and reconnects with the new token. While a connection is still open,
// an in-band update_token frame is sent opportunistically so the server
// can accept the rotation without waiting for the reconnect.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.token = token
	m.gen++
	gen := m.gen
	conn := m.conn
	m.conn = nil

	if token == "" {
		m.state = StateDisconnected
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if conn != nil && m.state == StateOpen {
		if err := conn.WriteJSON(updateTokenFrame(token)); err != nil {
			m.log.Debug("in-band token update failed", zap.Error(err))
		}
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	go m.connect(token, gen)
}

// connect runs one Connecting episode: a bounded number of dial
// attempts with exponential backoff. A newer token or teardown aborts
// the episode via the generation counter.
func (m *Manager) connect(token string, gen int) {
	delay := m.dialBaseDelay

	for attempt := 1; attempt <= m.dialAttempts; attempt++ {
		if m.staleGen(gen) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := m.dialer.DialContext(ctx, m.dialURL(token))
		cancel()

		if err == nil {
			m.mu.Lock()
			if m.gen != gen || m.closed {
				m.mu.Unlock()
				conn.Close()
				return
			}
			m.conn = conn
			m.state = StateOpen
			m.mu.Unlock()

			m.log.Info("realtime channel open")
			go m.readLoop(conn, gen)
			return
		}

		m.log.Warn("realtime dial failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < m.dialAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}

	m.mu.Lock()
	if m.gen == gen && !m.closed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}

// dialURL appends the token as a query parameter to the endpoint.
func (m *Manager) dialURL(token string) string {
	sep := "?"
	if u, err := url.Parse(m.socketURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return m.socketURL + sep + "token=" + url.QueryEscape(token)
}

// staleGen reports whether gen no longer identifies the current
// connection episode.
func (m *Manager) staleGen(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen || m.closed
}

// readLoop processes inbound frames in strict arrival order until the
// connection drops. An unexpected close leaves all local state intact;
// the user may still be authenticated and the next token change
// reconnects.
func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()

			m.mu.Lock()
			if m.gen == gen && !m.closed {
				m.state = StateClosedByPeer
				m.conn = nil
				m.log.Warn("realtime channel closed by peer", zap.Error(err))
			}
			m.mu.Unlock()
			return
		}

		if m.staleGen(gen) {
			return
		}
		m.dispatch(decodeEvent(data))
	}
}

// dispatch applies one decoded inbound event to local state.
func (m *Manager) dispatch(ev Event) {
	switch ev := ev.(type) {
	case NotificationEvent:
		m.upsertNotification(ev.Notification)

	case ChatMessageEvent:
		m.mu.Lock()
		if m.currentChat != nil && m.currentChat.ID == ev.ChatID {
			m.messages = append(m.messages, ev.Message)
		}
		m.mu.Unlock()

	case ChatHistoryEvent:
		m.mu.Lock()
		m.messages = ev.Messages
		m.mu.Unlock()

	case ChatJoinedEvent:
		m.log.Debug("joined chat", zap.Int64("chat_id", ev.ChatID))
		m.mu.Lock()
		if ev.HasHistory && m.currentChat != nil && m.currentChat.ID == ev.ChatID {
			m.messages = ev.Messages
		}
		m.mu.Unlock()

	case ChatLeftEvent:
		m.mu.Lock()
		if m.currentChat != nil && m.currentChat.ID == ev.ChatID {
			m.currentChat = nil
			m.messages = nil
		}
		m.mu.Unlock()

	case UnknownEvent:
		m.log.Debug("discarding unrecognized frame", zap.String("type", ev.Type))
	}
}

// upsertNotification inserts or replaces by id and restores the
// newest-first ordering invariant.
func (m *Manager) upsertNotification(n model.Notification) {
	m.mu.Lock()

	replaced := false
	for i := range m.notifications {
		if m.notifications[i].ID == n.ID {
			m.notifications[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		m.notifications = append(m.notifications, n)
	}

	sort.SliceStable(m.notifications, func(i, j int) bool {
		return m.notifications[i].CreatedAt.After(m.notifications[j].CreatedAt)
	})
	m.recomputeUnreadLocked()
	m.mu.Unlock()

	m.mirror(func(ctx context.Context, c NotificationCache) error {
		return c.Upsert(ctx, n)
	})
}

// recomputeUnreadLocked derives the unread count from scratch after
// every list mutation; it is never maintained incrementally, so it
// cannot drift.
func (m *Manager) recomputeUnreadLocked() {
	unread := 0
	for i := range m.notifications {
		if !m.notifications[i].IsRead {
			unread++
		}
	}
	m.unread = unread
}

// Hydrate seeds the notification list, typically from the local cache
// at startup, going through the usual upsert path so ordering and
// dedupe invariants hold.
func (m *Manager) Hydrate(notifications []model.Notification) {
	for _, n := range notifications {
		m.mu.Lock()

		replaced := false
		for i := range m.notifications {
			if m.notifications[i].ID == n.ID {
				m.notifications[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			m.notifications = append(m.notifications, n)
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	sort.SliceStable(m.notifications, func(i, j int) bool {
		return m.notifications[i].CreatedAt.After(m.notifications[j].CreatedAt)
	})
	m.recomputeUnreadLocked()
	m.mu.Unlock()
}

// MarkAllAsRead sends a bulk mark-read frame and optimistically flips
// every local read flag. No-op when nothing is unread or the channel is
// not open; idempotent under repeated calls.
func (m *Manager) MarkAllAsRead() {
	m.mu.Lock()
	if m.unread == 0 || m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return
	}

	if err := m.conn.WriteJSON(markAllReadFrame(m.token)); err != nil {
		m.log.Debug("mark_all_read send failed", zap.Error(err))
	}
	for i := range m.notifications {
		m.notifications[i].IsRead = true
	}
	m.unread = 0
	m.mu.Unlock()

	m.mirror(func(ctx context.Context, c NotificationCache) error {
		return c.MarkAllRead(ctx)
	})
}

// MarkAsRead sends a per-id mark-read frame, carrying the category tag
// the server needs to route the update, and optimistically flips the
// local flag. Same guards as MarkAllAsRead.
func (m *Manager) MarkAsRead(id int64) {
	m.mu.Lock()
	if m.unread == 0 || m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return
	}

	typeName := ""
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			typeName = m.notifications[i].TypeName
			break
		}
	}

	if err := m.conn.WriteJSON(markReadFrame(m.token, id, typeName)); err != nil {
		m.log.Debug("mark_read send failed", zap.Error(err))
	}
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].IsRead = true
			break
		}
	}
	m.recomputeUnreadLocked()
	m.mu.Unlock()

	m.mirror(func(ctx context.Context, c NotificationCache) error {
		return c.MarkRead(ctx, id)
	})
}

// JoinChat makes chatID the active room. At most one room is active at
// a time: a different active room is left first. The message list is
// cleared immediately; history arrives asynchronously from the server.
// No-op unless the channel is open.
func (m *Manager) JoinChat(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil {
		return
	}

	if m.currentChat != nil && m.currentChat.ID != chatID {
		if err := m.conn.WriteJSON(leaveChatFrame(m.token, m.currentChat.ID)); err != nil {
			m.log.Debug("leave_chat send failed", zap.Error(err))
		}
	}

	if err := m.conn.WriteJSON(joinChatFrame(m.token, chatID)); err != nil {
		m.log.Debug("join_chat send failed", zap.Error(err))
	}

	m.currentChat = &model.Chat{ID: chatID}
	m.messages = []model.ChatMessage{}
}

// LeaveChat sends a leave frame and, when chatID is the active room,
// clears room and messages locally without waiting for the server's
// chat_left ack (which then lands as an idempotent confirmation).
// No-op unless the channel is open.
func (m *Manager) LeaveChat(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil {
		return
	}

	if err := m.conn.WriteJSON(leaveChatFrame(m.token, chatID)); err != nil {
		m.log.Debug("leave_chat send failed", zap.Error(err))
	}

	if m.currentChat != nil && m.currentChat.ID == chatID {
		m.currentChat = nil
		m.messages = nil
	}
}

// SendMessage sends text to the active room. There is no optimistic
// local append: the message becomes visible when the server echoes it
// back, trading latency for server-confirmed ordering. No-op unless
// the channel is open and a room is active.
func (m *Manager) SendMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil || m.currentChat == nil {
		return
	}

	if err := m.conn.WriteJSON(sendMessageFrame(m.token, m.currentChat.ID, text)); err != nil {
		m.log.Debug("send_message send failed", zap.Error(err))
	}
}

// LoadChatHistory fetches a room's history over REST and replaces the
// message list. Fetch errors surface to the caller. A result that
// arrives after the user moved to a different room is discarded.
func (m *Manager) LoadChatHistory(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	roomAtCall := int64(0)
	if m.currentChat != nil {
		roomAtCall = m.currentChat.ID
	}
	m.mu.Unlock()

	messages, err := m.history.ChatHistory(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat history: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(0)
	if m.currentChat != nil {
		current = m.currentChat.ID
	}

	// Staleness check: apply only when the requested room is still the
	// active one, or when this is a standalone history view (no room
	// active at request time and none now).
	if current != chatID && !(current == 0 && roomAtCall == 0) {
		m.log.Debug("discarding stale chat history",
			zap.Int64("chat_id", chatID),
			zap.Int64("active", current),
		)
		return nil
	}

	m.messages = messages
	return nil
}

// HandleLogout reacts to the session's logout broadcast: the connection
// closes and every local derived state is cleared wholesale.
func (m *Manager) HandleLogout() {
	m.mu.Lock()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.token = ""
	m.notifications = nil
	m.unread = 0
	m.currentChat = nil
	m.messages = nil
	if !m.closed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.mirror(func(ctx context.Context, c NotificationCache) error {
		return c.Clear(ctx)
	})
}

// Close tears the manager down: session subscriptions are released and
// the underlying connection is closed unconditionally so no socket
// leaks across navigations.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	conn := m.conn
	m.conn = nil
	m.state = StateClosedByClient
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if conn != nil {
		conn.Close()
	}
}

// mirror runs a best-effort cache write; cache failures are logged and
// never affect channel state.
func (m *Manager) mirror(fn func(ctx context.Context, c NotificationCache) error) {
	if m.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fn(ctx, m.cache); err != nil {
		m.log.Debug("notification cache write failed", zap.Error(err))
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Notifications returns a copy of the notification list, newest first.
func (m *Manager) Notifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// UnreadCount returns the number of unread notifications.
func (m *Manager) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread
}

// CurrentChat returns the active room, or nil when none is joined.
func (m *Manager) CurrentChat() *model.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentChat == nil {
		return nil
	}
	chat := *m.currentChat
	return &chat
}

// Messages returns a copy of the active room's message list.
func (m *Manager) Messages() []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
