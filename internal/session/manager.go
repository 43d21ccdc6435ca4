package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/studiumhq/studium-go/internal/api"
	"github.com/studiumhq/studium-go/internal/credential"
	"github.com/studiumhq/studium-go/internal/model"
)

// authAPI is the slice of the REST client the session manager needs.
type authAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	RefreshToken(ctx context.Context, refresh string) (api.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (model.User, error)
}

// CredentialStore persists the refresh token between runs.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Manager owns the access token lifecycle: login, silent refresh on a
// timer, and logout broadcast. The realtime channel and the REST client
// both read the token from here; neither ever writes it.
//
// Manager implements api.TokenSource.
type Manager struct {
	api   authAPI
	creds CredentialStore
	log   *zap.Logger

	refreshEvery time.Duration
	expiryMargin time.Duration

	mu         sync.Mutex
	token      string
	user       model.User
	tokenSubs  map[int]func(token string)
	logoutSubs map[int]func()
	nextSubID  int
	stopCh     chan struct{}
	closed     bool
}

// Config carries session manager settings.
type Config struct {
	// RefreshInterval is the silent-refresh cadence (default 4 minutes,
	// just under the server's access token lifetime).
	RefreshInterval time.Duration

	// ExpiryMargin pulls a refresh forward when the token's exp claim
	// would lapse before the next scheduled tick.
	ExpiryMargin time.Duration

	// Credentials overrides the refresh token store (default OS keyring).
	Credentials CredentialStore

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewManager creates a session manager on top of the given REST client.
func NewManager(client authAPI, cfg Config) *Manager {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 4 * time.Minute
	}
	if cfg.ExpiryMargin <= 0 {
		cfg.ExpiryMargin = 30 * time.Second
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credential.Keyring{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Manager{
		api:          client,
		creds:        cfg.Credentials,
		log:          cfg.Logger,
		refreshEvery: cfg.RefreshInterval,
		expiryMargin: cfg.ExpiryMargin,
		tokenSubs:    make(map[int]func(string)),
		logoutSubs:   make(map[int]func()),
	}
}

// Token returns the current access token; empty means logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// User returns the current authenticated identity.
func (m *Manager) User() model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// OnTokenChange registers fn to run on every token value change,
// including the empty token on logout. Returns an unsubscribe func.
func (m *Manager) OnTokenChange(fn func(token string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.tokenSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.tokenSubs, id)
	}
}

// OnLogout registers fn to run when a logout happens, before the local
// session state is cleared. Returns an unsubscribe func.
func (m *Manager) OnLogout(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.logoutSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.logoutSubs, id)
	}
}

// Login authenticates with email and password, persists the refresh
// token, and starts the silent-refresh loop.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if result.Refresh != "" {
		if err := m.creds.Set(credential.RefreshTokenKey, result.Refresh); err != nil {
			m.log.Warn("storing refresh token failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.user = result.User
	m.mu.Unlock()

	m.setToken(result.Access)
	m.startRefreshLoop()

	m.log.Info("logged in", zap.Int64("user_id", result.User.ID))
	return nil
}

// Restore attempts a silent login from the stored refresh token. It is
// a no-op (not an error) when no refresh token is stored.
func (m *Manager) Restore(ctx context.Context) error {
	refresh, err := m.creds.Get(credential.RefreshTokenKey)
	if err != nil || refresh == "" {
		m.log.Debug("no stored refresh token")
		return nil
	}

	if err := m.refreshWith(ctx, refresh); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("restoring profile: %w", err)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	m.startRefreshLoop()
	m.log.Info("session restored", zap.Int64("user_id", user.ID))
	return nil
}

// Refresh exchanges the stored refresh token for a new access token.
// On failure while logged in, the session is torn down the same way an
// explicit logout would, mirroring the server invalidating the session.
func (m *Manager) Refresh(ctx context.Context) error {
	refresh, err := m.creds.Get(credential.RefreshTokenKey)
	if err != nil || refresh == "" {
		err = fmt.Errorf("no refresh token available")
	} else {
		err = m.refreshWith(ctx, refresh)
	}

	if err != nil {
		m.mu.Lock()
		loggedIn := m.token != "" && m.user.ID != 0
		m.mu.Unlock()

		if loggedIn {
			m.log.Warn("token refresh failed, logging out", zap.Error(err))
			m.Logout(ctx)
		}
		return err
	}

	return nil
}

// refreshWith performs the refresh call and applies the result.
func (m *Manager) refreshWith(ctx context.Context, refresh string) error {
	result, err := m.api.RefreshToken(ctx, refresh)
	if err != nil {
		return err
	}

	// The server may rotate the refresh token.
	if result.Refresh != "" && result.Refresh != refresh {
		if err := m.creds.Set(credential.RefreshTokenKey, result.Refresh); err != nil {
			m.log.Warn("storing rotated refresh token failed", zap.Error(err))
		}
	}

	m.setToken(result.Access)
	return nil
}

// Logout stops the refresh loop, invalidates the session server-side
// (best effort), broadcasts the logout to subscribers, and clears all
// local session state.
func (m *Manager) Logout(ctx context.Context) {
	m.stopRefreshLoop()

	if err := m.api.Logout(ctx); err != nil {
		m.log.Warn("server logout failed", zap.Error(err))
	}

	m.mu.Lock()
	logoutFns := make([]func(), 0, len(m.logoutSubs))
	for _, fn := range m.logoutSubs {
		logoutFns = append(logoutFns, fn)
	}
	m.mu.Unlock()

	// Subscribers run before the state clear so they observe the logout
	// as an event, not as a token flip.
	for _, fn := range logoutFns {
		fn()
	}

	m.mu.Lock()
	m.user = model.User{}
	m.mu.Unlock()

	if err := m.creds.Delete(credential.RefreshTokenKey); err != nil {
		m.log.Debug("clearing stored refresh token failed", zap.Error(err))
	}

	m.setToken("")
	m.log.Info("logged out")
}

// Close stops the refresh loop without logging out.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stopRefreshLoop()
}

// setToken swaps the token and notifies subscribers outside the lock.
func (m *Manager) setToken(token string) {
	m.mu.Lock()
	m.token = token
	fns := make([]func(string), 0, len(m.tokenSubs))
	for _, fn := range m.tokenSubs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(token)
	}
}

// startRefreshLoop launches the silent-refresh goroutine if it is not
// already running.
func (m *Manager) startRefreshLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh != nil || m.closed {
		return
	}

	stopCh := make(chan struct{})
	m.stopCh = stopCh
	go m.refreshLoop(stopCh)
}

// stopRefreshLoop halts the silent-refresh goroutine.
func (m *Manager) stopRefreshLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
}

// refreshLoop re-arms a timer for each cycle so an exp claim shorter
// than the fixed interval pulls the refresh forward.
func (m *Manager) refreshLoop(stopCh chan struct{}) {
	timer := time.NewTimer(m.nextRefreshIn())
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.Refresh(ctx); err != nil {
				cancel()
				// Refresh tears the session down on failure; the loop
				// has been stopped by Logout at this point.
				return
			}
			cancel()
			timer.Reset(m.nextRefreshIn())
		}
	}
}

// nextRefreshIn returns the delay until the next refresh: the fixed
// interval, shortened when the current token expires sooner.
func (m *Manager) nextRefreshIn() time.Duration {
	delay := m.refreshEvery

	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if exp, ok := tokenExpiry(token); ok {
		untilExpiry := time.Until(exp) - m.expiryMargin
		if untilExpiry < delay {
			delay = untilExpiry
		}
	}

	if delay < 10*time.Second {
		delay = 10 * time.Second
	}
	return delay
}

// tokenExpiry extracts the exp claim without verifying the signature;
// the client has no verification key and only needs the schedule hint.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
