package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiumhq/studium-go/internal/api"
	"github.com/studiumhq/studium-go/internal/credential"
	"github.com/studiumhq/studium-go/internal/model"
)

type fakeAuthAPI struct {
	mu sync.Mutex

	loginResult   api.LoginResult
	loginErr      error
	refreshResult api.LoginResult
	refreshErr    error
	meUser        model.User
	meErr         error

	loginCalls   int
	refreshCalls int
	logoutCalls  int
	meCalls      int
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginResult, f.loginErr
}

func (f *fakeAuthAPI) RefreshToken(ctx context.Context, refresh string) (api.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshResult, f.refreshErr
}

func (f *fakeAuthAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeAuthAPI) Me(ctx context.Context) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	return f.meUser, f.meErr
}

type memCreds struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCreds() *memCreds {
	return &memCreds{values: make(map[string]string)}
}

func (c *memCreds) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (c *memCreds) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCreds) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func newTestManager(t *testing.T, authAPI *fakeAuthAPI, creds *memCreds) *Manager {
	t.Helper()
	m := NewManager(authAPI, Config{
		RefreshInterval: time.Hour,
		Credentials:     creds,
		Logger:          zap.NewNop(),
	})
	t.Cleanup(m.Close)
	return m
}

func TestLoginSetsTokenAndStoresRefresh(t *testing.T) {
	authAPI := &fakeAuthAPI{
		loginResult: api.LoginResult{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    model.User{ID: 5, Email: "a@b.c"},
		},
	}
	creds := newMemCreds()
	m := newTestManager(t, authAPI, creds)

	var got []string
	m.OnTokenChange(func(token string) { got = append(got, token) })

	require.NoError(t, m.Login(context.Background(), "a@b.c", "pw"))

	assert.Equal(t, "access-1", m.Token())
	assert.Equal(t, int64(5), m.User().ID)
	assert.Equal(t, []string{"access-1"}, got)

	stored, err := creds.Get(credential.RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored)
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	authAPI := &fakeAuthAPI{loginErr: errors.New("invalid credentials")}
	m := newTestManager(t, authAPI, newMemCreds())

	err := m.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)
	assert.Empty(t, m.Token())
	assert.Zero(t, m.User().ID)
}

func TestRestoreWithoutStoredTokenIsNoOp(t *testing.T) {
	authAPI := &fakeAuthAPI{}
	m := newTestManager(t, authAPI, newMemCreds())

	require.NoError(t, m.Restore(context.Background()))
	assert.Empty(t, m.Token())
	assert.Equal(t, 0, authAPI.refreshCalls)
	assert.Equal(t, 0, authAPI.meCalls)
}

func TestRestoreRefreshesAndLoadsProfile(t *testing.T) {
	authAPI := &fakeAuthAPI{
		refreshResult: api.LoginResult{Access: "access-2"},
		meUser:        model.User{ID: 9, Username: "kira"},
	}
	creds := newMemCreds()
	require.NoError(t, creds.Set(credential.RefreshTokenKey, "refresh-old"))
	m := newTestManager(t, authAPI, creds)

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, "access-2", m.Token())
	assert.Equal(t, "kira", m.User().Username)
	assert.Equal(t, 1, authAPI.refreshCalls)
}

func TestRefreshRotatesStoredToken(t *testing.T) {
	authAPI := &fakeAuthAPI{
		refreshResult: api.LoginResult{Access: "access-3", Refresh: "refresh-new"},
	}
	creds := newMemCreds()
	require.NoError(t, creds.Set(credential.RefreshTokenKey, "refresh-old"))
	m := newTestManager(t, authAPI, creds)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "access-3", m.Token())

	stored, err := creds.Get(credential.RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-new", stored)
}

func TestRefreshFailureWhileLoggedInTearsDownSession(t *testing.T) {
	authAPI := &fakeAuthAPI{
		loginResult: api.LoginResult{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    model.User{ID: 5},
		},
		refreshErr: errors.New("refresh rejected"),
	}
	creds := newMemCreds()
	m := newTestManager(t, authAPI, creds)
	require.NoError(t, m.Login(context.Background(), "a@b.c", "pw"))

	logoutSeen := false
	m.OnLogout(func() { logoutSeen = true })

	require.Error(t, m.Refresh(context.Background()))

	assert.True(t, logoutSeen)
	assert.Empty(t, m.Token())
	assert.Zero(t, m.User().ID)
	assert.Equal(t, 1, authAPI.logoutCalls)

	_, err := creds.Get(credential.RefreshTokenKey)
	assert.Error(t, err, "stored refresh token should be deleted")
}

func TestLogoutBroadcastsBeforeClearingState(t *testing.T) {
	authAPI := &fakeAuthAPI{
		loginResult: api.LoginResult{
			Access: "access-1",
			User:   model.User{ID: 5},
		},
	}
	m := newTestManager(t, authAPI, newMemCreds())
	require.NoError(t, m.Login(context.Background(), "a@b.c", "pw"))

	var tokenAtLogout string
	m.OnLogout(func() { tokenAtLogout = m.Token() })

	var tokenEvents []string
	m.OnTokenChange(func(token string) { tokenEvents = append(tokenEvents, token) })

	m.Logout(context.Background())

	// The logout callback fires while the session is still intact.
	assert.Equal(t, "access-1", tokenAtLogout)
	assert.Equal(t, []string{""}, tokenEvents)
	assert.Empty(t, m.Token())
	assert.Equal(t, 1, authAPI.logoutCalls)
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	authAPI := &fakeAuthAPI{
		loginResult: api.LoginResult{Access: "access-1", User: model.User{ID: 5}},
	}
	m := newTestManager(t, authAPI, newMemCreds())

	calls := 0
	unsub := m.OnTokenChange(func(string) { calls++ })
	unsub()

	require.NoError(t, m.Login(context.Background(), "a@b.c", "pw"))
	assert.Equal(t, 0, calls)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(90 * time.Second).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	got, ok := tokenExpiry(signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = tokenExpiry("")
	assert.False(t, ok)

	_, ok = tokenExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestNextRefreshInShortenedByExpiry(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(90 * time.Second).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	m := newTestManager(t, &fakeAuthAPI{}, newMemCreds())
	m.mu.Lock()
	m.token = signed
	m.mu.Unlock()

	delay := m.nextRefreshIn()
	assert.Less(t, delay, 90*time.Second)
	assert.GreaterOrEqual(t, delay, 10*time.Second)
}

func TestNextRefreshInFloor(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Second).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	m := newTestManager(t, &fakeAuthAPI{}, newMemCreds())
	m.mu.Lock()
	m.token = signed
	m.mu.Unlock()

	assert.Equal(t, 10*time.Second, m.nextRefreshIn())
}
