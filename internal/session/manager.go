// Package session owns the authentication token of the client: login,
// logout, persistence across restarts and validation of restored tokens.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/metrics"
	"github.com/and161185/medrec/internal/model"
	"github.com/and161185/medrec/internal/notify"
	"github.com/and161185/medrec/internal/storage"
)

// StorageKey is the key of the persisted session record.
const StorageKey = "authState"

// DefaultTokenTTL is assumed for tokens that do not carry an exp claim.
const DefaultTokenTTL = 15 * time.Minute

// Manager is the single owner of the session state. It is safe for concurrent use;
// other components only read the token through CurrentToken.
type Manager struct {
	api   *apiclient.Client
	store storage.Storage
	clock clockwork.Clock
	log   *zap.Logger
	ttl   time.Duration

	// opMu serializes transitions; mu guards state.
	opMu  sync.Mutex
	mu    sync.RWMutex
	state model.SessionState

	hub notify.Hub[model.SessionState]
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock (tests use a fake clock).
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithTokenTTL sets the lifetime assumed for tokens without an exp claim.
func WithTokenTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// New constructs a Manager and restores the persisted session, if it is still valid.
// api must not authenticate on its own: the manager attaches its token explicitly.
func New(api *apiclient.Client, store storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		clock: clockwork.NewRealClock(),
		log:   zap.NewNop(),
		ttl:   DefaultTokenTTL,
	}
	for _, o := range opts {
		o(m)
	}
	m.restore()
	return m
}

// CurrentToken returns the bearer token of the logged-in user, or "".
func (m *Manager) CurrentToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.LoggedIn {
		return ""
	}
	return m.state.Token
}

// State returns a snapshot of the session.
func (m *Manager) State() model.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LoggedIn reports whether a user is logged in.
func (m *Manager) LoggedIn() bool { return m.State().LoggedIn }

// Subscribe delivers a state snapshot after every transition.
func (m *Manager) Subscribe() *notify.Subscription[model.SessionState] { return m.hub.Subscribe() }

// Close ends all subscriptions.
func (m *Manager) Close() { m.hub.Close() }

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	DisplayName string `json:"display_name"`
	FullName    string `json:"full_name"`
}

// Login authenticates with username and password.
// On failure the session stays logged out with LastError set; a previously held
// token is dropped only if the server rejected the credentials (401/403).
func (m *Manager) Login(ctx context.Context, username, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var resp loginResponse
	err := m.api.Do(ctx, apiclient.Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   "/login",
		Form:   url.Values{"username": {username}, "password": {password}},
	}, &resp)
	if err == nil && resp.AccessToken == "" {
		err = errors.New("login response without access_token")
	}

	m.mu.Lock()
	if err != nil {
		m.state.LoggedIn = false
		m.state.LastError = errs.Message(err)
		if errors.Is(err, errs.ErrUnauthorized) {
			m.state.Token = ""
			m.state.DisplayName = ""
			m.state.ExpiresAt = time.Time{}
		}
		metrics.SessionTransitionsTotal.WithLabelValues("login_failed").Inc()
		m.log.Info("login failed", zap.String("user", username), zap.Error(err))
	} else {
		claims := parseClaims(resp.AccessToken)
		exp := claims.expiry()
		if exp.IsZero() {
			exp = m.clock.Now().Add(m.ttl)
		}
		m.state = model.SessionState{
			LoggedIn:    true,
			Token:       resp.AccessToken,
			DisplayName: firstNonEmpty(resp.DisplayName, resp.FullName, claims.Name, claims.Subject, username),
			ExpiresAt:   exp,
		}
		metrics.SessionTransitionsTotal.WithLabelValues("login").Inc()
		m.log.Info("logged in", zap.String("user", username), zap.Time("expires_at", exp))
	}
	snap := m.state
	m.persistLocked()
	m.mu.Unlock()

	m.hub.Publish(snap)
	if err != nil {
		return &errs.AuthError{Op: "login", Err: err}
	}
	return nil
}

// Logout ends the session on the server. Local state is cleared whatever the
// server answers; a server or transport failure is recorded and returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	token := m.state.Token
	loggedIn := m.state.LoggedIn
	m.mu.RUnlock()
	if !loggedIn && token == "" {
		return nil
	}

	var err error
	if token != "" {
		err = m.api.Do(ctx, apiclient.Request{
			Op:     "logout",
			Method: http.MethodPost,
			Path:   "/logout",
			Bearer: token,
		}, nil)
	}

	m.mu.Lock()
	m.state = model.SessionState{}
	if err != nil {
		m.state.LastError = errs.Message(err)
		m.log.Warn("server logout failed, local session cleared", zap.Error(err))
	} else {
		m.log.Info("logged out")
	}
	metrics.SessionTransitionsTotal.WithLabelValues("logout").Inc()
	snap := m.state
	m.persistLocked()
	m.mu.Unlock()

	m.hub.Publish(snap)
	if err != nil {
		return &errs.AuthError{Op: "logout", Err: err}
	}
	return nil
}

// ClearError drops LastError.
func (m *Manager) ClearError() {
	m.mu.Lock()
	m.state.LastError = ""
	m.mu.Unlock()
}

// persistLocked writes the current state; m.mu must be held.
// A storage failure does not undo the transition, it is only logged.
func (m *Manager) persistLocked() {
	rec := model.PersistedSession{
		LoggedIn:    m.state.LoggedIn,
		AccessToken: m.state.Token,
		DisplayName: m.state.DisplayName,
		ExpiresAt:   m.state.ExpiresAt,
	}
	b, err := json.Marshal(rec)
	if err == nil {
		err = m.store.Save(StorageKey, b)
	}
	if err != nil {
		m.log.Error("persist session", zap.Error(err))
	}
}

// restore adopts the persisted record if its token is still valid.
func (m *Manager) restore() {
	rec, err := m.load()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		m.reject(err)
		return
	case !rec.LoggedIn || rec.AccessToken == "":
		return
	}

	exp := parseClaims(rec.AccessToken).expiry()
	if exp.IsZero() {
		exp = rec.ExpiresAt
	}
	if exp.IsZero() {
		m.reject(errors.New("persisted token has no known expiry"))
		return
	}
	if !m.clock.Now().Before(exp) {
		m.reject(fmt.Errorf("%w at %s", errs.ErrTokenExpired, exp.Format(time.RFC3339)))
		return
	}

	m.mu.Lock()
	m.state = model.SessionState{
		LoggedIn:    true,
		Token:       rec.AccessToken,
		DisplayName: rec.DisplayName,
		ExpiresAt:   exp,
	}
	m.mu.Unlock()
	metrics.SessionTransitionsTotal.WithLabelValues("restore").Inc()
	m.log.Debug("session restored", zap.Time("expires_at", exp))
}

func (m *Manager) load() (model.PersistedSession, error) {
	var rec model.PersistedSession
	b, err := m.store.Load(StorageKey)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode persisted session: %w", err)
	}
	return rec, nil
}

// reject treats an unusable persisted session as logged out and overwrites it.
func (m *Manager) reject(reason error) {
	metrics.SessionTransitionsTotal.WithLabelValues("restore_rejected").Inc()
	m.log.Info("persisted session rejected", zap.Error(reason))
	m.mu.Lock()
	m.state = model.SessionState{}
	m.persistLocked()
	m.mu.Unlock()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
