// Package session owns the authenticated-identity lifecycle of one agent
// instance: login, logout, token resolution, profile refresh, inactivity
// expiry, remember-me persistence and cross-instance convergence over a
// shared persistent tier.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tourbook/sessiond/internal/broadcast"
	"tourbook/sessiond/internal/client"
	"tourbook/sessiond/internal/ids"
	"tourbook/sessiond/internal/models"
	"tourbook/sessiond/internal/store"
)

// IdentityAPI is the remote collaborator consulted by RefreshUser.
type IdentityAPI interface {
	UserByEmail(ctx context.Context, email string, token string) (models.IdentityPatch, error)
}

type NotificationKind string

const (
	// NotificationIdentity fires whenever the current identity changes,
	// including to none. UI layers redirect to login when they observe
	// the transition to none.
	NotificationIdentity NotificationKind = "identity"
	// NotificationChatCleared tells chat collaborators their cached
	// history was dropped on logout.
	NotificationChatCleared NotificationKind = "chat_cleared"
)

type Notification struct {
	Kind     NotificationKind
	Identity *models.Identity
}

type Config struct {
	RememberTTL      time.Duration
	InactivityWindow time.Duration
}

const (
	defaultRememberTTL      = 14 * 24 * time.Hour
	defaultInactivityWindow = 60 * time.Minute
)

type Manager struct {
	cfg         Config
	sessionTier store.Store
	persistent  store.Store
	bus         broadcast.Bus
	api         IdentityAPI
	log         zerolog.Logger
	origin      string

	mu          sync.Mutex
	current     *models.Identity
	loading     bool
	remembered  bool
	inactivity  *time.Timer
	unsubscribe func()
	closed      bool

	nextSubID      int
	subs           map[int]func(Notification)
	onUnauthorized func()
}

// New builds a manager over a shared persistent tier. The session tier is
// always a fresh in-process store, scoped to this instance the way
// session storage is scoped to one tab. api may be nil when the embedding
// application never refreshes profiles.
func New(persistent store.Store, bus broadcast.Bus, api IdentityAPI, cfg Config, log zerolog.Logger) *Manager {
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = defaultRememberTTL
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = defaultInactivityWindow
	}
	return &Manager{
		cfg:         cfg,
		sessionTier: store.NewMemory(),
		persistent:  persistent,
		bus:         bus,
		api:         api,
		log:         log,
		origin:      ids.New(),
		loading:     true,
		subs:        map[int]func(Notification){},
	}
}

// Initialize restores the best available session and wires up the
// cross-instance listener. Storage failures degrade to "no session";
// restoring state must never take the host application down.
func (m *Manager) Initialize(ctx context.Context) error {
	remembered := m.readPersistent(ctx, store.KeyRememberMe) == "true"
	expired := remembered && m.rememberHorizonPassed(ctx)

	m.mu.Lock()
	m.remembered = remembered
	m.mu.Unlock()

	if !expired {
		// Expired remembered sessions are dropped lazily: the stale keys
		// stay until the next explicit write or the janitor sweep.
		if identity, token, fromSession, ok := m.resolveStored(ctx); ok {
			if !fromSession {
				m.mirrorToSessionTier(ctx, identity, token)
			}
			m.setCurrent(&identity)
			if !remembered {
				m.mu.Lock()
				m.resetInactivityLocked()
				m.mu.Unlock()
			}
		}
	}

	unsubscribe, err := m.bus.Subscribe(m.handleEvent)
	if err != nil {
		m.finishLoading()
		return err
	}

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.finishLoading()
	return nil
}

func (m *Manager) finishLoading() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
	m.notify(Notification{Kind: NotificationIdentity, Identity: m.Current()})
}

// Login binds identity and token into the namespace derived from the
// identity's role. Remembered sessions live in the persistent tier only,
// with an absolute expiry horizon. Non-remembered sessions are written to
// both tiers: the session tier is authoritative for this instance, the
// persistent copy lets instances started later inherit the login.
func (m *Manager) Login(ctx context.Context, identity models.Identity, token string, remember bool) {
	m.mu.Lock()
	m.current = &identity
	m.remembered = remember
	if remember {
		m.stopInactivityLocked()
	} else {
		m.resetInactivityLocked()
	}
	m.mu.Unlock()

	userKey := store.UserKey(identity.Role)
	tokenKey := store.TokenKey(identity.Role)
	raw, err := identity.Encode()
	if err != nil {
		m.log.Error().Err(err).Msg("encode identity for login")
		return
	}

	m.writePersistent(ctx, userKey, raw)
	m.writePersistent(ctx, tokenKey, token)
	m.writePersistent(ctx, store.KeyAccessToken, token)

	if remember {
		// A namespace holds at most one session per tier; drop any stale
		// session-tier copy left by an earlier non-remembered login so it
		// cannot shadow the persistent record.
		if err := m.sessionTier.Delete(ctx, userKey, tokenKey); err != nil {
			m.log.Warn().Err(err).Msg("clear stale session tier")
		}
		expiry := time.Now().Add(m.cfg.RememberTTL).UnixMilli()
		m.writePersistent(ctx, store.KeyTokenExpiry, strconv.FormatInt(expiry, 10))
		m.writePersistent(ctx, store.KeyRememberMe, "true")
	} else {
		m.writeSession(ctx, userKey, raw)
		m.writeSession(ctx, tokenKey, token)
		m.deletePersistent(ctx, store.KeyTokenExpiry)
		m.writePersistent(ctx, store.KeyRememberMe, "false")
	}

	m.publish(ctx, broadcast.Event{Kind: broadcast.KindLogin, Role: identity.Role})
	m.notify(Notification{Kind: NotificationIdentity, Identity: &identity})
}

// Logout destroys the session for the given role, or for the current
// identity's role when omitted. Privileged logouts only clear and
// broadcast their own namespace so a STAFF instance never tears down a
// concurrently active ADMIN session. Safe to call repeatedly.
func (m *Manager) Logout(ctx context.Context, roles ...models.Role) {
	var target models.Role
	if len(roles) > 0 {
		target = roles[0]
	}

	m.mu.Lock()
	if target == "" && m.current != nil {
		target = m.current.Role
	}
	m.current = nil
	m.stopInactivityLocked()
	m.mu.Unlock()

	m.clearStorage(ctx, target)

	ev := broadcast.Event{Kind: broadcast.KindLogout}
	if target.Privileged() {
		ev.Role = target
	}
	m.publish(ctx, ev)

	m.notify(Notification{Kind: NotificationIdentity})
	m.notify(Notification{Kind: NotificationChatCleared})
}

func (m *Manager) clearStorage(ctx context.Context, role models.Role) {
	keys := store.SessionKeys(role)
	if err := m.sessionTier.Delete(ctx, keys...); err != nil {
		m.log.Warn().Err(err).Msg("clear session tier")
	}
	if err := m.persistent.Delete(ctx, keys...); err != nil {
		m.log.Warn().Err(err).Msg("clear persistent tier")
	}
	if err := m.persistent.Delete(ctx, store.HousekeepingKeys()...); err != nil {
		m.log.Warn().Err(err).Msg("clear housekeeping keys")
	}
	if err := m.sessionTier.Delete(ctx, store.KeyChatHistory); err != nil {
		m.log.Warn().Err(err).Msg("clear chat history")
	}
}

// UpdateUser replaces the current identity after a profile edit, keeping
// token and durability policy untouched. The record is mirrored into both
// tiers and the legacy key so every read site observes the edit at once.
func (m *Manager) UpdateUser(ctx context.Context, identity models.Identity) {
	m.setCurrent(&identity)

	raw, err := identity.Encode()
	if err != nil {
		m.log.Error().Err(err).Msg("encode identity for update")
		return
	}

	userKey := store.UserKey(identity.Role)
	m.writeSession(ctx, userKey, raw)
	m.writePersistent(ctx, userKey, raw)
	if userKey != store.KeyUser {
		m.writeSession(ctx, store.KeyUser, raw)
		m.writePersistent(ctx, store.KeyUser, raw)
	}

	m.publish(ctx, broadcast.Event{Kind: broadcast.KindLogin, Role: identity.Role})
	m.notify(Notification{Kind: NotificationIdentity, Identity: &identity})
}

// Token resolves the bearer credential for the current identity. A
// privileged identity reads strictly from its own namespace; falling back
// to another privileged namespace would let a STAFF instance silently act
// as ADMIN. Non-privileged identities search privileged namespaces before
// the legacy keys, which they share by design. Empty when unauthenticated.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current != nil && current.Role.Privileged() {
		return m.readTiered(ctx, store.TokenKey(current.Role))
	}

	for _, key := range []string{
		store.TokenKey(models.RoleAdmin),
		store.TokenKey(models.RoleStaff),
		store.KeyToken,
	} {
		if token := m.readTiered(ctx, key); token != "" {
			return token
		}
	}
	return ""
}

// RefreshUser resyncs the current identity from the identity API using a
// presence-aware merge: fields the response omits keep their previous
// value, fields it carries are adopted even when null. Returns nil when
// there is nothing to refresh or the call fails; a 401 is handed to the
// registered unauthorized handler instead of being acted on here.
func (m *Manager) RefreshUser(ctx context.Context) *models.Identity {
	m.mu.Lock()
	current := m.current
	api := m.api
	m.mu.Unlock()

	if current == nil || api == nil {
		return nil
	}
	token := m.Token(ctx)
	if token == "" {
		return nil
	}

	patch, err := api.UserByEmail(ctx, current.Email, token)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			m.log.Warn().Str("email", current.Email).Msg("identity refresh unauthorized")
			m.mu.Lock()
			handler := m.onUnauthorized
			m.mu.Unlock()
			if handler != nil {
				handler()
			}
			return nil
		}
		m.log.Warn().Err(err).Msg("identity refresh failed")
		return nil
	}

	merged := patch.Apply(*current)
	m.UpdateUser(ctx, merged)
	return &merged
}

// Touch registers user activity, pushing back the inactivity deadline of a
// non-remembered session. Remembered sessions ignore activity entirely and
// rely on the absolute expiry horizon.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remembered || m.current == nil || m.closed {
		return
	}
	m.resetInactivityLocked()
}

func (m *Manager) SetUnauthorizedHandler(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnauthorized = fn
}

// Subscribe registers a notification callback and returns its remover.
func (m *Manager) Subscribe(fn func(Notification)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) Current() *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}

func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

func (m *Manager) Remembered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remembered
}

func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.closed = true
	m.stopInactivityLocked()
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Manager) handleEvent(ev broadcast.Event) {
	if ev.Origin == m.origin {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch ev.Kind {
	case broadcast.KindLogout:
		m.handleRemoteLogout(ctx, ev)
	case broadcast.KindLogin:
		m.adoptStoredSession(ctx)
	}
}

// handleRemoteLogout applies another instance's logout locally, without
// re-broadcasting. Role-scoped events only affect instances authenticated
// as that role; the generic event only affects non-privileged identities.
func (m *Manager) handleRemoteLogout(ctx context.Context, ev broadcast.Event) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil {
		return
	}

	if ev.Role.Privileged() {
		if current.Role != ev.Role {
			return
		}
	} else if current.Role.Privileged() {
		return
	}

	m.mu.Lock()
	m.current = nil
	m.stopInactivityLocked()
	m.mu.Unlock()

	m.clearStorage(ctx, current.Role)
	m.notify(Notification{Kind: NotificationIdentity})
	m.notify(Notification{Kind: NotificationChatCleared})
}

// adoptStoredSession re-runs the startup resolution after another instance
// logged in or updated a profile, so this instance converges without a
// restart.
func (m *Manager) adoptStoredSession(ctx context.Context) {
	remembered := m.readPersistent(ctx, store.KeyRememberMe) == "true"
	if remembered && m.rememberHorizonPassed(ctx) {
		// Same gate as startup: a remembered session past its horizon is
		// never adopted, no matter which instance announced it.
		return
	}

	identity, token, fromSession, ok := m.resolveStored(ctx)
	if !ok {
		return
	}
	if !fromSession {
		m.mirrorToSessionTier(ctx, identity, token)
	}

	m.mu.Lock()
	m.remembered = remembered
	m.current = &identity
	if remembered {
		m.stopInactivityLocked()
	} else {
		m.resetInactivityLocked()
	}
	m.mu.Unlock()

	m.notify(Notification{Kind: NotificationIdentity, Identity: &identity})
}

// resolveStored scans namespaces in fixed precedence (ADMIN, STAFF, then
// legacy), preferring the session tier within each namespace. Malformed
// stored identities are treated as absent, never resurrected.
func (m *Manager) resolveStored(ctx context.Context) (models.Identity, string, bool, bool) {
	for _, role := range []models.Role{models.RoleAdmin, models.RoleStaff, models.RoleUser} {
		userKey := store.UserKey(role)
		tokenKey := store.TokenKey(role)

		for _, tier := range []store.Store{m.sessionTier, m.persistent} {
			raw, err := tier.Get(ctx, userKey)
			if err != nil {
				continue
			}
			token, err := tier.Get(ctx, tokenKey)
			if err != nil {
				continue
			}
			identity, err := models.DecodeIdentity(raw)
			if err != nil {
				m.log.Warn().Err(err).Str("key", userKey).Msg("skip malformed stored identity")
				continue
			}
			return identity, token, tier == m.sessionTier, true
		}
	}
	return models.Identity{}, "", false, false
}

func (m *Manager) mirrorToSessionTier(ctx context.Context, identity models.Identity, token string) {
	raw, err := identity.Encode()
	if err != nil {
		return
	}
	m.writeSession(ctx, store.UserKey(identity.Role), raw)
	m.writeSession(ctx, store.TokenKey(identity.Role), token)
}

func (m *Manager) setCurrent(identity *models.Identity) {
	m.mu.Lock()
	m.current = identity
	m.mu.Unlock()
}

func (m *Manager) notify(n Notification) {
	m.mu.Lock()
	fns := make([]func(Notification), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

func (m *Manager) publish(ctx context.Context, ev broadcast.Event) {
	ev.Origin = m.origin
	ev.At = time.Now()
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("broadcast publish failed")
	}
}

func (m *Manager) resetInactivityLocked() {
	if m.closed {
		return
	}
	if m.inactivity != nil {
		m.inactivity.Stop()
	}
	m.inactivity = time.AfterFunc(m.cfg.InactivityWindow, m.inactivityExpired)
}

func (m *Manager) stopInactivityLocked() {
	if m.inactivity != nil {
		m.inactivity.Stop()
		m.inactivity = nil
	}
}

func (m *Manager) inactivityExpired() {
	m.log.Info().Msg("session expired after inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Logout(ctx)
}

// rememberHorizonPassed reports whether the stored absolute expiry of a
// remembered session lies in the past. A missing or unparseable value
// means no horizon.
func (m *Manager) rememberHorizonPassed(ctx context.Context) bool {
	raw := m.readPersistent(ctx, store.KeyTokenExpiry)
	if raw == "" {
		return false
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return time.Now().UnixMilli() > expiry
}

func (m *Manager) readPersistent(ctx context.Context, key string) string {
	value, err := m.persistent.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			m.log.Warn().Err(err).Str("key", key).Msg("persistent read failed")
		}
		return ""
	}
	return value
}

func (m *Manager) readTiered(ctx context.Context, key string) string {
	if value, err := m.sessionTier.Get(ctx, key); err == nil {
		return value
	}
	return m.readPersistent(ctx, key)
}

func (m *Manager) writePersistent(ctx context.Context, key string, value string) {
	if err := m.persistent.Set(ctx, key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("persistent write failed")
	}
}

func (m *Manager) writeSession(ctx context.Context, key string, value string) {
	if err := m.sessionTier.Set(ctx, key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("session write failed")
	}
}

func (m *Manager) deletePersistent(ctx context.Context, keys ...string) {
	if err := m.persistent.Delete(ctx, keys...); err != nil {
		m.log.Warn().Err(err).Msg("persistent delete failed")
	}
}
