// Package session keeps a client continuously authorized against the file
// service. A Manager owns the single token slot, refreshes it on a fixed
// interval while it remains valid, and latches refresh failures so they are
// surfaced instead of retried blindly. Dependent code queries the session
// through snapshots and the IsAuthenticated predicate; only the Manager
// writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EvanUsesRust/gb-emu/internal/tokenfile"
)

// ErrNotAuthenticated is returned by Token when no valid token is held.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// DefaultRefreshInterval is the period between scheduled token refreshes.
const DefaultRefreshInterval = 240 * time.Second

// Source records how the current token was obtained. A token stored by the
// refresh loop is tagged SourceRefresh; one stored by an interactive login
// is tagged SourceLogin. The distinction drives error clearing: a login can
// clear a latched refresh failure, another refresh cannot have happened
// while one is latched.
type Source int

const (
	SourceNone Source = iota
	SourceLogin
	SourceRefresh
)

func (s Source) String() string {
	switch s {
	case SourceLogin:
		return "login"
	case SourceRefresh:
		return "refresh"
	default:
		return "none"
	}
}

// State is the lifecycle manager's externally observable state.
type State int

const (
	StateUninitialized State = iota
	StateRefreshing
	StateAuthenticated
	StateAuthenticatedWithError
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRefreshing:
		return "refreshing"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthenticatedWithError:
		return "authenticated-with-error"
	default:
		return "unauthenticated"
	}
}

// Session is a point-in-time snapshot of the managed session.
type Session struct {
	AccessToken string
	Source      Source
	LastErr     error
}

// RefreshFunc exchanges the surrounding session context (cookies on the
// injected HTTP client) for a renewed access token.
type RefreshFunc func(ctx context.Context) (string, error)

// Config configures a Manager. Refresh may be nil, in which case the
// manager idles unauthenticated until a token arrives via SetAccessToken.
type Config struct {
	Refresh  RefreshFunc
	Interval time.Duration
	Logger   *slog.Logger

	// TokenPath, when set, persists the token across runs via tokenfile.
	TokenPath string
}

// Manager is the single writer of the session's token slot.
type Manager struct {
	refresh   RefreshFunc
	interval  time.Duration
	logger    *slog.Logger
	tokenPath string

	// now is the clock for validity checks. Tests override it.
	now func() time.Time

	mu       sync.Mutex
	token    string
	source   Source
	lastErr  error
	inFlight bool
	started  bool
}

// NewManager creates a Manager. If cfg.TokenPath holds a previously saved
// token it is loaded as the starting slot value.
func NewManager(cfg Config) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	m := &Manager{
		refresh:   cfg.Refresh,
		interval:  interval,
		logger:    logger,
		tokenPath: cfg.TokenPath,
		now:       time.Now,
	}

	if cfg.TokenPath != "" {
		tf, err := tokenfile.Load(cfg.TokenPath)
		if err != nil {
			return nil, fmt.Errorf("session: loading saved token: %w", err)
		}

		if tf.Token != "" {
			m.token = tf.Token
			m.source = sourceFromString(tf.Source)
			logger.Debug("loaded saved token", slog.String("source", tf.Source))
		}
	}

	return m, nil
}

// Start runs the refresh loop until ctx is canceled. If a refresh function
// is configured an initial refresh is attempted immediately; afterwards the
// loop ticks at the configured interval. A refresh completing after
// cancellation is discarded. Start returns once the loop has exited.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	if m.refresh == nil {
		m.logger.Debug("no refresh endpoint configured, session idles")
		<-ctx.Done()

		return
	}

	m.RefreshNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one scheduler evaluation: if the guard passes (valid token, no
// latched error, no refresh already in flight) a refresh is issued,
// otherwise the tick is suppressed entirely.
func (m *Manager) Tick(ctx context.Context) {
	if m.refresh == nil {
		return
	}

	m.mu.Lock()

	if m.inFlight || m.lastErr != nil || !m.validLocked() {
		suppressed := "in-flight refresh"
		if !m.inFlight {
			suppressed = "latched error"
			if m.lastErr == nil {
				suppressed = "token expired or absent"
			}
		}

		m.mu.Unlock()
		m.logger.Debug("refresh tick suppressed", slog.String("reason", suppressed))

		return
	}

	m.inFlight = true
	m.mu.Unlock()

	m.runRefresh(ctx)
}

// RefreshNow issues a refresh without the validity guard — at startup there
// may be no token yet, and the refresh cookie decides whether the call
// succeeds. It is a no-op when no refresh function is configured or one is
// already in flight.
func (m *Manager) RefreshNow(ctx context.Context) {
	if m.refresh == nil {
		return
	}

	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return
	}

	m.inFlight = true
	m.mu.Unlock()

	m.runRefresh(ctx)
}

// runRefresh performs the network call and publishes the outcome. The
// caller must have set inFlight.
func (m *Manager) runRefresh(ctx context.Context) {
	token, err := m.refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight = false

	// The manager was torn down while the call was in flight; discard.
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		m.lastErr = err
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))

		return
	}

	m.token = token
	m.source = SourceRefresh
	m.lastErr = nil
	m.persistLocked()
	m.logger.Debug("token refreshed")
}

// SetAccessToken stores a token obtained outside the refresh loop (an
// interactive login, typically). If the new token is valid and came from a
// non-refresh source while a refresh failure is latched, the failure is
// cleared and periodic refresh resumes on the next tick.
func (m *Manager) SetAccessToken(token string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.source = src

	if m.lastErr != nil && src != SourceRefresh && m.validLocked() {
		m.logger.Debug("refresh error cleared by new token", slog.String("source", src.String()))
		m.lastErr = nil
	}

	m.persistLocked()
}

// IsAuthenticated reports whether the held token's expiry, in unix seconds,
// is not strictly in the past. Pure: no side effects, never triggers a
// refresh, safe to call from rendering logic.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.validLocked()
}

// Token returns the current access token, implementing api.TokenSource.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validLocked() {
		return "", ErrNotAuthenticated
	}

	return m.token, nil
}

// Snapshot returns the current session state for display.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Session{AccessToken: m.token, Source: m.source, LastErr: m.lastErr}
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.inFlight:
		return StateRefreshing
	case m.validLocked() && m.lastErr == nil:
		return StateAuthenticated
	case m.validLocked():
		return StateAuthenticatedWithError
	case !m.started && m.token == "":
		return StateUninitialized
	default:
		return StateUnauthenticated
	}
}

// validLocked checks the held token's expiry against the clock. Caller
// holds mu.
func (m *Manager) validLocked() bool {
	return TokenValid(m.token, m.now())
}

// persistLocked writes the token slot to disk when persistence is
// configured. Failures are logged, not propagated — losing persistence must
// not break an otherwise authenticated session. Caller holds mu.
func (m *Manager) persistLocked() {
	if m.tokenPath == "" {
		return
	}

	err := tokenfile.Save(m.tokenPath, tokenfile.File{
		Token:   m.token,
		Source:  m.source.String(),
		SavedAt: m.now().UTC(),
	})
	if err != nil {
		m.logger.Warn("failed to persist token", slog.String("error", err.Error()))
	}
}

// TokenValid reports whether a token's exp claim, compared in unix seconds,
// is not strictly in the past at the given instant. The token is parsed
// without signature verification — validity of the signature is the
// server's concern; the client only needs the timestamp.
func TokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}

	var cl jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &cl); err != nil {
		return false
	}

	if cl.ExpiresAt == nil {
		return false
	}

	return cl.ExpiresAt.Unix() >= now.Unix()
}

func sourceFromString(s string) Source {
	switch s {
	case "login":
		return SourceLogin
	case "refresh":
		return SourceRefresh
	default:
		return SourceNone
	}
}
