// Package auth drives login against the primary platform.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/future"
	"github.com/blacktop/metapost/internal/metapost/sdk"
)

const (
	DefaultMaxAttempts  = 3
	DefaultLoginTimeout = 15 * time.Second
	DefaultBaseDelay    = 2 * time.Second
)

// ProviderSource hands out the loaded provider, if any.
type ProviderSource interface {
	Handle() (sdk.Provider, bool)
}

// Config tunes the login policy.
type Config struct {
	MaxAttempts  int
	LoginTimeout time.Duration
	// BaseDelay is multiplied by the attempt number before a network retry.
	BaseDelay time.Duration
	Scope     []string
	// Sleep waits between retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (cfg *Config) defaults() {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LoginTimeout == 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Scope == nil {
		cfg.Scope = sdk.LoginScope
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
}

// Machine is the login state machine: idle → attempting_login → connected | error.
type Machine struct {
	src ProviderSource
	cfg Config

	mu       sync.Mutex
	session  metapost.Session
	attempts int
	onError  []func(error)
}

// New returns an idle machine.
func New(src ProviderSource, cfg Config) *Machine {
	cfg.defaults()
	return &Machine{
		src:     src,
		cfg:     cfg,
		session: metapost.Session{Status: metapost.SessionIdle},
	}
}

// OnError registers a hook run on every transition into the error state.
func (m *Machine) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
}

// Session returns a copy of the current session.
func (m *Machine) Session() metapost.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Token returns the session credential, or "" when not connected.
func (m *Machine) Token() string {
	s := m.Session()
	if !s.Connected() {
		return ""
	}
	return s.Token
}

// HandleLoginStatus applies the status reported when the provider loaded.
func (m *Machine) HandleLoginStatus(resp sdk.LoginResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.Authenticated() {
		m.session = metapost.Session{Status: metapost.SessionConnected, Token: resp.Token}
		m.attempts = 0
		return
	}
	m.session = metapost.Session{Status: metapost.SessionIdle, RetryCount: m.attempts}
}

// Reset clears the session and the attempt counter.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = metapost.Session{Status: metapost.SessionIdle}
	m.attempts = 0
}

// Login runs one user-triggered login, auto-retrying network failures
// with a linear backoff until the attempt cap is reached.
func (m *Machine) Login(ctx context.Context) (metapost.Session, error) {
	for {
		attempt, retry, err := m.attempt(ctx)
		if err == nil {
			return m.Session(), nil
		}
		if !retry {
			return m.Session(), err
		}
		delay := m.cfg.BaseDelay * time.Duration(attempt)
		logutil.Infof("network error during login, retrying in %s (attempt %d/%d)", delay, attempt+1, m.cfg.MaxAttempts)
		if serr := m.cfg.Sleep(ctx, delay); serr != nil {
			return m.Session(), serr
		}
	}
}

func (m *Machine) attempt(ctx context.Context) (int, bool, error) {
	p, ok := m.src.Handle()
	if !ok {
		return 0, false, m.fail(metapost.ErrSdkNotLoaded)
	}

	m.mu.Lock()
	m.attempts++
	n := m.attempts
	m.session.Status = metapost.SessionAuthenticating
	m.session.LastError = nil
	m.session.RetryCount = n
	m.mu.Unlock()

	if n > m.cfg.MaxAttempts {
		return n, false, m.fail(metapost.ErrTooManyAttempts)
	}

	logutil.Debugf("login attempt: attempt=%d timeout=%s", n, m.cfg.LoginTimeout)
	resp, err := future.WithTimeout(ctx, m.cfg.LoginTimeout, metapost.ErrLoginTimedOut, func(ctx context.Context) (sdk.LoginResponse, error) {
		return p.Login(ctx, m.cfg.Scope)
	})
	switch {
	case err != nil:
		retry := errors.Is(err, metapost.ErrNetwork) && n < m.cfg.MaxAttempts
		return n, retry, m.fail(err)
	case resp.Authenticated():
		m.mu.Lock()
		m.session = metapost.Session{Status: metapost.SessionConnected, Token: resp.Token}
		m.attempts = 0
		m.mu.Unlock()
		logutil.Debugf("login succeeded: user_id=%s scopes=%v", resp.UserID, resp.GrantedScopes)
		return n, false, nil
	case resp.Status == sdk.StatusNotAuthorized:
		return n, false, m.fail(metapost.ErrNotAuthorized)
	default:
		return n, false, m.fail(metapost.ErrLoginCancelled)
	}
}

func (m *Machine) fail(err error) error {
	m.mu.Lock()
	m.session.Status = metapost.SessionError
	m.session.Token = ""
	m.session.LastError = err
	hooks := append([]func(error){}, m.onError...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
