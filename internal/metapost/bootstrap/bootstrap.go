// Package bootstrap owns the identity provider handle and its load lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/future"
	"github.com/blacktop/metapost/internal/metapost/sdk"
)

// DefaultLoadTimeout bounds how long a load may take before it counts as failed.
const DefaultLoadTimeout = 10 * time.Second

// State is the bootstrap lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Loader produces a fresh provider handle.
type Loader func(ctx context.Context) (sdk.Provider, error)

// Config describes how the provider is initialized.
type Config struct {
	AppID       string
	Version     string
	Scope       []string
	LoadTimeout time.Duration
}

func (cfg *Config) defaults() {
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.Scope == nil {
		cfg.Scope = sdk.DefaultScope
	}
}

// LoadError explains why a load failed. It matches metapost.ErrSdkLoadFailure.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity provider failed to load: %s", e.Reason)
	}
	return fmt.Sprintf("identity provider failed to load: %s: %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches metapost.ErrSdkLoadFailure.
func (e *LoadError) Is(target error) bool { return target == metapost.ErrSdkLoadFailure }

var errLoadTimeout = errors.New("no load signal")

// Bootstrap holds the single provider handle. Other components reach it only through Handle.
type Bootstrap struct {
	cfg  Config
	load Loader

	mu       sync.Mutex
	handle   sdk.Provider
	state    State
	lastErr  error
	onStatus []func(sdk.LoginResponse)
}

// New returns an idle bootstrap.
func New(load Loader, cfg Config) *Bootstrap {
	cfg.defaults()
	return &Bootstrap{cfg: cfg, load: load, state: StateIdle}
}

// OnStatus registers a callback for the login status reported after a successful load.
func (b *Bootstrap) OnStatus(fn func(sdk.LoginResponse)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStatus = append(b.onStatus, fn)
}

type loaded struct {
	provider sdk.Provider
	status   sdk.LoginResponse
}

// Initialize loads and initializes the provider, replacing any previous handle.
func (b *Bootstrap) Initialize(ctx context.Context) (sdk.Provider, error) {
	b.Teardown()
	b.mu.Lock()
	b.state = StateLoading
	b.mu.Unlock()

	logutil.Debugf("loading identity provider: timeout=%s", b.cfg.LoadTimeout)
	res, err := future.WithTimeoutRelease(ctx, b.cfg.LoadTimeout, errLoadTimeout, b.loadOnce, func(late loaded) {
		logutil.Debugf("closing provider that finished loading after the timeout")
		closeProvider(late.provider)
	})
	if err != nil {
		return nil, b.fail(toLoadError(err))
	}

	b.mu.Lock()
	b.handle = res.provider
	b.state = StateReady
	b.lastErr = nil
	callbacks := append([]func(sdk.LoginResponse){}, b.onStatus...)
	b.mu.Unlock()

	logutil.Debugf("identity provider ready: status=%s", res.status.Status)
	for _, fn := range callbacks {
		fn(res.status)
	}
	return res.provider, nil
}

func (b *Bootstrap) loadOnce(ctx context.Context) (loaded, error) {
	if b.load == nil {
		return loaded{}, &LoadError{Reason: "no loader configured"}
	}
	p, err := b.load(ctx)
	if err != nil {
		return loaded{}, &LoadError{Reason: "load", Err: err}
	}
	if p == nil {
		return loaded{}, &LoadError{Reason: "provider handle missing after load"}
	}
	if err := p.Init(ctx, sdk.InitOptions{AppID: b.cfg.AppID, Version: b.cfg.Version, Scope: b.cfg.Scope}); err != nil {
		closeProvider(p)
		return loaded{}, &LoadError{Reason: "initialization error", Err: err}
	}
	status, err := p.GetLoginStatus(ctx)
	if err != nil {
		closeProvider(p)
		return loaded{}, &LoadError{Reason: "failed to get login status", Err: err}
	}
	return loaded{provider: p, status: status}, nil
}

func toLoadError(err error) *LoadError {
	var le *LoadError
	switch {
	case errors.As(err, &le):
		return le
	case errors.Is(err, errLoadTimeout):
		return &LoadError{Reason: "timed out waiting for provider"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &LoadError{Reason: "cancelled", Err: err}
	}
	// panics recovered by the future land here
	return &LoadError{Reason: "initialization error", Err: err}
}

func (b *Bootstrap) fail(err *LoadError) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateFailed
	b.lastErr = err
	logutil.Debugf("identity provider failed: %v", err)
	return err
}

// Teardown closes and clears the current handle.
func (b *Bootstrap) Teardown() {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	b.state = StateIdle
	b.lastErr = nil
	b.mu.Unlock()

	if h != nil {
		closeProvider(h)
	}
}

// Handle returns the provider when the bootstrap is ready.
func (b *Bootstrap) Handle() (sdk.Provider, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady || b.handle == nil {
		return nil, false
	}
	return b.handle, true
}

// Ready reports whether a provider is loaded.
func (b *Bootstrap) Ready() bool {
	_, ok := b.Handle()
	return ok
}

// State returns the lifecycle state and the last load error.
func (b *Bootstrap) State() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.lastErr
}

func closeProvider(p sdk.Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logutil.Debugf("close provider: %v", err)
		}
	}
}
