package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/auth"
	"github.com/blacktop/metapost/internal/metapost/bootstrap"
	"github.com/blacktop/metapost/internal/metapost/facebook"
	"github.com/blacktop/metapost/internal/metapost/graph"
	"github.com/blacktop/metapost/internal/metapost/instagram"
	"github.com/blacktop/metapost/internal/metapost/linked"
	"github.com/blacktop/metapost/internal/metapost/publish"
	"github.com/blacktop/metapost/internal/metapost/sdk"
)

// browserLoginTimeout leaves time to complete the facebook dialog in a browser.
const browserLoginTimeout = 3 * time.Minute

// app wires bootstrap, login, resolution and publishing for one command run.
type app struct {
	boot     *bootstrap.Bootstrap
	auth     *auth.Machine
	resolver *linked.Resolver
}

func newApp(cfg Config, draft *metapost.Draft) *app {
	load := func(context.Context) (sdk.Provider, error) {
		return sdk.NewGraph(sdk.Config{
			AppID:        cfg.AppID,
			AppSecret:    cfg.AppSecret,
			AccessToken:  cfg.AccessToken,
			Version:      cfg.GraphVersion,
			BaseURL:      cfg.GraphURL,
			CallbackPort: cfg.CallbackPort,
		}), nil
	}

	a := &app{}
	a.boot = bootstrap.New(load, bootstrap.Config{
		AppID:   cfg.AppID,
		Version: cfg.GraphVersion,
		Scope:   sdk.LoginScope,
	})
	authCfg := auth.Config{}
	if cfg.AccessToken == "" {
		authCfg.LoginTimeout = browserLoginTimeout
	}
	a.auth = auth.New(a.boot, authCfg)
	a.boot.OnStatus(a.auth.HandleLoginStatus)
	if draft != nil {
		a.auth.OnError(func(err error) {
			logutil.Debugf("login failed, releasing draft: %v", err)
			draft.AbortPosting()
		})
	}
	a.resolver = linked.New(a.boot)
	return a
}

// connect loads the provider and, when interactive, logs in if the initial
// status is not already connected.
func (a *app) connect(ctx context.Context, interactive bool) (metapost.Session, error) {
	if _, err := a.boot.Initialize(ctx); err != nil {
		return metapost.Session{}, err
	}
	session := a.auth.Session()
	if session.Connected() || !interactive {
		return session, nil
	}
	logutil.Infof("opening the browser to log in")
	return a.auth.Login(ctx)
}

func (a *app) client() (*graph.Client, error) {
	p, ok := a.boot.Handle()
	if !ok {
		return nil, metapost.ErrSdkNotLoaded
	}
	g, ok := p.(*sdk.Graph)
	if !ok || g.Client() == nil {
		return nil, fmt.Errorf("provider %T has no graph client", p)
	}
	return g.Client(), nil
}

func (a *app) orchestrator() (*publish.Orchestrator, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	return publish.New(a.resolver, facebook.New(client), instagram.New(client)), nil
}

func (a *app) close() {
	a.boot.Teardown()
}
