package sdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/graph"
	"github.com/cli/browser"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// DefaultCallbackPort is the local port the OAuth redirect lands on.
const DefaultCallbackPort = 8339

// Config holds the app credentials and endpoints of a Graph provider.
type Config struct {
	AppID     string
	AppSecret string
	// AccessToken is an optional preset user token; when set Login skips the browser flow.
	AccessToken  string
	Version      string
	BaseURL      string
	CallbackPort int
	// AuthURL and TokenURL override the facebook OAuth endpoints.
	AuthURL  string
	TokenURL string
	// OpenBrowser opens the login dialog. Defaults to the system browser.
	OpenBrowser func(string) error
}

// Graph implements Provider on top of the Graph API and the facebook OAuth dialog.
type Graph struct {
	cfg    Config
	client *graph.Client
	oauth  *oauth2.Config

	mu    sync.Mutex
	token string
	ready bool
}

// NewGraph constructs a provider. Nothing touches the network until Init.
func NewGraph(cfg Config) *Graph {
	if cfg.Version == "" {
		cfg.Version = graph.DefaultVersion
	}
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = DefaultCallbackPort
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = browser.OpenURL
	}
	return &Graph{cfg: cfg, token: strings.TrimSpace(cfg.AccessToken)}
}

// Client returns the Graph client built by Init.
func (g *Graph) Client() *graph.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client
}

// Init validates the app configuration and checks the Graph host is reachable.
func (g *Graph) Init(ctx context.Context, opts InitOptions) error {
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		appID = g.cfg.AppID
	}
	if appID == "" {
		return metapost.ValidationError{Provider: "sdk", Reason: "app id is required"}
	}
	version := opts.Version
	if version == "" {
		version = g.cfg.Version
	}
	if !strings.HasPrefix(version, "v") {
		return metapost.ValidationError{Provider: "sdk", Reason: fmt.Sprintf("invalid api version %q", version)}
	}

	client := graph.New(graph.Config{BaseURL: g.cfg.BaseURL, Version: version})
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("reach graph api: %w", err)
	}

	endpoint := facebook.Endpoint
	if g.cfg.AuthURL != "" {
		endpoint.AuthURL = g.cfg.AuthURL
	}
	if g.cfg.TokenURL != "" {
		endpoint.TokenURL = g.cfg.TokenURL
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = client
	g.oauth = &oauth2.Config{
		ClientID:     appID,
		ClientSecret: g.cfg.AppSecret,
		Endpoint:     endpoint,
		Scopes:       opts.Scope,
	}
	g.ready = true
	logutil.Debugf("sdk initialized: app_id=%s version=%s", appID, version)
	return nil
}

// Close forgets the session token and the initialized client.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
	g.oauth = nil
	g.ready = false
	g.token = ""
	return nil
}

func (g *Graph) state() (*graph.Client, *oauth2.Config, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return nil, nil, "", metapost.ErrSdkNotLoaded
	}
	return g.client, g.oauth, g.token, nil
}

// GetLoginStatus validates the current token against /me.
func (g *Graph) GetLoginStatus(ctx context.Context) (LoginResponse, error) {
	client, _, token, err := g.state()
	if err != nil {
		return LoginResponse{}, err
	}
	if token == "" {
		return LoginResponse{Status: StatusUnknown}, nil
	}

	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	params := url.Values{}
	params.Set("fields", "id,name")
	if err := client.WithToken(ctx, token).Get(ctx, "me", params, &me); err != nil {
		var apiErr *metapost.RemoteAPIError
		if errors.As(err, &apiErr) && apiErr.OAuthException() {
			logutil.Debugf("stored token rejected: code=%d", apiErr.Code)
			g.setToken("")
			return LoginResponse{Status: StatusNotAuthorized}, nil
		}
		return LoginResponse{}, err
	}
	logutil.Debugf("login status: connected user_id=%s", me.ID)
	return LoginResponse{Status: StatusConnected, Token: token, UserID: me.ID}, nil
}

// Login authenticates the user. A preset token is validated instead of opening the dialog.
func (g *Graph) Login(ctx context.Context, scope []string) (LoginResponse, error) {
	_, oc, token, err := g.state()
	if err != nil {
		return LoginResponse{}, err
	}
	if token != "" {
		return g.GetLoginStatus(ctx)
	}
	if oc.ClientSecret == "" {
		return LoginResponse{}, metapost.MissingEnvError{Provider: "facebook", Variables: []string{"app secret"}}
	}

	cs, err := startCallbackServer(g.cfg.CallbackPort)
	if err != nil {
		return LoginResponse{}, err
	}
	defer cs.shutdown()

	flow := *oc
	flow.Scopes = scope
	flow.RedirectURL = cs.RedirectURL()

	state := uuid.NewString()
	authURL := flow.AuthCodeURL(state,
		oauth2.SetAuthURLParam("auth_type", "rerequest"),
		oauth2.SetAuthURLParam("return_scopes", "true"),
	)
	if err := g.cfg.OpenBrowser(authURL); err != nil {
		logutil.Warnf("could not open browser (%v); open this URL manually:\n%s", err, authURL)
	} else {
		logutil.Infof("waiting for login in your browser")
	}

	res, err := cs.wait(ctx)
	if err != nil {
		return LoginResponse{}, err
	}
	if res.state != state {
		return LoginResponse{}, errors.New("state mismatch: possible CSRF attack")
	}
	switch {
	case res.errCode != "" && res.reason == "user_denied":
		return LoginResponse{Status: StatusUnknown}, nil
	case res.errCode != "":
		logutil.Debugf("login dialog error: error=%s reason=%s", res.errCode, res.reason)
		return LoginResponse{Status: StatusNotAuthorized}, nil
	}

	tok, err := flow.Exchange(ctx, res.code)
	if err != nil {
		return LoginResponse{}, classifyExchangeError(ctx, err)
	}

	g.setToken(tok.AccessToken)
	resp := LoginResponse{Status: StatusConnected, Token: tok.AccessToken}
	if res.granted != "" {
		resp.GrantedScopes = strings.Split(res.granted, ",")
	}
	return resp, nil
}

// API performs an authenticated Graph call.
func (g *Graph) API(ctx context.Context, path, method string, params url.Values, out any) error {
	client, _, token, err := g.state()
	if err != nil {
		return err
	}
	if params.Get("access_token") == "" {
		if token == "" {
			return metapost.ErrNotAuthorized
		}
		client = client.WithToken(ctx, token)
	}
	return client.Do(ctx, method, path, params, out)
}

func (g *Graph) setToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

func classifyExchangeError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &metapost.NetworkError{Op: "exchange code", Err: err}
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		msg := rErr.ErrorDescription
		if msg == "" {
			msg = string(rErr.Body)
		}
		apiErr := &metapost.RemoteAPIError{Message: msg, Type: rErr.ErrorCode}
		if rErr.Response != nil {
			apiErr.HTTPStatus = rErr.Response.StatusCode
		}
		return apiErr
	}
	return fmt.Errorf("exchange code: %w", err)
}
