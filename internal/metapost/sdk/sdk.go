// Package sdk defines the identity provider surface the rest of metapost
// depends on, and a Graph API backed implementation of it.
package sdk

import (
	"context"
	"net/url"
)

// Status is the login status reported by the provider.
type Status string

const (
	StatusConnected     Status = "connected"
	StatusNotAuthorized Status = "not_authorized"
	StatusUnknown       Status = "unknown"
)

// LoginResponse is the answer to GetLoginStatus and Login.
type LoginResponse struct {
	Status        Status
	Token         string
	UserID        string
	GrantedScopes []string
}

// Authenticated reports whether the response carries a token.
func (r LoginResponse) Authenticated() bool {
	return r.Status == StatusConnected && r.Token != ""
}

// InitOptions configures the provider.
type InitOptions struct {
	AppID   string
	Version string
	Scope   []string
}

// Provider is the four call surface of the identity provider.
type Provider interface {
	Init(ctx context.Context, opts InitOptions) error
	GetLoginStatus(ctx context.Context) (LoginResponse, error)
	Login(ctx context.Context, scope []string) (LoginResponse, error)
	// API performs an authenticated call. An access_token in params overrides the session token.
	API(ctx context.Context, path, method string, params url.Values, out any) error
}

// DefaultScope is the permission set requested at bootstrap.
var DefaultScope = []string{"pages_read_engagement", "pages_manage_posts", "pages_show_list"}

// LoginScope is the permission set requested on login.
var LoginScope = []string{
	"pages_read_engagement",
	"pages_manage_posts",
	"pages_show_list",
	"instagram_basic",
	"instagram_content_publish",
}
