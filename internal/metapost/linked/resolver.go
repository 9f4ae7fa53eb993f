// Package linked discovers the instagram business account attached to the
// user's first managed facebook page.
package linked

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/graph"
	"github.com/blacktop/metapost/internal/metapost/sdk"
)

// ProviderSource hands out the loaded provider, if any.
type ProviderSource interface {
	Handle() (sdk.Provider, bool)
}

// Resolver looks up pages and linked accounts through the provider's API call.
type Resolver struct {
	src ProviderSource
}

// New returns a resolver.
func New(src ProviderSource) *Resolver {
	return &Resolver{src: src}
}

func (r *Resolver) provider(session metapost.Session) (sdk.Provider, error) {
	if !session.Connected() {
		return nil, metapost.ErrNotAuthorized
	}
	p, ok := r.src.Handle()
	if !ok {
		return nil, metapost.ErrSdkNotLoaded
	}
	return p, nil
}

// PrimaryResource returns the first page the user manages.
func (r *Resolver) PrimaryResource(ctx context.Context, session metapost.Session) (metapost.Resource, error) {
	p, err := r.provider(session)
	if err != nil {
		return metapost.Resource{}, err
	}

	params := url.Values{}
	params.Set("fields", "id,name,access_token")
	params.Set("access_token", session.Token)

	var pages graph.Pages
	if err := p.API(ctx, "me/accounts", http.MethodGet, params, &pages); err != nil {
		return metapost.Resource{}, fmt.Errorf("get pages: %w", err)
	}
	if len(pages.Data) == 0 {
		return metapost.Resource{}, metapost.ErrNoPrimaryResource
	}

	page := pages.Data[0]
	if page.ID == "" || page.AccessToken == "" {
		return metapost.Resource{}, fmt.Errorf("get pages: page %q returned without id or access token", page.Name)
	}
	logutil.Debugf("primary resource: page_id=%s name=%q pages=%d", page.ID, page.Name, len(pages.Data))
	return metapost.Resource{ID: page.ID, Name: page.Name, AccessToken: page.AccessToken}, nil
}

// Resolve finds the linked instagram account. On failure the returned account
// is in the error state and carries the error.
func (r *Resolver) Resolve(ctx context.Context, session metapost.Session) (metapost.LinkedAccount, error) {
	page, err := r.PrimaryResource(ctx, session)
	if err != nil {
		return failed(err), err
	}

	p, err := r.provider(session)
	if err != nil {
		return failed(err), err
	}

	params := url.Values{}
	params.Set("fields", "instagram_business_account")
	params.Set("access_token", page.AccessToken)

	var link graph.PageLink
	if err := p.API(ctx, page.ID, http.MethodGet, params, &link); err != nil {
		err = fmt.Errorf("get instagram account: %w", err)
		return failed(err), err
	}
	if link.InstagramBusinessAccount == nil || link.InstagramBusinessAccount.ID == "" {
		return failed(metapost.ErrNoLinkedAccount), metapost.ErrNoLinkedAccount
	}

	logutil.Debugf("linked account: page_id=%s account_id=%s", page.ID, link.InstagramBusinessAccount.ID)
	return metapost.LinkedAccount{
		Status:    metapost.LinkConnected,
		AccountID: link.InstagramBusinessAccount.ID,
		Page:      page,
	}, nil
}

func failed(err error) metapost.LinkedAccount {
	return metapost.LinkedAccount{Status: metapost.LinkError, LastError: err}
}
