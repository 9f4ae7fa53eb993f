// Package sdktest provides a scripted sdk.Provider for tests.
package sdktest

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/blacktop/metapost/internal/metapost/sdk"
)

// LoginResult is one scripted answer to Login.
type LoginResult struct {
	Response sdk.LoginResponse
	Err      error
	// Block makes the call wait for ctx cancellation.
	Block bool
}

// Call records one API invocation.
type Call struct {
	Path   string
	Method string
	Params url.Values
}

// APIFunc answers an API call with a JSON body or an error.
type APIFunc func(path, method string, params url.Values) (string, error)

// Provider is a scripted sdk.Provider.
type Provider struct {
	InitErr   error
	Status    sdk.LoginResponse
	StatusErr error
	Logins    []LoginResult
	APIFunc   APIFunc

	mu         sync.Mutex
	loginCalls int
	apiCalls   []Call
	initOpts   *sdk.InitOptions
	closed     int
}

// Init records the options and returns InitErr.
func (p *Provider) Init(_ context.Context, opts sdk.InitOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initOpts = &opts
	return p.InitErr
}

// GetLoginStatus returns the scripted status.
func (p *Provider) GetLoginStatus(context.Context) (sdk.LoginResponse, error) {
	return p.Status, p.StatusErr
}

// Login pops the next scripted result.
func (p *Provider) Login(ctx context.Context, _ []string) (sdk.LoginResponse, error) {
	p.mu.Lock()
	idx := p.loginCalls
	p.loginCalls++
	if idx >= len(p.Logins) {
		p.mu.Unlock()
		return sdk.LoginResponse{}, errors.New("sdktest: unexpected login call")
	}
	res := p.Logins[idx]
	p.mu.Unlock()

	if res.Block {
		<-ctx.Done()
		return sdk.LoginResponse{}, ctx.Err()
	}
	return res.Response, res.Err
}

// API records the call and decodes the scripted JSON into out.
func (p *Provider) API(_ context.Context, path, method string, params url.Values, out any) error {
	p.mu.Lock()
	p.apiCalls = append(p.apiCalls, Call{Path: path, Method: method, Params: params})
	fn := p.APIFunc
	p.mu.Unlock()

	if fn == nil {
		return errors.New("sdktest: no api handler")
	}
	body, err := fn(path, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

// Close counts teardowns.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// LoginCalls returns how many times Login was invoked.
func (p *Provider) LoginCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCalls
}

// APICalls returns the recorded API calls.
func (p *Provider) APICalls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.apiCalls...)
}

// InitOptions returns the options Init received, or nil.
func (p *Provider) InitOptions() *sdk.InitOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initOpts
}

// Closed returns how many times Close was called.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
