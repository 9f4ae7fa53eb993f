// Package graph is a minimal Graph API client covering the page, photo and
// instagram content publishing endpoints.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v18.0"

	defaultReadRetries = 2
	requestTimeout     = 30 * time.Second
	maxErrorBody       = 512
)

// Config controls where and how the client talks to the Graph API.
type Config struct {
	BaseURL string
	Version string
	// ReadRetries bounds retries of GET requests. Writes are never retried.
	ReadRetries int
	// RetryWaitMin and RetryWaitMax tune the GET backoff; zero keeps the retryablehttp defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func (cfg *Config) defaults() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.ReadRetries == 0 {
		cfg.ReadRetries = defaultReadRetries
	}
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
}

// Client issues Graph API calls.
type Client struct {
	endpoint string
	read     *http.Client
	write    *http.Client
}

// New constructs a client. GETs go through a retrying transport, POSTs do not.
func New(cfg Config) *Client {
	cfg.defaults()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = requestTimeout
	rc.RetryMax = cfg.ReadRetries
	rc.Logger = logutil.Leveled()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}

	write := cleanhttp.DefaultPooledClient()
	write.Timeout = requestTimeout

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.Version, "/"),
		read:     rc.StandardClient(),
		write:    write,
	}
}

// Endpoint returns the versioned base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// WithToken returns a client that authenticates every request with token.
func (c *Client) WithToken(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &Client{
		endpoint: c.endpoint,
		read:     oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.read), ts),
		write:    oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.write), ts),
	}
}

// Ping checks that the Graph host answers. Any HTTP response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.write.Do(req)
	if err != nil {
		return transportError(ctx, "ping", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Do issues a generic call with form or query parameters.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, out any) error {
	switch strings.ToUpper(method) {
	case "", http.MethodGet:
		return c.Get(ctx, path, params, out)
	case http.MethodPost:
		return c.PostForm(ctx, path, params, out)
	case http.MethodDelete:
		query, token := liftToken(params)
		return c.send(ctx, c.write, http.MethodDelete, c.url(path, query), nil, "", token, out)
	}
	return fmt.Errorf("unsupported method %q", method)
}

// Get issues a GET with query parameters. An access_token parameter is sent
// as a bearer header and never appears in the URL.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	query, token := liftToken(params)
	return c.send(ctx, c.read, http.MethodGet, c.url(path, query), nil, "", token, out)
}

// PostForm issues a form encoded POST.
func (c *Client) PostForm(ctx context.Context, path string, params url.Values, out any) error {
	body := []byte(params.Encode())
	return c.send(ctx, c.write, http.MethodPost, c.url(path, nil), body, "application/x-www-form-urlencoded", "", out)
}

// PostJSON issues a JSON POST.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return c.send(ctx, c.write, http.MethodPost, c.url(path, nil), body, "application/json", "", out)
}

// PostMultipart uploads img as the "source" part alongside fields.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, img *metapost.Image, out any) error {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="source"; filename=%q`, img.Name))
		h.Set("Content-Type", img.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create source part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return fmt.Errorf("write source part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return c.send(ctx, c.write, http.MethodPost, c.url(path, nil), buf.Bytes(), mw.FormDataContentType(), "", out)
}

// liftToken splits access_token out of params.
func liftToken(params url.Values) (url.Values, string) {
	token := params.Get("access_token")
	if token == "" {
		return params, ""
	}
	query := make(url.Values, len(params))
	for k, v := range params {
		if k != "access_token" {
			query[k] = v
		}
	}
	return query, token
}

func (c *Client) url(path string, params url.Values) string {
	u := c.endpoint + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}
	return u
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, rawURL string, body []byte, contentType, token string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logutil.Debugf("graph request: method=%s path=%s", method, redactedPath(req.URL))
	resp, err := hc.Do(req)
	if err != nil {
		return transportError(ctx, method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, "read response", err)
	}
	logutil.Debugf("graph response: status=%d bytes=%d", resp.StatusCode, len(data))

	if apiErr := decodeError(resp.StatusCode, data); apiErr != nil {
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorEnvelope struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func decodeError(status int, data []byte) error {
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error != nil {
		return &metapost.RemoteAPIError{
			Message:    env.Error.Message,
			Type:       env.Error.Type,
			Code:       env.Error.Code,
			Subcode:    env.Error.Subcode,
			TraceID:    env.Error.FBTraceID,
			HTTPStatus: status,
		}
	}
	if status >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &metapost.RemoteAPIError{Message: msg, HTTPStatus: status}
	}
	return nil
}

func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &metapost.NetworkError{Op: op, Err: redactedError{err: err}}
}

// redactedError masks access tokens that transport errors echo from the request URL.
type redactedError struct {
	err error
}

func (e redactedError) Error() string { return logutil.Redact(e.err.Error()) }

func (e redactedError) Unwrap() error { return e.err }

func redactedPath(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return logutil.Redact(u.Path + "?" + u.RawQuery)
}
