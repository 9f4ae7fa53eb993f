package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:      srv.URL,
		Version:      "v18.0",
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func TestRemoteErrorDecoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"(#10) Application does not have permission","type":"OAuthException","code":10,"error_subcode":2207,"fbtrace_id":"Abc"}}`)
	}))

	_, err := c.PostFeed(context.Background(), "123", "page-token", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, metapost.ErrRemoteAPI)

	var apiErr *metapost.RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10, apiErr.Code)
	assert.Equal(t, 2207, apiErr.Subcode)
	assert.Equal(t, "Abc", apiErr.TraceID)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
}

func TestErrorPayloadWithOKStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"message":"Unsupported post request"}}`)
	}))

	_, err := c.CreateMediaContainer(context.Background(), "ig", "tok", "https://cdn/x.jpg", "")
	assert.ErrorIs(t, err, metapost.ErrRemoteAPI)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":"p1","images":[{"width":10,"height":10,"source":"https://cdn/small.jpg"},{"width":100,"height":80,"source":"https://cdn/big.jpg"}]}`)
	}))

	got, err := c.PhotoURL(context.Background(), "p1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/big.jpg", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.PublishMediaContainer(context.Background(), "ig", "tok", "c1")
	assert.ErrorIs(t, err, metapost.ErrRemoteAPI)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, ReadRetries: -1})
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, metapost.ErrNetwork)
}

func TestNetworkErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, ReadRetries: -1})
	params := url.Values{"fields": {"id,name"}, "access_token": {"SECRET"}}
	err := c.Get(context.Background(), "me/accounts", params, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, metapost.ErrNetwork)
	assert.NotContains(t, err.Error(), "SECRET")
	assert.NotContains(t, fmt.Errorf("get pages: %w", err).Error(), "SECRET")
}

func TestGetSendsTokenAsHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer page-token", r.Header.Get("Authorization"))
		assert.False(t, r.URL.Query().Has("access_token"))
		assert.Equal(t, "images", r.URL.Query().Get("fields"))
		_, _ = io.WriteString(w, `{"id":"p1","images":[{"width":1,"height":1,"source":"https://cdn/x.jpg"}]}`)
	}))

	got, err := c.PhotoURL(context.Background(), "p1", "page-token")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", got)
}

func TestUploadPhotoMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/page1/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "page-token", r.FormValue("access_token"))
		assert.Equal(t, "false", r.FormValue("published"))
		assert.Empty(t, r.FormValue("message"))

		file, hdr, err := r.FormFile("source")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "shot.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("pngdata"), data)

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "photo1"})
	}))

	img := &metapost.Image{Name: "shot.png", ContentType: "image/png", Data: []byte("pngdata")}
	photo, err := c.UploadPhoto(context.Background(), "page1", "page-token", PhotoUpload{Image: img})
	require.NoError(t, err)
	assert.Equal(t, "photo1", photo.ID)
}

func TestWithTokenSetsBearer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"id":"1","name":"Page","access_token":"pt"}]}`)
	}))

	var pages Pages
	require.NoError(t, c.WithToken(context.Background(), "user-token").Get(context.Background(), "me/accounts", nil, &pages))
	require.Len(t, pages.Data, 1)
	assert.Equal(t, "pt", pages.Data[0].AccessToken)
}

func TestPublishRequiresCreationID(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.PublishMediaContainer(context.Background(), "ig", "tok", "")
	assert.ErrorIs(t, err, ErrEmptyID)
}
