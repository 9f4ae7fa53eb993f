package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/facebook"
	"github.com/blacktop/metapost/internal/metapost/graph"
	"github.com/blacktop/metapost/internal/metapost/instagram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func graphServer(t *testing.T, log *callLog) *graph.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v18.0/p1/photos", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "false", r.FormValue("published"))
		assert.Equal(t, "pt1", r.FormValue("access_token"))
		assert.Empty(t, r.FormValue("message"))
		log.add("upload")
		_, _ = io.WriteString(w, `{"id":"photo9"}`)
	})
	mux.HandleFunc("GET /v18.0/photo9", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pt1", r.Header.Get("Authorization"))
		log.add("images")
		_, _ = io.WriteString(w, `{"id":"photo9","images":[{"width":320,"height":320,"source":"https://cdn.example/small.png"},{"width":1080,"height":1080,"source":"https://cdn.example/full.png"}]}`)
	})
	mux.HandleFunc("POST /v18.0/ig1/media", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn.example/full.png", body["image_url"])
		assert.Empty(t, body["caption"])
		log.add("container")
		_, _ = io.WriteString(w, `{"id":"creation-77"}`)
	})
	mux.HandleFunc("POST /v18.0/ig1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		log.add("publish:" + body["creation_id"])
		_, _ = io.WriteString(w, `{"id":"media-1"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.add("unexpected " + r.Method + " " + r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return graph.New(graph.Config{BaseURL: srv.URL, Version: "v18.0"})
}

func TestPublishImageOnlyToInstagram(t *testing.T) {
	log := &callLog{}
	client := graphServer(t, log)
	res := &fakeResolver{page: page}
	o := New(res, facebook.New(client), instagram.New(client))

	d := metapost.NewDraft()
	d.SetImage(png)
	require.NoError(t, d.Select(metapost.TargetInstagram, true))
	require.NoError(t, d.Select(metapost.TargetFacebook, false))

	results, err := o.Publish(context.Background(), d, session, linked)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, metapost.PublishResult{Target: metapost.TargetInstagram, Success: true, RemoteID: "media-1"}, results[0])

	assert.Equal(t, []string{"upload", "images", "container", "publish:creation-77"}, log.list())
	assert.Zero(t, res.calls)
	assert.Equal(t, metapost.NewDraft().Snapshot(), d.Snapshot())
}
