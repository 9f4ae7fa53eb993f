package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	name metapost.Target
	id   string
	err  error

	mu    sync.Mutex
	calls []metapost.Request
	block chan struct{}
}

func (f *fakePoster) Name() metapost.Target { return f.name }

func (f *fakePoster) Post(ctx context.Context, req metapost.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func (f *fakePoster) Plan(req metapost.Request) []string {
	return []string{"POST /" + req.Page.ID + "/" + string(f.name)}
}

func (f *fakePoster) requests() []metapost.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metapost.Request(nil), f.calls...)
}

type fakeResolver struct {
	page  metapost.Resource
	err   error
	calls int
}

func (f *fakeResolver) PrimaryResource(context.Context, metapost.Session) (metapost.Resource, error) {
	f.calls++
	return f.page, f.err
}

var (
	session = metapost.Session{Status: metapost.SessionConnected, Token: "user-token"}
	page    = metapost.Resource{ID: "p1", Name: "Page", AccessToken: "pt1"}
	linked  = &metapost.LinkedAccount{Status: metapost.LinkConnected, AccountID: "ig1", Page: page}
	png     = &metapost.Image{Name: "a.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
)

func setup(fbErr, igErr error) (*Orchestrator, *fakePoster, *fakePoster, *fakeResolver) {
	fb := &fakePoster{name: metapost.TargetFacebook, id: "p1_1", err: fbErr}
	ig := &fakePoster{name: metapost.TargetInstagram, id: "media-1", err: igErr}
	res := &fakeResolver{page: page}
	return New(res, fb, ig), fb, ig, res
}

func bothTargets(t *testing.T) *metapost.Draft {
	t.Helper()
	d := metapost.NewDraft()
	d.SetText("hello")
	d.SetImage(png)
	require.NoError(t, d.Select(metapost.TargetInstagram, true))
	return d
}

func TestPublishValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		draft func() *metapost.Draft
	}{
		{"empty draft", metapost.NewDraft},
		{"no targets", func() *metapost.Draft {
			d := metapost.NewDraft()
			d.SetText("hello")
			_ = d.Select(metapost.TargetFacebook, false)
			return d
		}},
		{"blank text", func() *metapost.Draft {
			d := metapost.NewDraft()
			d.SetText("   ")
			return d
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, fb, ig, res := setup(nil, nil)
			d := tt.draft()

			results, err := o.Publish(context.Background(), d, session, linked)
			assert.ErrorIs(t, err, metapost.ErrValidation)
			assert.Nil(t, results)
			assert.Empty(t, fb.requests())
			assert.Empty(t, ig.requests())
			assert.Zero(t, res.calls)
			assert.False(t, d.Posting())
		})
	}
}

func TestPublishSuccessResetsDraft(t *testing.T) {
	o, fb, ig, _ := setup(nil, nil)
	d := bothTargets(t)

	results, err := o.Publish(context.Background(), d, session, linked)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, metapost.PublishResult{Target: metapost.TargetFacebook, Success: true, RemoteID: "p1_1"}, results[0])
	assert.Equal(t, metapost.PublishResult{Target: metapost.TargetInstagram, Success: true, RemoteID: "media-1"}, results[1])

	assert.Equal(t, metapost.NewDraft().Snapshot(), d.Snapshot())

	require.Len(t, ig.requests(), 1)
	igReq := ig.requests()[0]
	assert.Equal(t, "ig1", igReq.AccountID)
	assert.Equal(t, "pt1", igReq.Page.AccessToken)
	assert.Equal(t, png, igReq.Image)
	require.Len(t, fb.requests(), 1)
	assert.Equal(t, "hello", fb.requests()[0].Message)
}

func TestPublishMixedOutcome(t *testing.T) {
	containerErr := &metapost.StepError{
		Target: metapost.TargetInstagram,
		Step:   "create container",
		Err:    &metapost.RemoteAPIError{Message: "bad image", Code: 9004},
	}
	o, _, _, _ := setup(nil, containerErr)
	d := bothTargets(t)
	before := d.Snapshot()

	results, err := o.Publish(context.Background(), d, session, linked)
	require.Error(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, metapost.TargetFacebook, results[0].Target)
	assert.False(t, results[1].Success)
	assert.Equal(t, metapost.TargetInstagram, results[1].Target)
	assert.ErrorIs(t, results[1].Err, metapost.ErrRemoteAPI)
	assert.ErrorIs(t, err, metapost.ErrRemoteAPI)
	assert.Equal(t, "instagram: create container: graph api error 9004: bad image", err.Error())

	after := d.Snapshot()
	assert.False(t, after.Posting)
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Image, after.Image)
	assert.Equal(t, before.Targets, after.Targets)
}

func TestPublishResolvesPrimaryResource(t *testing.T) {
	o, fb, _, res := setup(nil, nil)
	d := metapost.NewDraft()
	d.SetText("text only")

	results, err := o.Publish(context.Background(), d, session, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, page, fb.requests()[0].Page)
}

func TestPublishResolutionFailureFailsTargets(t *testing.T) {
	o, fb, _, res := setup(nil, nil)
	res.err = metapost.ErrNoPrimaryResource
	d := metapost.NewDraft()
	d.SetText("text only")

	results, err := o.Publish(context.Background(), d, session, nil)
	assert.ErrorIs(t, err, metapost.ErrNoPrimaryResource)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Empty(t, fb.requests())
	assert.Equal(t, "text only", d.Snapshot().Text)
}

func TestPublishInstagramWithoutLinkedAccount(t *testing.T) {
	o, fb, ig, _ := setup(nil, nil)
	d := bothTargets(t)
	unresolved := &metapost.LinkedAccount{Status: metapost.LinkError, LastError: metapost.ErrNoLinkedAccount}

	results, err := o.Publish(context.Background(), d, session, unresolved)
	assert.ErrorIs(t, err, metapost.ErrNoLinkedAccount)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.ErrorIs(t, results[1].Err, metapost.ErrNoLinkedAccount)
	assert.Len(t, fb.requests(), 1)
	assert.Empty(t, ig.requests())
}

func TestPublishRejectsReentry(t *testing.T) {
	o, fb, _, _ := setup(nil, nil)
	fb.block = make(chan struct{})
	d := metapost.NewDraft()
	d.SetText("hello")

	done := make(chan error, 1)
	go func() {
		_, err := o.Publish(context.Background(), d, session, linked)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(fb.requests()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.Posting())

	_, err := o.Publish(context.Background(), d, session, linked)
	assert.ErrorIs(t, err, metapost.ErrPublishInProgress)

	close(fb.block)
	require.NoError(t, <-done)
	assert.False(t, d.Posting())
	assert.Len(t, fb.requests(), 1)
}

func TestPublishCancelled(t *testing.T) {
	o, fb, _, _ := setup(nil, nil)
	d := metapost.NewDraft()
	d.SetText("hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.Publish(ctx, d, session, linked)
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, results, 1)
	assert.Empty(t, fb.requests())
	assert.Equal(t, "hello", d.Snapshot().Text)
}

func TestPlan(t *testing.T) {
	o, fb, ig, _ := setup(nil, nil)
	d := bothTargets(t)

	plans, err := o.Plan(d, nil)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.NoError(t, plans[0].Err)
	assert.ErrorIs(t, plans[1].Err, metapost.ErrNoLinkedAccount)

	plans, err = o.Plan(d, linked)
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /p1/instagram"}, plans[1].Calls)

	assert.Empty(t, fb.requests())
	assert.Empty(t, ig.requests())
	assert.False(t, d.Posting())

	_, err = o.Plan(metapost.NewDraft(), nil)
	assert.ErrorIs(t, err, metapost.ErrValidation)
}
