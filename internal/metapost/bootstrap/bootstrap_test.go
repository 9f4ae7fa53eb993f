package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/sdk"
	"github.com/blacktop/metapost/internal/metapost/sdk/sdktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaderFor(p sdk.Provider) Loader {
	return func(context.Context) (sdk.Provider, error) { return p, nil }
}

func TestInitializeReportsStatus(t *testing.T) {
	fake := &sdktest.Provider{Status: sdk.LoginResponse{Status: sdk.StatusConnected, Token: "tok"}}
	b := New(loaderFor(fake), Config{AppID: "app", Version: "v18.0"})

	var got []sdk.LoginResponse
	b.OnStatus(func(r sdk.LoginResponse) { got = append(got, r) })

	p, err := b.Initialize(context.Background())
	require.NoError(t, err)
	assert.Same(t, fake, p)
	assert.True(t, b.Ready())
	require.Len(t, got, 1)
	assert.Equal(t, "tok", got[0].Token)

	opts := fake.InitOptions()
	require.NotNil(t, opts)
	assert.Equal(t, "app", opts.AppID)
	assert.Equal(t, sdk.DefaultScope, opts.Scope)
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name   string
		loader Loader
		reason string
	}{
		{
			name: "network",
			loader: func(context.Context) (sdk.Provider, error) {
				return nil, &metapost.NetworkError{Err: errors.New("dns")}
			},
			reason: "load",
		},
		{
			name:   "missing handle",
			loader: func(context.Context) (sdk.Provider, error) { return nil, nil },
			reason: "provider handle missing after load",
		},
		{
			name:   "init error",
			loader: loaderFor(&sdktest.Provider{InitErr: errors.New("bad app id")}),
			reason: "initialization error",
		},
		{
			name:   "panic",
			loader: func(context.Context) (sdk.Provider, error) { panic("init exploded") },
			reason: "initialization error",
		},
		{
			name:   "status error",
			loader: loaderFor(&sdktest.Provider{StatusErr: errors.New("no status")}),
			reason: "failed to get login status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.loader, Config{AppID: "app"})

			_, err := b.Initialize(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, metapost.ErrSdkLoadFailure)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.reason, le.Reason)

			state, lastErr := b.State()
			assert.Equal(t, StateFailed, state)
			assert.Equal(t, err, lastErr)
			assert.False(t, b.Ready())
		})
	}
}

func TestInitializeTimeout(t *testing.T) {
	b := New(func(ctx context.Context) (sdk.Provider, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, Config{AppID: "app", LoadTimeout: 20 * time.Millisecond})

	_, err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, metapost.ErrSdkLoadFailure)
	assert.Contains(t, err.Error(), "timed out")
}

func TestInitializeTimeoutClosesLateProvider(t *testing.T) {
	fake := &sdktest.Provider{Status: sdk.LoginResponse{Status: sdk.StatusUnknown}}
	finish := make(chan struct{})
	b := New(func(context.Context) (sdk.Provider, error) {
		<-finish
		return fake, nil
	}, Config{AppID: "app", LoadTimeout: 20 * time.Millisecond})

	_, err := b.Initialize(context.Background())
	require.ErrorIs(t, err, metapost.ErrSdkLoadFailure)
	assert.False(t, b.Ready())

	close(finish)
	require.Eventually(t, func() bool { return fake.Closed() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Ready())
}

func TestReinitializeTearsDownPreviousHandle(t *testing.T) {
	first := &sdktest.Provider{}
	second := &sdktest.Provider{}
	providers := []*sdktest.Provider{first, second}
	b := New(func(context.Context) (sdk.Provider, error) {
		p := providers[0]
		providers = providers[1:]
		return p, nil
	}, Config{AppID: "app"})

	_, err := b.Initialize(context.Background())
	require.NoError(t, err)
	_, err = b.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Closed())
	assert.Equal(t, 0, second.Closed())

	h, ok := b.Handle()
	require.True(t, ok)
	assert.Same(t, second, h)

	b.Teardown()
	assert.Equal(t, 1, second.Closed())
	state, _ := b.State()
	assert.Equal(t, StateIdle, state)
}

func TestFailedInitClosesHandle(t *testing.T) {
	fake := &sdktest.Provider{InitErr: errors.New("bad")}
	b := New(loaderFor(fake), Config{AppID: "app"})

	_, err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, fake.Closed())
}
