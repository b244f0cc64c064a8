package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/pkg/protocol"
	"github.com/marmos91/dittowire/pkg/router"
)

func newDispatcher(t *testing.T, register func(r *router.Router)) *Dispatcher {
	t.Helper()

	r := router.New()
	register(r)

	exec, err := executor.New(executor.Config{MaxConcurrentTasks: 4})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Close(ctx)
	})

	return New(r, exec, nil)
}

func dispatch(t *testing.T, d *Dispatcher, req *protocol.Request) *Result {
	t.Helper()

	f, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Response)
	return res
}

func TestDispatch(t *testing.T) {
	boom := errors.New("boom")

	d := newDispatcher(t, func(r *router.Router) {
		require.NoError(t, r.Register("/hello", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(200, append([]byte("hi "), req.Body...)), nil
		})))
		require.NoError(t, r.Register("/teapot", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(418, nil), nil
		})))
		require.NoError(t, r.Register("/fail", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return nil, boom
		})))
		require.NoError(t, r.Register("/nil", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return nil, nil
		})))
		require.NoError(t, r.Register("/panic", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			panic("kaboom")
		})))
	})

	assert.True(t, d.Router().Sealed(), "dispatcher must seal the router")

	t.Run("Success", func(t *testing.T) {
		res := dispatch(t, d, &protocol.Request{Path: "/hello", Body: []byte("there")})
		assert.Equal(t, 200, res.Response.StatusCode)
		assert.Equal(t, "hi there", string(res.Response.Body))
		assert.False(t, res.StayAlive)
		assert.NoError(t, res.Err)
	})

	t.Run("StatusPreserved", func(t *testing.T) {
		res := dispatch(t, d, &protocol.Request{Path: "/teapot"})
		assert.Equal(t, 418, res.Response.StatusCode)
		assert.NotNil(t, res.Response.Body)
	})

	t.Run("KeepAlive", func(t *testing.T) {
		res := dispatch(t, d, &protocol.Request{Path: "/hello", Headers: map[string]string{"Keep-Alive": "True"}})
		assert.True(t, res.StayAlive)
	})

	cases := []struct {
		name      string
		path      string
		keepAlive bool
	}{
		{"UnknownPathCloses", "/nope", false},
		{"UnknownPathKeepsAlive", "/nope", true},
		{"EmptyPath", "", false},
		{"HandlerError", "/fail", true},
		{"NilResponse", "/nil", false},
		{"Panic", "/panic", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &protocol.Request{Path: tc.path}
			if tc.keepAlive {
				req.Headers = map[string]string{protocol.KeepAliveHeader: "true"}
			}
			res := dispatch(t, d, req)
			assert.Equal(t, StatusServerError, res.Response.StatusCode)
			assert.Equal(t, ServerErrorBody, string(res.Response.Body))
			assert.Equal(t, tc.keepAlive, res.StayAlive)
			assert.Error(t, res.Err)
		})
	}

	t.Run("HandlerErrorWrapped", func(t *testing.T) {
		res := d.Handle(context.Background(), &protocol.Request{Path: "/fail"})
		assert.ErrorIs(t, res.Err, boom)
	})

	t.Run("UnknownPathIsNoRoute", func(t *testing.T) {
		res := d.Handle(context.Background(), &protocol.Request{Path: "/nope"})
		assert.ErrorIs(t, res.Err, router.ErrNoRoute)
	})
}

func TestDispatchDoesNotBlockWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32

	d := newDispatcher(t, func(r *router.Router) {
		require.NoError(t, r.Register("/slow", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			started.Add(1)
			<-release
			return protocol.NewResponse(200, nil), nil
		})))
	})

	futures := make([]*executor.Future[*Result], 0, 10)
	begin := time.Now()
	for i := 0; i < 10; i++ {
		f, err := d.Dispatch(context.Background(), &protocol.Request{Path: "/slow"})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	assert.Less(t, time.Since(begin), time.Second)

	require.Eventually(t, func() bool { return started.Load() == 4 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(4), started.Load(), "executor cap exceeded")

	close(release)
	for _, f := range futures {
		res, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 200, res.Response.StatusCode)
	}
}
