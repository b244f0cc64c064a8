package wire

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/pkg/dispatch"
	"github.com/marmos91/dittowire/pkg/protocol"
	"github.com/marmos91/dittowire/pkg/router"
)

type testServer struct {
	adapter *WireAdapter
	pool    *bufpool.Pool
	cancel  context.CancelFunc
	done    chan error

	helloCalls atomic.Int32
	release    chan struct{}
}

func startServer(t *testing.T, cfg WireConfig) *testServer {
	t.Helper()

	ts := &testServer{release: make(chan struct{})}

	pool, err := bufpool.New(bufpool.Config{BufferSize: 64, MinPoolSize: 2, MaxPoolSize: 8})
	require.NoError(t, err)
	ts.pool = pool

	r := router.New()
	require.NoError(t, r.Register("/hello", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		ts.helloCalls.Add(1)
		return protocol.NewResponse(200, []byte("Hello from server, your body was: ["+string(req.Body)+"]")), nil
	})))
	require.NoError(t, r.Register("/big", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(200, make([]byte, 4096)), nil
	})))
	require.NoError(t, r.Register("/block", router.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		select {
		case <-ts.release:
			return protocol.NewResponse(200, []byte("released")), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})))

	exec, err := executor.New(executor.Config{MaxConcurrentTasks: 4})
	require.NoError(t, err)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	cfg.BindAddress = "127.0.0.1"

	ts.adapter = New(cfg, pool, nil)
	ts.adapter.SetDispatcher(dispatch.New(r, exec, nil))

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	ts.done = make(chan error, 1)
	go func() { ts.done <- ts.adapter.Serve(ctx) }()

	select {
	case <-ts.adapter.Ready():
	case err := <-ts.done:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = exec.Close(closeCtx)
	})

	return ts
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ts.adapter.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, path string, headers map[string]string, body string) {
	t.Helper()
	frame, err := protocol.EncodeRequest(path, headers, []byte(body))
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func receive(t *testing.T, conn net.Conn) *protocol.Response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := protocol.ReadResponse(conn, 0)
	require.NoError(t, err)
	return resp
}

// assertClosedByServer waits for the server side to close the connection.
func assertClosedByServer(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var b [1]byte
	_, err := conn.Read(b[:])
	assert.ErrorIs(t, err, io.EOF)
}

var keepAlive = map[string]string{protocol.KeepAliveHeader: "true"}

func TestHelloRoundTrip(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	send(t, conn, "/hello", nil, "abc")
	resp := receive(t, conn)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello from server, your body was: [abc]", string(resp.Body))

	// No Keep-Alive header: server closes after the response.
	assertClosedByServer(t, conn)
}

func TestKeepAlive(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	for i := 0; i < 5; i++ {
		send(t, conn, "/hello", keepAlive, "x")
		resp := receive(t, conn)
		require.Equal(t, 200, resp.StatusCode)
	}
	assert.Equal(t, int32(5), ts.helloCalls.Load())

	// Any value other than "true" closes.
	send(t, conn, "/hello", map[string]string{protocol.KeepAliveHeader: "false"}, "")
	receive(t, conn)
	assertClosedByServer(t, conn)
}

func TestUnknownPathKeepsConnection(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	send(t, conn, "/nope", keepAlive, "")
	resp := receive(t, conn)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, dispatch.ServerErrorBody, string(resp.Body))

	send(t, conn, "/hello", nil, "still here")
	resp = receive(t, conn)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestChunkedRequest(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	frame, err := protocol.EncodeRequest("/hello", nil, []byte("slow"))
	require.NoError(t, err)
	for _, b := range frame {
		_, err := conn.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	resp := receive(t, conn)
	assert.Equal(t, "Hello from server, your body was: [slow]", string(resp.Body))
}

func TestLargeResponseUsesTemporaryBuffer(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	before := ts.pool.Stats().Temporaries
	send(t, conn, "/big", nil, "")
	resp := receive(t, conn)
	assert.Len(t, resp.Body, 4096)
	assert.Greater(t, ts.pool.Stats().Temporaries, before)
}

func TestPeerClosesAfterPrefix(t *testing.T) {
	ts := startServer(t, WireConfig{})
	conn := ts.dial(t)

	frame, err := protocol.EncodeRequest("/hello", nil, []byte("abc"))
	require.NoError(t, err)
	_, err = conn.Write(frame[:protocol.LengthPrefixSize])
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return ts.adapter.GetActiveConnections() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(0), ts.helloCalls.Load(), "handler must not run for an incomplete frame")
	assert.Equal(t, int64(0), ts.pool.Stats().Lent, "read buffer must be returned")
}

func TestProtocolErrorsClose(t *testing.T) {
	ts := startServer(t, WireConfig{MaxFrameSize: 128})

	t.Run("Oversized", func(t *testing.T) {
		conn := ts.dial(t)
		_, err := conn.Write([]byte{0, 0, 0, 100, 0, 0, 0, 100})
		require.NoError(t, err)
		assertClosedByServer(t, conn)
	})

	t.Run("Negative", func(t *testing.T) {
		conn := ts.dial(t)
		_, err := conn.Write([]byte{0x80, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		assertClosedByServer(t, conn)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		conn := ts.dial(t)
		// headerLength 3 but the path length claims 9 bytes
		_, err := conn.Write([]byte{0, 0, 0, 3, 0, 0, 0, 0, 0, 9, 'x'})
		require.NoError(t, err)
		assertClosedByServer(t, conn)
	})

	t.Run("Pipelined", func(t *testing.T) {
		conn := ts.dial(t)
		first, err := protocol.EncodeRequest("/hello", keepAlive, nil)
		require.NoError(t, err)
		second, err := protocol.EncodeRequest("/hello", nil, nil)
		require.NoError(t, err)
		_, err = conn.Write(append(first, second...))
		require.NoError(t, err)
		assertClosedByServer(t, conn)
	})

	assert.Equal(t, int32(0), ts.helloCalls.Load())
}

func TestIdleTimeout(t *testing.T) {
	ts := startServer(t, WireConfig{Timeouts: WireTimeoutsConfig{Idle: 100 * time.Millisecond}})
	conn := ts.dial(t)

	start := time.Now()
	assertClosedByServer(t, conn)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestConnectionLimit(t *testing.T) {
	ts := startServer(t, WireConfig{MaxConnections: 1})

	first := ts.dial(t)
	send(t, first, "/hello", keepAlive, "1")
	receive(t, first)

	// Second connection waits in the backlog while the first is open.
	second := ts.dial(t)
	send(t, second, "/hello", nil, "2")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := protocol.ReadResponse(second, 0)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	require.NoError(t, first.Close())

	resp := receive(t, second)
	assert.Equal(t, "Hello from server, your body was: [2]", string(resp.Body))
}

func TestRateLimitRejects(t *testing.T) {
	ts := startServer(t, WireConfig{RateLimit: WireRateLimitConfig{PerClientPerSecond: 1, PerClientBurst: 1}})

	first := ts.dial(t)
	send(t, first, "/hello", nil, "")
	receive(t, first)

	second := ts.dial(t)
	assertClosedByServer(t, second)
}

func TestGracefulShutdownFinishesInFlight(t *testing.T) {
	ts := startServer(t, WireConfig{})

	busy := ts.dial(t)
	send(t, busy, "/block", keepAlive, "")

	idle := ts.dial(t)
	send(t, idle, "/hello", keepAlive, "")
	receive(t, idle)

	require.Eventually(t, func() bool {
		return ts.adapter.dispatcher.Executor().Stats().Running == 1
	}, 5*time.Second, 10*time.Millisecond)

	ts.cancel()

	// The idle keep-alive connection is interrupted promptly.
	assertClosedByServer(t, idle)

	// The in-flight request still gets its response, then the connection closes.
	close(ts.release)
	resp := receive(t, busy)
	assert.Equal(t, "released", string(resp.Body))
	assertClosedByServer(t, busy)

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(0), ts.adapter.GetActiveConnections())
}

func TestShutdownTimeoutForceCloses(t *testing.T) {
	ts := startServer(t, WireConfig{ShutdownTimeout: 100 * time.Millisecond})

	busy := ts.dial(t)
	send(t, busy, "/block", nil, "")
	require.Eventually(t, func() bool {
		return ts.adapter.dispatcher.Executor().Stats().Running == 1
	}, 5*time.Second, 10*time.Millisecond)

	ts.cancel()

	select {
	case err := <-ts.done:
		assert.Error(t, err)
		ts.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, busy.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := protocol.ReadResponse(busy, 0)
	assert.Error(t, err)
}

func TestServeWithoutDispatcher(t *testing.T) {
	pool, err := bufpool.New(bufpool.Config{BufferSize: 64, MaxPoolSize: 1})
	require.NoError(t, err)

	a := New(WireConfig{BindAddress: "127.0.0.1"}, pool, nil)
	assert.Error(t, a.Serve(context.Background()))
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	pool, err := bufpool.New(bufpool.Config{BufferSize: 64, MaxPoolSize: 1})
	require.NoError(t, err)

	assert.Panics(t, func() { New(WireConfig{Port: 70000}, pool, nil) })
	assert.Panics(t, func() { New(WireConfig{}, nil, nil) })
}
