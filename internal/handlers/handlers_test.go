package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittowire/pkg/protocol"
)

func TestHello(t *testing.T) {
	resp, err := Hello{}.ServeWire(context.Background(), &protocol.Request{Path: HelloPath, Body: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello from server, your body was: [abc]", string(resp.Body))

	resp, err = Hello{}.ServeWire(context.Background(), &protocol.Request{Path: HelloPath})
	require.NoError(t, err)
	assert.Equal(t, "Hello from server, your body was: []", string(resp.Body))
}

func TestDelay(t *testing.T) {
	d := NewDelay(50 * time.Millisecond)

	t.Run("NoHeader", func(t *testing.T) {
		resp, err := d.ServeWire(context.Background(), &protocol.Request{Path: DelayPath})
		require.NoError(t, err)
		assert.Equal(t, "Waited for 0ms", string(resp.Body))
	})

	t.Run("Waits", func(t *testing.T) {
		start := time.Now()
		resp, err := d.ServeWire(context.Background(), &protocol.Request{
			Path:    DelayPath,
			Headers: map[string]string{protocol.DelayHeader: "20"},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusOK, resp.StatusCode)
		assert.Equal(t, "Waited for 20ms", string(resp.Body))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("Clamped", func(t *testing.T) {
		resp, err := d.ServeWire(context.Background(), &protocol.Request{
			Path:    DelayPath,
			Headers: map[string]string{protocol.DelayHeader: "99999999999999"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Waited for 50ms", string(resp.Body))
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, v := range []string{"abc", "-5", "1.5", ""} {
			_, err := d.ServeWire(context.Background(), &protocol.Request{
				Path:    DelayPath,
				Headers: map[string]string{protocol.DelayHeader: v},
			})
			assert.ErrorIs(t, err, ErrInvalidDelay, "value %q", v)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		slow := NewDelay(time.Minute)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := slow.ServeWire(ctx, &protocol.Request{
			Path:    DelayPath,
			Headers: map[string]string{protocol.DelayHeader: "60000"},
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func newTestKV(t *testing.T) *KV {
	t.Helper()
	kv, err := NewKV(KVOptions{BlockCacheSizeMB: 1, IndexCacheSizeMB: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func kvRequest(op, key string, body []byte) *protocol.Request {
	headers := map[string]string{}
	if op != "" {
		headers[KVOpHeader] = op
	}
	if key != "" {
		headers[KVKeyHeader] = key
	}
	return &protocol.Request{Path: KVPath, Headers: headers, Body: body}
}

func TestKV(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	resp, err := kv.ServeWire(ctx, kvRequest("get", "a", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.StatusCode)

	resp, err = kv.ServeWire(ctx, kvRequest("PUT", "a", []byte("value-a")))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusCode)

	resp, err = kv.ServeWire(ctx, kvRequest("", "a", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "value-a", string(resp.Body))

	resp, err = kv.ServeWire(ctx, kvRequest("delete", "a", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusCode)

	resp, err = kv.ServeWire(ctx, kvRequest("get", "a", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.StatusCode)

	resp, err = kv.ServeWire(ctx, kvRequest("scan", "a", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusBadRequest, resp.StatusCode)

	_, err = kv.ServeWire(ctx, kvRequest("get", "", nil))
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestKVPersistsToDisk(t *testing.T) {
	dir := t.TempDir()

	kv, err := NewKV(KVOptions{DBPath: dir, BlockCacheSizeMB: 1, IndexCacheSizeMB: 1})
	require.NoError(t, err)
	_, err = kv.ServeWire(context.Background(), kvRequest("put", "k", []byte("v")))
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	kv, err = NewKV(KVOptions{DBPath: dir, BlockCacheSizeMB: 1, IndexCacheSizeMB: 1})
	require.NoError(t, err)
	defer kv.Close()

	resp, err := kv.ServeWire(context.Background(), kvRequest("get", "k", nil))
	require.NoError(t, err)
	assert.Equal(t, "v", string(resp.Body))
}

func TestDecodeKVOptions(t *testing.T) {
	opts, err := DecodeKVOptions(map[string]any{
		"db_path":             "/tmp/kv",
		"block_cache_size_mb": 8,
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kv", opts.DBPath)
	assert.Equal(t, int64(8), opts.BlockCacheSizeMB)

	_, err = DecodeKVOptions(map[string]any{"db_path": []int{1}})
	assert.Error(t, err)
}
