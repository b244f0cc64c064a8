package config

import (
	"strings"
	"testing"

	"github.com/marmos91/dittowire/internal/handlers"
)

func TestCreateBufferPool(t *testing.T) {
	pool, err := CreateBufferPool(&BufferPoolConfig{BufferSize: 128, MinPoolSize: 2, MaxPoolSize: 4})
	if err != nil {
		t.Fatalf("Failed to create buffer pool: %v", err)
	}
	if pool.BufferSize() != 128 {
		t.Errorf("Expected buffer size 128, got %d", pool.BufferSize())
	}
	if got := pool.Stats().Idle; got != 2 {
		t.Errorf("Expected 2 prepopulated buffers, got %d", got)
	}
}

func TestCreateBufferPool_Invalid(t *testing.T) {
	_, err := CreateBufferPool(&BufferPoolConfig{BufferSize: 0, MaxPoolSize: 4})
	if err == nil {
		t.Fatal("Expected error for zero buffer size")
	}
	if !strings.Contains(err.Error(), "buffer pool") {
		t.Errorf("Expected buffer pool error, got: %v", err)
	}
}

func TestCreateExecutor(t *testing.T) {
	exec, err := CreateExecutor(&ExecutorConfig{MaxConcurrentTasks: 3})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	if exec.MaxConcurrentTasks() != 3 {
		t.Errorf("Expected 3 permits, got %d", exec.MaxConcurrentTasks())
	}

	if _, err := CreateExecutor(&ExecutorConfig{MaxConcurrentTasks: 0}); err == nil {
		t.Fatal("Expected error for zero permits")
	}
}

func TestCreateRouter_Defaults(t *testing.T) {
	cfg := GetDefaultConfig()

	result, err := CreateRouter(&cfg.Handlers)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	defer result.Close()

	paths := result.Router.Paths()
	if len(paths) != 2 || paths[0] != handlers.DelayPath || paths[1] != handlers.HelloPath {
		t.Errorf("Expected [/delay /hello], got %v", paths)
	}
}

func TestCreateRouter_KV(t *testing.T) {
	cfg := &HandlersConfig{
		KV: KVHandlerConfig{
			Enabled: true,
			Options: map[string]any{
				"db_path":             t.TempDir(),
				"block_cache_size_mb": 1,
				"index_cache_size_mb": 1,
			},
		},
	}

	result, err := CreateRouter(cfg)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}

	if _, err := result.Router.Resolve(handlers.KVPath); err != nil {
		t.Errorf("Expected /kv to be registered: %v", err)
	}
	if err := result.Close(); err != nil {
		t.Errorf("Failed to close handler resources: %v", err)
	}
}

func TestCreateRouter_BadKVOptions(t *testing.T) {
	cfg := &HandlersConfig{
		Hello: HelloHandlerConfig{Enabled: true},
		KV: KVHandlerConfig{
			Enabled: true,
			Options: map[string]any{"db_path": []int{1, 2}},
		},
	}

	if _, err := CreateRouter(cfg); err == nil {
		t.Fatal("Expected error for undecodable kv options")
	}
}

func TestCreateRouter_NoneEnabled(t *testing.T) {
	if _, err := CreateRouter(&HandlersConfig{}); err == nil {
		t.Fatal("Expected error when no handlers are enabled")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	pool, err := CreateBufferPool(&cfg.BufferPool)
	if err != nil {
		t.Fatalf("Failed to create buffer pool: %v", err)
	}

	adapters, err := CreateAdapters(cfg, pool, nil)
	if err != nil {
		t.Fatalf("Failed to create adapters: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Protocol() != "WIRE" {
		t.Fatalf("Expected one WIRE adapter, got %v", adapters)
	}
	if adapters[0].Port() != DefaultWirePort {
		t.Errorf("Expected adapter port %d, got %d", DefaultWirePort, adapters[0].Port())
	}

	cfg.Adapters.Wire.Enabled = false
	if _, err := CreateAdapters(cfg, pool, nil); err == nil {
		t.Fatal("Expected error when no adapters are enabled")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg)
	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.WireMetrics == nil {
		t.Error("Expected no-op wire metrics, got nil")
	}
}
