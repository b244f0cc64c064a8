package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/internal/handlers"
	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/router"
)

// CreateBufferPool creates the shared buffer pool.
//
// An invalid pool configuration is a startup error: the pool is the only
// cross-connection resource and nothing can be served without it.
func CreateBufferPool(cfg *BufferPoolConfig) (*bufpool.Pool, error) {
	pool, err := bufpool.New(bufpool.Config{
		BufferSize:  cfg.BufferSize,
		MinPoolSize: cfg.MinPoolSize,
		MaxPoolSize: cfg.MaxPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer pool: %w", err)
	}

	logger.Debug("Buffer pool created: buffer_size=%d min=%d max=%d",
		cfg.BufferSize, cfg.MinPoolSize, cfg.MaxPoolSize)

	return pool, nil
}

// CreateExecutor creates the bounded handler executor.
func CreateExecutor(cfg *ExecutorConfig) (*executor.Executor, error) {
	exec, err := executor.New(executor.Config{MaxConcurrentTasks: cfg.MaxConcurrentTasks})
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	return exec, nil
}

// RouterResult holds the populated router and the resources its handlers own.
type RouterResult struct {
	Router *router.Router

	// closers release handler resources (e.g. the kv store) at shutdown
	closers []io.Closer
}

// Close releases all handler resources. Errors are joined.
func (r *RouterResult) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreateRouter registers every enabled handler on a new router.
//
// Handler-specific options are decoded from their free-form maps by the
// handler package. On error, any handler already opened is closed.
func CreateRouter(cfg *HandlersConfig) (*RouterResult, error) {
	result := &RouterResult{Router: router.New()}

	fail := func(err error) (*RouterResult, error) {
		_ = result.Close()
		return nil, err
	}

	if cfg.Hello.Enabled {
		if err := result.Router.Register(handlers.HelloPath, handlers.Hello{}); err != nil {
			return fail(err)
		}
	}

	if cfg.Delay.Enabled {
		if err := result.Router.Register(handlers.DelayPath, handlers.NewDelay(cfg.Delay.MaxDelay)); err != nil {
			return fail(err)
		}
	}

	if cfg.KV.Enabled {
		opts, err := handlers.DecodeKVOptions(cfg.KV.Options)
		if err != nil {
			return fail(err)
		}
		kv, err := handlers.NewKV(opts)
		if err != nil {
			return fail(fmt.Errorf("failed to create kv handler: %w", err))
		}
		result.closers = append(result.closers, kv)

		if err := result.Router.Register(handlers.KVPath, kv); err != nil {
			return fail(err)
		}
	}

	if len(result.Router.Paths()) == 0 {
		return fail(fmt.Errorf("no handlers enabled in configuration"))
	}

	logger.Debug("Registered routes: %v", result.Router.Paths())

	return result, nil
}
