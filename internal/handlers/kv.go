package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/protocol"
)

// KVPath is the route the key-value handler is registered on.
const KVPath = "/kv"

const (
	// KVOpHeader selects the operation: get (default), put or delete.
	KVOpHeader = "Op"

	// KVKeyHeader names the key the operation applies to.
	KVKeyHeader = "Key"
)

// ErrMissingKey is returned when a /kv request carries no Key header.
var ErrMissingKey = errors.New("handlers: missing Key header")

// KVOptions configures the BadgerDB instance behind /kv.
//
// Decoded from the handlers.kv.options map of the configuration file.
type KVOptions struct {
	// DBPath is the database directory. Empty keeps the data in memory only.
	DBPath string `mapstructure:"db_path"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// DecodeKVOptions decodes a raw option map into KVOptions.
func DecodeKVOptions(raw map[string]any) (KVOptions, error) {
	var opts KVOptions
	if err := mapstructure.Decode(raw, &opts); err != nil {
		return KVOptions{}, fmt.Errorf("failed to decode kv handler options: %w", err)
	}
	return opts, nil
}

// KV serves get, put and delete requests against a BadgerDB store.
//
// Responses:
//   - get: 200 with the stored value, 404 if the key does not exist
//   - put: 200 "stored", the request body is the value
//   - delete: 200 "deleted", also for keys that did not exist
//   - unknown Op: 400
//
// A missing Key header is a handler error and therefore a generic 500.
type KV struct {
	db *badger.DB
}

// NewKV opens the store described by opts.
func NewKV(opts KVOptions) (*KV, error) {
	var bopts badger.Options
	if opts.DBPath == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.DBPath)
	}

	blockCacheMB := opts.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := opts.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	bopts = bopts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(bopts)
	if err != nil {
		if opts.DBPath == "" {
			return nil, fmt.Errorf("failed to open in-memory BadgerDB: %w", err)
		}
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.DBPath, err)
	}

	if opts.DBPath == "" {
		logger.Info("KV handler using in-memory store")
	} else {
		logger.Info("KV handler using BadgerDB at %s", opts.DBPath)
	}

	return &KV{db: db}, nil
}

// ServeWire implements router.Handler.
func (kv *KV) ServeWire(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, ok := req.Header(KVKeyHeader)
	if !ok || key == "" {
		return nil, ErrMissingKey
	}

	op, _ := req.Header(KVOpHeader)
	switch strings.ToLower(op) {
	case "", "get":
		return kv.get(key)
	case "put":
		return kv.put(key, req.Body)
	case "delete":
		return kv.delete(key)
	default:
		return protocol.NewResponse(StatusBadRequest, []byte(fmt.Sprintf("unknown op %q", op))), nil
	}
}

func (kv *KV) get(key string) (*protocol.Response, error) {
	var value []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return protocol.NewResponse(StatusNotFound, []byte("not found")), nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return protocol.NewResponse(StatusOK, value), nil
}

func (kv *KV) put(key string, value []byte) (*protocol.Response, error) {
	err := kv.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return nil, fmt.Errorf("kv put %q: %w", key, err)
	}
	return protocol.NewResponse(StatusOK, []byte("stored")), nil
}

func (kv *KV) delete(key string) (*protocol.Response, error) {
	err := kv.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return nil, fmt.Errorf("kv delete %q: %w", key, err)
	}
	return protocol.NewResponse(StatusOK, []byte("deleted")), nil
}

// Close flushes and closes the store.
func (kv *KV) Close() error {
	if err := kv.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
