// Package badger implements a storage service on an embedded BadgerDB.
//
// Objects are stored as plain key/value pairs keyed by their absolute path;
// the generic kv backend provides listing, copy and rename on top.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/kv"
)

// Config configures the badger service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path" validate:"required_without=InMemory"`

	// InMemory keeps the whole database in memory (tests, caches).
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the block cache size.
	// Default: 256
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"omitempty,min=0"`

	// IndexCacheSizeMB is the index cache size.
	// Default: 128
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" validate:"omitempty,min=0"`
}

// Backend is the badger service.
type Backend struct {
	*kv.Backend
	db *badger.DB
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, store.NewError(store.KindConfigInvalid, "path is required").
			WithContext("service", string(store.SchemeBadger))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 256
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 128
	}

	opts = opts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}
	logger.Debug("badger: opened database (path=%q, in_memory=%v)", cfg.Path, cfg.InMemory)

	a := &adapter{db: db}
	return &Backend{
		Backend: kv.New(a, kv.Options{
			Scheme: store.SchemeBadger,
			Name:   cfg.Name,
			Root:   cfg.Root,
		}),
		db: db,
	}, nil
}

// DB exposes the underlying database.
func (b *Backend) DB() *badger.DB {
	return b.db
}

// adapter maps kv primitives onto badger transactions.
type adapter struct {
	db *badger.DB
}

func (a *adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, parseError(err, key)
	}
	return value, nil
}

func (a *adapter) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return parseError(err, key)
}

func (a *adapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return parseError(err, key)
}

func (a *adapter) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, parseError(err, prefix)
	}
	return keys, nil
}

func (a *adapter) Close() error {
	return a.db.Close()
}

// parseError maps badger errors to store kinds.
func parseError(err error, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.NewError(store.KindNotFound, "key not found").WithPath(key)
	case errors.Is(err, badger.ErrConflict):
		return store.NewError(store.KindUnexpected, "transaction conflict").
			WithPath(key).WithSource(err).SetTemporary()
	case errors.Is(err, badger.ErrEmptyKey):
		return store.NewError(store.KindUnexpected, "empty key").WithPath(key)
	case errors.Is(err, badger.ErrDBClosed):
		return store.NewError(store.KindUnexpected, "database closed").WithPath(key).WithSource(err)
	default:
		return store.NewError(store.KindUnexpected, "badger operation failed").WithPath(key).WithSource(err)
	}
}
