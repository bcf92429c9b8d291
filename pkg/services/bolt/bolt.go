// Package bolt implements a storage service on an embedded bbolt database.
//
// Every object lives in a single bucket keyed by its absolute path. bbolt
// keeps keys sorted, so prefix scans walk a cursor instead of the whole
// bucket.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/kv"
	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is the bucket used when Config.Bucket is empty.
const DefaultBucket = "dittostore"

// Config configures the bolt service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Path is the database file.
	Path string `mapstructure:"path" validate:"required"`

	// Bucket holds the objects.
	// Default: "dittostore"
	Bucket string `mapstructure:"bucket"`

	// OpenTimeout bounds the wait for the file lock held by another process.
	// Default: 1s
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// Backend is the bolt service.
type Backend struct {
	*kv.Backend
	db *bolt.DB
}

// New opens (or creates) the database file and its bucket.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, store.NewError(store.KindConfigInvalid, "path is required").
			WithContext("service", string(store.SchemeBolt))
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = time.Second
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database at %s: %w", cfg.Path, err)
	}

	bucket := []byte(cfg.Bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
	}
	logger.Debug("bolt: opened database (path=%q, bucket=%q)", cfg.Path, cfg.Bucket)

	return &Backend{
		Backend: kv.New(&adapter{db: db, bucket: bucket}, kv.Options{
			Scheme: store.SchemeBolt,
			Name:   cfg.Name,
			Root:   cfg.Root,
		}),
		db: db,
	}, nil
}

// DB exposes the underlying database.
func (b *Backend) DB() *bolt.DB {
	return b.db
}

type adapter struct {
	db     *bolt.DB
	bucket []byte
}

func (a *adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(a.bucket).Get([]byte(key))
		if v == nil {
			return store.NewError(store.KindNotFound, "key not found").WithPath(key)
		}
		// v is only valid for the life of the transaction.
		value = append([]byte{}, v...)
		return nil
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
	if value == nil {
		// bbolt treats a nil value as a missing key.
		value = []byte{}
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(a.bucket).Put([]byte(key), value)
	})
	return parseError(err, key)
}

func (a *adapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(a.bucket).Delete([]byte(key))
	})
	return parseError(err, key)
}

func (a *adapter) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(a.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(k))
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

// parseError maps bbolt errors to store kinds.
func parseError(err error, key string) error {
	var serr *store.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &serr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, bolt.ErrKeyRequired), errors.Is(err, bolt.ErrKeyTooLarge), errors.Is(err, bolt.ErrValueTooLarge):
		return store.NewError(store.KindUnexpected, "invalid key or value").WithPath(key).WithSource(err)
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return store.NewError(store.KindUnexpected, "database closed").WithPath(key).WithSource(err)
	case errors.Is(err, bolt.ErrDatabaseReadOnly), errors.Is(err, bolt.ErrTxNotWritable):
		return store.NewError(store.KindPermissionDenied, "database is read-only").WithPath(key).WithSource(err)
	default:
		return store.NewError(store.KindUnexpected, "bolt operation failed").WithPath(key).WithSource(err)
	}
}
