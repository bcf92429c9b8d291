// Package layer holds the decorators that can be stacked on a backend with
// operator.New or store.Apply.
//
// Every layer embeds store.LayeredAccessor and overrides only the calls it
// cares about. None of them widens the backend capability.
//
//	op := operator.New(backend,
//		layer.NewLogging(),
//		layer.NewRetry(layer.RetryConfig{}),
//		layer.NewTimeout(layer.TimeoutConfig{Timeout: 30 * time.Second}),
//	)
package layer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
)

// RetryConfig configures the retry layer.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, the first one included.
	// Default: 4
	MaxAttempts uint `mapstructure:"max_attempts" yaml:"max_attempts" validate:"omitempty,min=1"`

	// InitialInterval is the wait before the first retry.
	// Default: 100ms
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`

	// MaxInterval caps the wait between two tries.
	// Default: 10s
	MaxInterval time.Duration `mapstructure:"max_interval" yaml:"max_interval"`

	// Multiplier grows the interval after every retry.
	// Default: 2
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier" validate:"omitempty,gte=1"`

	// Jitter randomizes each interval by +/-50%.
	Jitter bool `mapstructure:"jitter" yaml:"jitter"`

	// Notify, when set, is called before every retry.
	Notify func(err error, wait time.Duration) `mapstructure:"-" json:"-" yaml:"-"`
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 4
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
}

// Retry retries operations failing with a temporary error.
//
// Retried: create_dir, stat, copy, rename, opening readers, writers, listers
// and deleters, every Lister.Next and every Deleter.Flush. Never retried:
// writes carrying if_match, if_none_match or if_not_exists, and the data
// calls of a writer (Write, Close), whose partial effects cannot be replayed.
//
// When the attempts run out the last error is marked persistent.
type Retry struct {
	cfg RetryConfig
}

// NewRetry creates a retry layer.
func NewRetry(cfg RetryConfig) *Retry {
	cfg.applyDefaults()
	return &Retry{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.cfg
}

func (r *Retry) Layer(inner store.Accessor) store.Accessor {
	return &retryAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), r: r}
}

func (r *Retry) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Multiplier = r.cfg.Multiplier
	b.RandomizationFactor = 0
	if r.cfg.Jitter {
		b.RandomizationFactor = 0.5
	}
	return b
}

func withRetry[T any](ctx context.Context, r *Retry, operation, path string, fn func() (T, error)) (T, error) {
	retried := false
	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !store.IsTemporary(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retried = true
			logger.Warn("Retrying %s %s in %s: %v", operation, path, wait, err)
			if r.cfg.Notify != nil {
				r.cfg.Notify(err, wait)
			}
		}),
	)
	// The last try returns its error as is, permanent wrapper included.
	if p, ok := err.(*backoff.PermanentError); ok {
		err = p.Err
	}
	if err != nil && store.IsTemporary(err) {
		e := store.AsError(err)
		e.SetPersistent()
		if retried {
			e.WithContext("attempts", "exhausted")
		}
	}
	return res, err
}

func withRetryErr(ctx context.Context, r *Retry, operation, path string, fn func() error) error {
	_, err := withRetry(ctx, r, operation, path, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

type retryAccessor struct {
	store.LayeredAccessor
	r *Retry
}

func (a *retryAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	return withRetry(ctx, a.r, "create_dir", path, func() (store.RpCreateDir, error) {
		return a.Inner.CreateDir(ctx, path, args)
	})
}

func (a *retryAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	return withRetry(ctx, a.r, "stat", path, func() (store.RpStat, error) {
		return a.Inner.Stat(ctx, path, args)
	})
}

func (a *retryAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	type opened struct {
		rp store.RpRead
		r  store.Reader
	}
	o, err := withRetry(ctx, a.r, "read", path, func() (opened, error) {
		rp, r, err := a.Inner.Read(ctx, path, args)
		return opened{rp, r}, err
	})
	return o.rp, o.r, err
}

func (a *retryAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if args.IsConditional() {
		return a.Inner.Write(ctx, path, args)
	}
	type opened struct {
		rp store.RpWrite
		w  store.Writer
	}
	o, err := withRetry(ctx, a.r, "write", path, func() (opened, error) {
		rp, w, err := a.Inner.Write(ctx, path, args)
		return opened{rp, w}, err
	})
	return o.rp, o.w, err
}

func (a *retryAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	type opened struct {
		rp store.RpDelete
		d  store.Deleter
	}
	o, err := withRetry(ctx, a.r, "delete", "", func() (opened, error) {
		rp, d, err := a.Inner.Delete(ctx)
		return opened{rp, d}, err
	})
	if err != nil {
		return o.rp, nil, err
	}
	return o.rp, &retryDeleter{d: o.d, r: a.r}, nil
}

func (a *retryAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	type opened struct {
		rp store.RpList
		l  store.Lister
	}
	o, err := withRetry(ctx, a.r, "list", path, func() (opened, error) {
		rp, l, err := a.Inner.List(ctx, path, args)
		return opened{rp, l}, err
	})
	if err != nil {
		return o.rp, nil, err
	}
	return o.rp, &retryLister{l: o.l, r: a.r, path: path}, nil
}

func (a *retryAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	return withRetry(ctx, a.r, "copy", from, func() (store.RpCopy, error) {
		return a.Inner.Copy(ctx, from, to, args)
	})
}

func (a *retryAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	return withRetry(ctx, a.r, "rename", from, func() (store.RpRename, error) {
		return a.Inner.Rename(ctx, from, to, args)
	})
}

// retryLister retries Next. Page listers keep their continuation when a
// page fails, so the retried call resumes at the same page.
type retryLister struct {
	l    store.Lister
	r    *Retry
	path string
}

func (l *retryLister) Next(ctx context.Context) (store.Entry, error) {
	return withRetry(ctx, l.r, "Lister::next", l.path, func() (store.Entry, error) {
		return l.l.Next(ctx)
	})
}

// retryDeleter retries Flush. Deleters keep failed items queued, so a
// retried flush only resends what did not go through.
type retryDeleter struct {
	d store.Deleter
	r *Retry
}

func (d *retryDeleter) Delete(path string, args store.OpDelete) error {
	return d.d.Delete(path, args)
}

func (d *retryDeleter) Flush(ctx context.Context) (int, error) {
	return withRetry(ctx, d.r, "Deleter::flush", "", func() (int, error) {
		return d.d.Flush(ctx)
	})
}
