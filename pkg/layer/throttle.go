package layer

import (
	"context"

	"github.com/marmos91/dittostore/internal/ratelimiter"
	"github.com/marmos91/dittostore/pkg/store"
)

// ThrottleConfig configures the throttle layer. Zero values disable the
// matching limit.
type ThrottleConfig struct {
	// Bandwidth caps the bytes per second written and read.
	Bandwidth uint `mapstructure:"bandwidth" yaml:"bandwidth"`

	// Burst is the largest number of bytes moved at once.
	// Default: Bandwidth
	Burst uint `mapstructure:"burst" yaml:"burst"`

	// OpsPerSecond caps the number of operations started per second.
	OpsPerSecond uint `mapstructure:"ops_per_second" yaml:"ops_per_second"`
}

// Throttle paces operations and data with token buckets.
//
// Writers wait for len(p) tokens before every Write; readers pay for what
// they read after the fact. Opening a handle, stat, list pages, flushes,
// copy and rename each take one operation token.
type Throttle struct {
	bytes *ratelimiter.RateLimiter
	ops   *ratelimiter.RateLimiter
}

// NewThrottle creates a throttle layer.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	t := &Throttle{}
	if cfg.Bandwidth > 0 {
		t.bytes = ratelimiter.New(cfg.Bandwidth, cfg.Burst)
	}
	if cfg.OpsPerSecond > 0 {
		t.ops = ratelimiter.New(cfg.OpsPerSecond, 0)
	}
	return t
}

func (t *Throttle) Layer(inner store.Accessor) store.Accessor {
	return &throttleAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), t: t}
}

func (t *Throttle) op(ctx context.Context) error {
	if t.ops == nil {
		return nil
	}
	if err := t.ops.Wait(ctx); err != nil {
		return store.NewError(store.KindRateLimited, "waiting for the operation rate limit").
			WithSource(err).
			SetPersistent()
	}
	return nil
}

func (t *Throttle) transfer(ctx context.Context, n int) error {
	if t.bytes == nil || n <= 0 {
		return nil
	}
	if err := t.bytes.WaitN(ctx, uint(n)); err != nil {
		return store.NewError(store.KindRateLimited, "waiting for the bandwidth limit").
			WithSource(err).
			SetPersistent()
	}
	return nil
}

type throttleAccessor struct {
	store.LayeredAccessor
	t *Throttle
}

func (a *throttleAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpCreateDir{}, err
	}
	return a.Inner.CreateDir(ctx, path, args)
}

func (a *throttleAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpStat{}, err
	}
	return a.Inner.Stat(ctx, path, args)
}

func (a *throttleAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpRead{}, nil, err
	}
	rp, r, err := a.Inner.Read(ctx, path, args)
	if err != nil || a.t.bytes == nil {
		return rp, r, err
	}
	return rp, &throttleReader{Reader: r, t: a.t, ctx: ctx}, nil
}

func (a *throttleAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpWrite{}, nil, err
	}
	rp, w, err := a.Inner.Write(ctx, path, args)
	if err != nil || a.t.bytes == nil {
		return rp, w, err
	}
	return rp, &throttleWriter{w: w, t: a.t}, nil
}

func (a *throttleAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpList{}, nil, err
	}
	return a.Inner.List(ctx, path, args)
}

func (a *throttleAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	rp, d, err := a.Inner.Delete(ctx)
	if err != nil || a.t.ops == nil {
		return rp, d, err
	}
	return rp, &throttleDeleter{d: d, t: a.t}, nil
}

func (a *throttleAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpCopy{}, err
	}
	return a.Inner.Copy(ctx, from, to, args)
}

func (a *throttleAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	if err := a.t.op(ctx); err != nil {
		return store.RpRename{}, err
	}
	return a.Inner.Rename(ctx, from, to, args)
}

// throttleReader has no context of its own: it waits with the one the
// read was opened with.
type throttleReader struct {
	store.Reader
	t   *Throttle
	ctx context.Context
}

func (r *throttleReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if werr := r.t.transfer(r.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}

type throttleWriter struct {
	w store.Writer
	t *Throttle
}

func (w *throttleWriter) Write(ctx context.Context, p []byte) error {
	if err := w.t.transfer(ctx, len(p)); err != nil {
		return err
	}
	return w.w.Write(ctx, p)
}

func (w *throttleWriter) Close(ctx context.Context) (store.Metadata, error) {
	return w.w.Close(ctx)
}

func (w *throttleWriter) Abort(ctx context.Context) error {
	return w.w.Abort(ctx)
}

type throttleDeleter struct {
	d store.Deleter
	t *Throttle
}

func (d *throttleDeleter) Delete(path string, args store.OpDelete) error {
	return d.d.Delete(path, args)
}

func (d *throttleDeleter) Flush(ctx context.Context) (int, error) {
	if err := d.t.op(ctx); err != nil {
		return 0, err
	}
	return d.d.Flush(ctx)
}
