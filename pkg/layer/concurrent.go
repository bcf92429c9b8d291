package layer

import (
	"context"
	"sync"

	"github.com/marmos91/dittostore/pkg/store"
	"golang.org/x/sync/semaphore"
)

// ConcurrentLimit caps the number of operations running against a backend.
//
// Every operation takes one permit for its duration. Readers and writers
// keep theirs until they are closed (or aborted), so a slow consumer holds
// its slot. Listers and deleters take a permit per Next or Flush call.
//
// A layer instance can be shared by several operators to cap them
// together.
type ConcurrentLimit struct {
	sem     *semaphore.Weighted
	permits int64
}

// NewConcurrentLimit creates a limit of permits concurrent operations.
// A non-positive value is treated as 1.
func NewConcurrentLimit(permits int64) *ConcurrentLimit {
	if permits <= 0 {
		permits = 1
	}
	return &ConcurrentLimit{sem: semaphore.NewWeighted(permits), permits: permits}
}

// Permits returns the configured limit.
func (c *ConcurrentLimit) Permits() int64 {
	return c.permits
}

func (c *ConcurrentLimit) Layer(inner store.Accessor) store.Accessor {
	return &concurrentAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), c: c}
}

func (c *ConcurrentLimit) acquire(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, store.NewError(store.KindUnexpected, "waiting for a concurrency permit").
			WithSource(err)
	}
	var once sync.Once
	return func() { once.Do(func() { c.sem.Release(1) }) }, nil
}

type concurrentAccessor struct {
	store.LayeredAccessor
	c *ConcurrentLimit
}

func (a *concurrentAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpCreateDir{}, err
	}
	defer release()
	return a.Inner.CreateDir(ctx, path, args)
}

func (a *concurrentAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpStat{}, err
	}
	defer release()
	return a.Inner.Stat(ctx, path, args)
}

func (a *concurrentAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpRead{}, nil, err
	}
	rp, r, err := a.Inner.Read(ctx, path, args)
	if err != nil {
		release()
		return rp, nil, err
	}
	return rp, &permitReader{Reader: r, release: release}, nil
}

func (a *concurrentAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpWrite{}, nil, err
	}
	rp, w, err := a.Inner.Write(ctx, path, args)
	if err != nil {
		release()
		return rp, nil, err
	}
	return rp, &permitWriter{w: w, release: release}, nil
}

func (a *concurrentAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	rp, d, err := a.Inner.Delete(ctx)
	if err != nil {
		return rp, nil, err
	}
	return rp, &permitDeleter{d: d, c: a.c}, nil
}

func (a *concurrentAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	rp, l, err := a.Inner.List(ctx, path, args)
	if err != nil {
		return rp, nil, err
	}
	return rp, &permitLister{l: l, c: a.c}, nil
}

func (a *concurrentAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpCopy{}, err
	}
	defer release()
	return a.Inner.Copy(ctx, from, to, args)
}

func (a *concurrentAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	release, err := a.c.acquire(ctx)
	if err != nil {
		return store.RpRename{}, err
	}
	defer release()
	return a.Inner.Rename(ctx, from, to, args)
}

type permitReader struct {
	store.Reader
	release func()
}

func (r *permitReader) Close() error {
	defer r.release()
	return r.Reader.Close()
}

type permitWriter struct {
	w       store.Writer
	release func()
}

func (w *permitWriter) Write(ctx context.Context, p []byte) error {
	return w.w.Write(ctx, p)
}

func (w *permitWriter) Close(ctx context.Context) (store.Metadata, error) {
	defer w.release()
	return w.w.Close(ctx)
}

func (w *permitWriter) Abort(ctx context.Context) error {
	defer w.release()
	return w.w.Abort(ctx)
}

type permitLister struct {
	l store.Lister
	c *ConcurrentLimit
}

func (l *permitLister) Next(ctx context.Context) (store.Entry, error) {
	release, err := l.c.acquire(ctx)
	if err != nil {
		return store.Entry{}, err
	}
	defer release()
	return l.l.Next(ctx)
}

type permitDeleter struct {
	d store.Deleter
	c *ConcurrentLimit
}

func (d *permitDeleter) Delete(path string, args store.OpDelete) error {
	return d.d.Delete(path, args)
}

func (d *permitDeleter) Flush(ctx context.Context) (int, error) {
	release, err := d.c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return d.d.Flush(ctx)
}
