package layer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittostore/pkg/services/memory"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) *memory.Backend {
	t.Helper()
	b, err := memory.New(context.Background(), memory.Config{})
	require.NoError(t, err)
	return b
}

func put(t *testing.T, acc store.Accessor, path string, data []byte) {
	t.Helper()
	ctx := context.Background()
	_, w, err := acc.Write(ctx, path, store.OpWrite{})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, data))
	_, err = w.Close(ctx)
	require.NoError(t, err)
}

// flaky fails the first `failures` calls of stat, read, write, list and
// copy with errFn, then delegates. It counts every call it receives.
type flaky struct {
	store.LayeredAccessor
	failures atomic.Int64
	calls    atomic.Int64
	errFn    func() error
	delay    time.Duration
}

func newFlaky(inner store.Accessor, failures int64, errFn func() error) *flaky {
	f := &flaky{LayeredAccessor: store.NewLayeredAccessor(inner), errFn: errFn}
	f.failures.Store(failures)
	return f
}

func temporary() error {
	return store.NewError(store.KindUnexpected, "connection reset").SetTemporary()
}

func (f *flaky) fail(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failures.Add(-1) >= 0 {
		return f.errFn()
	}
	return nil
}

func (f *flaky) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	if err := f.fail(ctx); err != nil {
		return store.RpStat{}, err
	}
	return f.Inner.Stat(ctx, path, args)
}

func (f *flaky) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	if err := f.fail(ctx); err != nil {
		return store.RpRead{}, nil, err
	}
	return f.Inner.Read(ctx, path, args)
}

func (f *flaky) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if err := f.fail(ctx); err != nil {
		return store.RpWrite{}, nil, err
	}
	return f.Inner.Write(ctx, path, args)
}

func (f *flaky) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	if err := f.fail(ctx); err != nil {
		return store.RpCopy{}, err
	}
	return f.Inner.Copy(ctx, from, to, args)
}

func (f *flaky) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	_, l, err := f.Inner.List(ctx, path, args)
	if err != nil {
		return store.RpList{}, nil, err
	}
	return store.RpList{}, &flakyLister{l: l, f: f}, nil
}

type flakyLister struct {
	l store.Lister
	f *flaky
}

func (l *flakyLister) Next(ctx context.Context) (store.Entry, error) {
	if err := l.f.fail(ctx); err != nil {
		return store.Entry{}, err
	}
	return l.l.Next(ctx)
}

func fastRetry() *Retry {
	return NewRetry(RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
}
