package layer

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dittostore/pkg/store"
)

// TimeoutConfig configures the timeout layer.
type TimeoutConfig struct {
	// Timeout bounds every non-streaming operation and the opening of
	// every handle. Default: 60s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// IOTimeout bounds every call on a writer, lister or deleter handle.
	// Default: 10s
	IOTimeout time.Duration `mapstructure:"io_timeout" yaml:"io_timeout"`
}

func (c *TimeoutConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = 10 * time.Second
	}
}

// Timeout fails operations that take too long with a temporary
// Unexpected error, so a retry layer placed outside it retries them.
//
// A reader keeps the deadline of the read that opened it until it is
// closed: backends streaming a response body bind it to that context.
type Timeout struct {
	cfg TimeoutConfig
}

// NewTimeout creates a timeout layer.
func NewTimeout(cfg TimeoutConfig) *Timeout {
	cfg.applyDefaults()
	return &Timeout{cfg: cfg}
}

func (t *Timeout) Layer(inner store.Accessor) store.Accessor {
	return &timeoutAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), cfg: t.cfg}
}

// timeoutError converts a deadline expiry into a temporary error. A
// cancellation is returned unchanged.
func timeoutError(ctx context.Context, err error, operation string, d time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return store.NewError(store.KindUnexpected, "operation timeout reached").
			WithOperation(operation).
			WithContext("timeout", d.String()).
			WithSource(err).
			SetTemporary()
	}
	return err
}

type timeoutAccessor struct {
	store.LayeredAccessor
	cfg TimeoutConfig
}

func (a *timeoutAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, err := a.Inner.CreateDir(ctx, path, args)
	return rp, timeoutError(ctx, err, "create_dir", a.cfg.Timeout)
}

func (a *timeoutAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, err := a.Inner.Stat(ctx, path, args)
	return rp, timeoutError(ctx, err, "stat", a.cfg.Timeout)
}

func (a *timeoutAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	rp, r, err := a.Inner.Read(ctx, path, args)
	if err != nil {
		cancel()
		return rp, nil, timeoutError(ctx, err, "read", a.cfg.Timeout)
	}
	return rp, &timeoutReader{Reader: r, ctx: ctx, cancel: cancel, d: a.cfg.Timeout}, nil
}

func (a *timeoutAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	octx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, w, err := a.Inner.Write(octx, path, args)
	if err != nil {
		return rp, nil, timeoutError(octx, err, "write", a.cfg.Timeout)
	}
	return rp, &timeoutWriter{w: w, d: a.cfg.IOTimeout}, nil
}

func (a *timeoutAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	octx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, d, err := a.Inner.Delete(octx)
	if err != nil {
		return rp, nil, timeoutError(octx, err, "delete", a.cfg.Timeout)
	}
	return rp, &timeoutDeleter{d: d, timeout: a.cfg.IOTimeout}, nil
}

func (a *timeoutAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	octx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, l, err := a.Inner.List(octx, path, args)
	if err != nil {
		return rp, nil, timeoutError(octx, err, "list", a.cfg.Timeout)
	}
	return rp, &timeoutLister{l: l, d: a.cfg.IOTimeout}, nil
}

func (a *timeoutAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, err := a.Inner.Copy(ctx, from, to, args)
	return rp, timeoutError(ctx, err, "copy", a.cfg.Timeout)
}

func (a *timeoutAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	rp, err := a.Inner.Rename(ctx, from, to, args)
	return rp, timeoutError(ctx, err, "rename", a.cfg.Timeout)
}

type timeoutReader struct {
	store.Reader
	ctx    context.Context
	cancel context.CancelFunc
	d      time.Duration
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	return n, timeoutError(r.ctx, err, "Reader::read", r.d)
}

func (r *timeoutReader) Close() error {
	defer r.cancel()
	return r.Reader.Close()
}

type timeoutWriter struct {
	w store.Writer
	d time.Duration
}

func (w *timeoutWriter) Write(ctx context.Context, p []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.d)
	defer cancel()
	return timeoutError(ctx, w.w.Write(ctx, p), "Writer::write", w.d)
}

func (w *timeoutWriter) Close(ctx context.Context) (store.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, w.d)
	defer cancel()
	meta, err := w.w.Close(ctx)
	return meta, timeoutError(ctx, err, "Writer::close", w.d)
}

func (w *timeoutWriter) Abort(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.d)
	defer cancel()
	return timeoutError(ctx, w.w.Abort(ctx), "Writer::abort", w.d)
}

type timeoutLister struct {
	l store.Lister
	d time.Duration
}

func (l *timeoutLister) Next(ctx context.Context) (store.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.d)
	defer cancel()
	entry, err := l.l.Next(ctx)
	return entry, timeoutError(ctx, err, "Lister::next", l.d)
}

type timeoutDeleter struct {
	d       store.Deleter
	timeout time.Duration
}

func (d *timeoutDeleter) Delete(path string, args store.OpDelete) error {
	return d.d.Delete(path, args)
}

func (d *timeoutDeleter) Flush(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	n, err := d.d.Flush(ctx)
	return n, timeoutError(ctx, err, "Deleter::flush", d.timeout)
}
