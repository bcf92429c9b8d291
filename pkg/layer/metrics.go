package layer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/marmos91/dittostore/pkg/store"
)

// MetricsRecorder receives the measurements of the metrics layer.
//
// The Prometheus implementation is metrics.NewOperatorMetrics. A nil
// recorder disables collection.
type MetricsRecorder interface {
	// RecordOperation records one finished operation.
	//
	// Parameters:
	//   - scheme: backend scheme ("s3", "memory", ...)
	//   - operation: operation name ("stat", "read", "Writer::close", ...)
	//   - duration: time spent in the call
	//   - err: the failure, nil on success
	RecordOperation(scheme, operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by a reader or a writer.
	//
	// Parameters:
	//   - direction: "read" or "write"
	RecordBytes(scheme, direction string, bytes int64)

	// RecordInFlight adjusts the number of operations in progress.
	RecordInFlight(scheme, operation string, delta int)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string, time.Duration, error) {}
func (noopRecorder) RecordBytes(string, string, int64)                   {}
func (noopRecorder) RecordInFlight(string, string, int)                  {}

// Metrics reports every operation to a MetricsRecorder.
type Metrics struct {
	rec MetricsRecorder
}

// NewMetrics creates a metrics layer. A nil rec makes the layer a no-op.
func NewMetrics(rec MetricsRecorder) *Metrics {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Metrics{rec: rec}
}

func (m *Metrics) Layer(inner store.Accessor) store.Accessor {
	return &metricsAccessor{
		LayeredAccessor: store.NewLayeredAccessor(inner),
		rec:             m.rec,
		scheme:          string(inner.Info().Scheme()),
	}
}

type metricsAccessor struct {
	store.LayeredAccessor
	rec    MetricsRecorder
	scheme string
}

// observe starts measuring operation; the returned func records the result.
func (a *metricsAccessor) observe(operation string) func(err error) {
	a.rec.RecordInFlight(a.scheme, operation, 1)
	started := time.Now()
	return func(err error) {
		a.rec.RecordInFlight(a.scheme, operation, -1)
		a.rec.RecordOperation(a.scheme, operation, time.Since(started), err)
	}
}

func (a *metricsAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	done := a.observe("create_dir")
	rp, err := a.Inner.CreateDir(ctx, path, args)
	done(err)
	return rp, err
}

func (a *metricsAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	done := a.observe("stat")
	rp, err := a.Inner.Stat(ctx, path, args)
	done(err)
	return rp, err
}

func (a *metricsAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	done := a.observe("read")
	rp, r, err := a.Inner.Read(ctx, path, args)
	done(err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &metricsReader{Reader: r, a: a}, nil
}

func (a *metricsAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	done := a.observe("write")
	rp, w, err := a.Inner.Write(ctx, path, args)
	done(err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &metricsWriter{w: w, a: a}, nil
}

func (a *metricsAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	rp, d, err := a.Inner.Delete(ctx)
	if err != nil {
		a.rec.RecordOperation(a.scheme, "delete", 0, err)
		return rp, nil, err
	}
	return rp, &metricsDeleter{d: d, a: a}, nil
}

func (a *metricsAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	done := a.observe("list")
	rp, l, err := a.Inner.List(ctx, path, args)
	done(err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &metricsLister{l: l, a: a}, nil
}

func (a *metricsAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	done := a.observe("copy")
	rp, err := a.Inner.Copy(ctx, from, to, args)
	done(err)
	return rp, err
}

func (a *metricsAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	done := a.observe("rename")
	rp, err := a.Inner.Rename(ctx, from, to, args)
	done(err)
	return rp, err
}

type metricsReader struct {
	store.Reader
	a *metricsAccessor
}

func (r *metricsReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.a.rec.RecordBytes(r.a.scheme, "read", int64(n))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		r.a.rec.RecordOperation(r.a.scheme, "Reader::read", 0, err)
	}
	return n, err
}

type metricsWriter struct {
	w store.Writer
	a *metricsAccessor
}

func (w *metricsWriter) Write(ctx context.Context, p []byte) error {
	done := w.a.observe("Writer::write")
	err := w.w.Write(ctx, p)
	done(err)
	if err == nil {
		w.a.rec.RecordBytes(w.a.scheme, "write", int64(len(p)))
	}
	return err
}

func (w *metricsWriter) Close(ctx context.Context) (store.Metadata, error) {
	done := w.a.observe("Writer::close")
	meta, err := w.w.Close(ctx)
	done(err)
	return meta, err
}

func (w *metricsWriter) Abort(ctx context.Context) error {
	done := w.a.observe("Writer::abort")
	err := w.w.Abort(ctx)
	done(err)
	return err
}

type metricsLister struct {
	l store.Lister
	a *metricsAccessor
}

func (l *metricsLister) Next(ctx context.Context) (store.Entry, error) {
	entry, err := l.l.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		l.a.rec.RecordOperation(l.a.scheme, "Lister::next", 0, err)
	}
	return entry, err
}

type metricsDeleter struct {
	d store.Deleter
	a *metricsAccessor
}

func (d *metricsDeleter) Delete(path string, args store.OpDelete) error {
	return d.d.Delete(path, args)
}

func (d *metricsDeleter) Flush(ctx context.Context) (int, error) {
	done := d.a.observe("delete")
	n, err := d.d.Flush(ctx)
	done(err)
	return n, err
}
