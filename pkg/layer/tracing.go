package layer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/marmos91/dittostore/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/marmos91/dittostore/pkg/layer"

// Tracing opens an OpenTelemetry span per operation.
//
// Spans of readers and writers stay open until the handle is closed, so
// they cover the data transfer. A lister is traced when it is opened, a
// deleter at every flush.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates a tracing layer on tp. A nil tp uses the global
// provider.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		return &Tracing{tracer: otel.Tracer(tracerName)}
	}
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

func (t *Tracing) Layer(inner store.Accessor) store.Accessor {
	return &tracingAccessor{LayeredAccessor: store.NewLayeredAccessor(inner), tracer: t.tracer}
}

type tracingAccessor struct {
	store.LayeredAccessor
	tracer trace.Tracer
}

func (a *tracingAccessor) start(ctx context.Context, operation, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	info := a.Inner.Info()
	attrs = append(attrs,
		attribute.String("storage.service", string(info.Scheme())),
		attribute.String("storage.name", info.Name()),
		attribute.String("storage.path", path),
	)
	return a.tracer.Start(ctx, operation, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("storage.error_kind", store.KindOf(err).String()))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (a *tracingAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	ctx, span := a.start(ctx, "create_dir", path)
	rp, err := a.Inner.CreateDir(ctx, path, args)
	endSpan(span, err)
	return rp, err
}

func (a *tracingAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	ctx, span := a.start(ctx, "stat", path)
	rp, err := a.Inner.Stat(ctx, path, args)
	endSpan(span, err)
	return rp, err
}

func (a *tracingAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	ctx, span := a.start(ctx, "read", path, attribute.String("storage.range", args.Range.String()))
	rp, r, err := a.Inner.Read(ctx, path, args)
	if err != nil {
		endSpan(span, err)
		return rp, nil, err
	}
	return rp, &tracingReader{Reader: r, span: span}, nil
}

func (a *tracingAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	ctx, span := a.start(ctx, "write", path,
		attribute.Bool("storage.append", args.Append),
		attribute.Bool("storage.multipart", args.IsMultipart()),
	)
	rp, w, err := a.Inner.Write(ctx, path, args)
	if err != nil {
		endSpan(span, err)
		return rp, nil, err
	}
	return rp, &tracingWriter{w: w, span: span}, nil
}

func (a *tracingAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	rp, d, err := a.Inner.Delete(ctx)
	if err != nil {
		return rp, nil, err
	}
	return rp, &tracingDeleter{d: d, a: a}, nil
}

func (a *tracingAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	ctx, span := a.start(ctx, "list", path, attribute.Bool("storage.recursive", args.Recursive))
	rp, l, err := a.Inner.List(ctx, path, args)
	endSpan(span, err)
	return rp, l, err
}

func (a *tracingAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	ctx, span := a.start(ctx, "copy", from, attribute.String("storage.to", to))
	rp, err := a.Inner.Copy(ctx, from, to, args)
	endSpan(span, err)
	return rp, err
}

func (a *tracingAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	ctx, span := a.start(ctx, "rename", from, attribute.String("storage.to", to))
	rp, err := a.Inner.Rename(ctx, from, to, args)
	endSpan(span, err)
	return rp, err
}

type tracingReader struct {
	store.Reader
	span trace.Span
	read int64
	err  error
	once sync.Once
}

func (r *tracingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	r.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

func (r *tracingReader) Close() error {
	err := r.Reader.Close()
	r.once.Do(func() {
		r.span.SetAttributes(attribute.Int64("storage.bytes", r.read))
		endSpan(r.span, errors.Join(r.err, err))
	})
	return err
}

type tracingWriter struct {
	w       store.Writer
	span    trace.Span
	written int64
	once    sync.Once
}

func (w *tracingWriter) Write(ctx context.Context, p []byte) error {
	err := w.w.Write(ctx, p)
	if err == nil {
		w.written += int64(len(p))
	}
	return err
}

func (w *tracingWriter) end(err error) {
	w.once.Do(func() {
		w.span.SetAttributes(attribute.Int64("storage.bytes", w.written))
		endSpan(w.span, err)
	})
}

func (w *tracingWriter) Close(ctx context.Context) (store.Metadata, error) {
	meta, err := w.w.Close(ctx)
	w.end(err)
	return meta, err
}

func (w *tracingWriter) Abort(ctx context.Context) error {
	err := w.w.Abort(ctx)
	w.span.AddEvent("aborted")
	w.end(err)
	return err
}

type tracingDeleter struct {
	d       store.Deleter
	a       *tracingAccessor
	pending int
}

func (d *tracingDeleter) Delete(path string, args store.OpDelete) error {
	if err := d.d.Delete(path, args); err != nil {
		return err
	}
	d.pending++
	return nil
}

func (d *tracingDeleter) Flush(ctx context.Context) (int, error) {
	ctx, span := d.a.start(ctx, "delete", "", attribute.Int("storage.queued", d.pending))
	n, err := d.d.Flush(ctx)
	d.pending -= n
	span.SetAttributes(attribute.Int("storage.deleted", n))
	endSpan(span, err)
	return n, err
}
