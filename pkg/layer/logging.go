package layer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/rs/zerolog"
)

// Logging logs every operation through internal/logger.
//
// Starts and successes are logged at DEBUG. Failures are logged at WARN
// when the error is expected in normal operation (NotFound,
// ConditionNotMatch, a missing capability) and at ERROR otherwise.
type Logging struct{}

// NewLogging creates a logging layer.
func NewLogging() *Logging {
	return &Logging{}
}

func (Logging) Layer(inner store.Accessor) store.Accessor {
	return &loggingAccessor{LayeredAccessor: store.NewLayeredAccessor(inner)}
}

type loggingAccessor struct {
	store.LayeredAccessor
}

func (a *loggingAccessor) event(level zerolog.Level, operation, path string) *zerolog.Event {
	info := a.Inner.Info()
	l := logger.Logger()
	return l.WithLevel(level).
		Str("service", string(info.Scheme())).
		Str("name", info.Name()).
		Str("operation", operation).
		Str("path", path)
}

func (a *loggingAccessor) start(operation, path string) time.Time {
	if logger.Enabled(logger.LevelDebug) {
		a.event(zerolog.DebugLevel, operation, path).Msg("started")
	}
	return time.Now()
}

func (a *loggingAccessor) finish(operation, path string, started time.Time, err error) {
	switch {
	case err == nil:
		if logger.Enabled(logger.LevelDebug) {
			a.event(zerolog.DebugLevel, operation, path).
				Dur("elapsed", time.Since(started)).
				Msg("finished")
		}
	case isExpected(err):
		if logger.Enabled(logger.LevelWarn) {
			a.event(zerolog.WarnLevel, operation, path).
				Dur("elapsed", time.Since(started)).
				Err(err).
				Msg("failed")
		}
	default:
		a.event(zerolog.ErrorLevel, operation, path).
			Dur("elapsed", time.Since(started)).
			Err(err).
			Msg("failed")
	}
}

func isExpected(err error) bool {
	switch store.KindOf(err) {
	case store.KindNotFound, store.KindConditionNotMatch, store.KindAlreadyExists, store.KindIsSameFile:
		return true
	}
	return errors.Is(err, store.ErrCapabilityMissing)
}

func (a *loggingAccessor) CreateDir(ctx context.Context, path string, args store.OpCreateDir) (store.RpCreateDir, error) {
	started := a.start("create_dir", path)
	rp, err := a.Inner.CreateDir(ctx, path, args)
	a.finish("create_dir", path, started, err)
	return rp, err
}

func (a *loggingAccessor) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	started := a.start("stat", path)
	rp, err := a.Inner.Stat(ctx, path, args)
	a.finish("stat", path, started, err)
	return rp, err
}

func (a *loggingAccessor) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	started := a.start("read", path)
	rp, r, err := a.Inner.Read(ctx, path, args)
	a.finish("read", path, started, err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &loggingReader{Reader: r, a: a, path: path, started: started}, nil
}

func (a *loggingAccessor) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	started := a.start("write", path)
	rp, w, err := a.Inner.Write(ctx, path, args)
	a.finish("write", path, started, err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &loggingWriter{w: w, a: a, path: path, started: started}, nil
}

func (a *loggingAccessor) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	rp, d, err := a.Inner.Delete(ctx)
	if err != nil {
		a.finish("delete", "", time.Now(), err)
		return rp, nil, err
	}
	return rp, &loggingDeleter{d: d, a: a}, nil
}

func (a *loggingAccessor) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	started := a.start("list", path)
	rp, l, err := a.Inner.List(ctx, path, args)
	a.finish("list", path, started, err)
	if err != nil {
		return rp, nil, err
	}
	return rp, &loggingLister{l: l, a: a, path: path, started: started}, nil
}

func (a *loggingAccessor) Copy(ctx context.Context, from, to string, args store.OpCopy) (store.RpCopy, error) {
	started := a.start("copy", from)
	rp, err := a.Inner.Copy(ctx, from, to, args)
	a.finish("copy", from+" -> "+to, started, err)
	return rp, err
}

func (a *loggingAccessor) Rename(ctx context.Context, from, to string, args store.OpRename) (store.RpRename, error) {
	started := a.start("rename", from)
	rp, err := a.Inner.Rename(ctx, from, to, args)
	a.finish("rename", from+" -> "+to, started, err)
	return rp, err
}

type loggingReader struct {
	store.Reader
	a       *loggingAccessor
	path    string
	started time.Time
	read    int64
	failed  bool
}

func (r *loggingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	r.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && !r.failed {
		r.failed = true
		r.a.finish("Reader::read", r.path, r.started, err)
	}
	return n, err
}

func (r *loggingReader) Close() error {
	err := r.Reader.Close()
	if logger.Enabled(logger.LevelDebug) {
		r.a.event(zerolog.DebugLevel, "Reader::close", r.path).
			Int64("bytes", r.read).
			Dur("elapsed", time.Since(r.started)).
			Msg("closed")
	}
	return err
}

type loggingWriter struct {
	w       store.Writer
	a       *loggingAccessor
	path    string
	started time.Time
	written int64
}

func (w *loggingWriter) Write(ctx context.Context, p []byte) error {
	err := w.w.Write(ctx, p)
	if err != nil {
		w.a.finish("Writer::write", w.path, w.started, err)
		return err
	}
	w.written += int64(len(p))
	return nil
}

func (w *loggingWriter) Close(ctx context.Context) (store.Metadata, error) {
	meta, err := w.w.Close(ctx)
	if err != nil {
		w.a.finish("Writer::close", w.path, w.started, err)
		return meta, err
	}
	if logger.Enabled(logger.LevelDebug) {
		w.a.event(zerolog.DebugLevel, "Writer::close", w.path).
			Int64("bytes", w.written).
			Dur("elapsed", time.Since(w.started)).
			Msg("closed")
	}
	return meta, nil
}

func (w *loggingWriter) Abort(ctx context.Context) error {
	err := w.w.Abort(ctx)
	w.a.finish("Writer::abort", w.path, w.started, err)
	return err
}

type loggingLister struct {
	l       store.Lister
	a       *loggingAccessor
	path    string
	started time.Time
	entries int
}

func (l *loggingLister) Next(ctx context.Context) (store.Entry, error) {
	entry, err := l.l.Next(ctx)
	switch {
	case err == nil:
		l.entries++
	case errors.Is(err, io.EOF):
		if logger.Enabled(logger.LevelDebug) {
			l.a.event(zerolog.DebugLevel, "Lister::next", l.path).
				Int("entries", l.entries).
				Dur("elapsed", time.Since(l.started)).
				Msg("finished")
		}
	default:
		l.a.finish("Lister::next", l.path, l.started, err)
	}
	return entry, err
}

type loggingDeleter struct {
	d     store.Deleter
	a     *loggingAccessor
	queue []string
}

func (d *loggingDeleter) Delete(path string, args store.OpDelete) error {
	if err := d.d.Delete(path, args); err != nil {
		d.a.finish("Deleter::delete", path, time.Now(), err)
		return err
	}
	d.queue = append(d.queue, path)
	return nil
}

func (d *loggingDeleter) Flush(ctx context.Context) (int, error) {
	path := ""
	if len(d.queue) == 1 {
		path = d.queue[0]
	}
	started := d.a.start("Deleter::flush", path)
	n, err := d.d.Flush(ctx)
	d.a.finish("Deleter::flush", path, started, err)
	if err == nil {
		d.queue = nil
	}
	return n, err
}
