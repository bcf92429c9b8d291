// Package operator is the user-facing entry point of the storage stack.
//
// An Operator wraps one backend (store.Accessor), optionally decorated by
// layers. It normalizes caller paths, resolves them under the backend root,
// rejects operation variants the backend did not declare, dispatches, and
// decorates every failure with the operation, the path and the service.
//
//	backend, _ := memory.New(ctx, memory.Config{})
//	op := operator.New(backend, layer.NewRetry(layer.RetryConfig{}))
//	_, err := op.Write(ctx, "dir/file.txt", []byte("hello"))
//	data, err := op.Read(ctx, "dir/file.txt")
package operator

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

// Operator is safe for concurrent use. Copies share the backend.
type Operator struct {
	acc store.Accessor
}

// New creates an operator on acc, wrapped by layers. The first layer is the
// outermost: it sees every request first and every response last.
func New(acc store.Accessor, layers ...store.Layer) *Operator {
	return &Operator{acc: store.Apply(acc, layers...)}
}

// Layer returns a new operator with l wrapped around the current stack.
func (o *Operator) Layer(l store.Layer) *Operator {
	return &Operator{acc: store.Apply(o.acc, l)}
}

// Info returns the backend metadata.
func (o *Operator) Info() *store.Info {
	return o.acc.Info()
}

// Accessor returns the layered backend.
func (o *Operator) Accessor() store.Accessor {
	return o.acc
}

func (o *Operator) capability() store.Capability {
	return o.acc.Info().FullCapability()
}

func (o *Operator) abs(p string) string {
	return store.BuildAbsPath(o.acc.Info().Root(), p)
}

func (o *Operator) rel(abs string) string {
	return store.BuildRelPath(o.acc.Info().Root(), abs)
}

// wrap decorates err with the operation context. An existing *store.Error
// in the chain is decorated in place so wrappers around it (part errors)
// survive; anything else becomes Unexpected.
func (o *Operator) wrap(err error, operation, path string) error {
	if err == nil {
		return nil
	}
	var e *store.Error
	if !errors.As(err, &e) {
		e = store.NewError(store.KindUnexpected, "unexpected error").WithSource(err)
		err = e
	}
	e.WithOperation(operation).WithContext("service", string(o.acc.Info().Scheme()))
	if e.Path != path {
		if e.Path != "" {
			e.WithContext("backend_path", e.Path)
		}
		e.WithPath(path)
	}
	return err
}

func (o *Operator) wrapTransfer(err error, operation, from, to string) error {
	err = o.wrap(err, operation, from)
	var e *store.Error
	if errors.As(err, &e) {
		e.WithContext("to", to)
	}
	return err
}

// ============================================================================
// Stat
// ============================================================================

// Stat returns the metadata of path.
func (o *Operator) Stat(ctx context.Context, path string) (store.Metadata, error) {
	return o.StatWith(ctx, path, store.OpStat{})
}

// StatWith returns the metadata of path, evaluating the conditions in args.
func (o *Operator) StatWith(ctx context.Context, path string, args store.OpStat) (store.Metadata, error) {
	path = store.NormalizePath(path)
	if err := checkStat(o.capability(), args); err != nil {
		return store.Metadata{}, o.wrap(err, "stat", path)
	}

	rp, err := o.acc.Stat(ctx, o.abs(path), args)
	if err != nil {
		return store.Metadata{}, o.wrap(err, "stat", path)
	}
	return rp.Metadata, nil
}

// Exists reports whether path exists.
func (o *Operator) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ============================================================================
// Read
// ============================================================================

// Read returns the whole content of path.
func (o *Operator) Read(ctx context.Context, path string) ([]byte, error) {
	return o.ReadWith(ctx, path, store.OpRead{})
}

// ReadWith returns the content selected by args.
func (o *Operator) ReadWith(ctx context.Context, path string, args store.OpRead) ([]byte, error) {
	r, err := o.Reader(ctx, path, args)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, o.wrap(err, "read", store.NormalizePath(path))
	}
	return data, nil
}

// Reader opens a reader on path. The reader yields exactly the requested
// range whenever the backend knows its size.
func (o *Operator) Reader(ctx context.Context, path string, args store.OpRead) (store.Reader, error) {
	path = store.NormalizePath(path)
	if store.IsDirPath(path) {
		return nil, o.wrap(store.NewError(store.KindIsADirectory, "read path is a directory"), "read", path)
	}
	if err := checkRead(o.capability(), args); err != nil {
		return nil, o.wrap(err, "read", path)
	}

	if args.Range.IsEmpty() {
		return o.emptyRead(ctx, path, args)
	}

	rp, r, err := o.acc.Read(ctx, o.abs(path), args)
	if err != nil {
		return nil, o.wrap(err, "read", path)
	}

	limit, bounded := args.Range.Limit()
	switch {
	case rp.Size >= 0:
		size := uint64(rp.Size)
		if bounded && limit < size {
			size = limit
		}
		r = stream.NewRangeReader(r, size)
	case bounded:
		r = stream.NewLimitReader(r, limit)
	}
	return &reader{r: r, op: o, path: path}, nil
}

// emptyRead serves a zero-length range. The object is resolved through stat
// so conditions and bounds are checked the same way on every backend.
func (o *Operator) emptyRead(ctx context.Context, path string, args store.OpRead) (store.Reader, error) {
	rp, err := o.acc.Stat(ctx, o.abs(path), args.ToStat())
	if err != nil {
		return nil, o.wrap(err, "read", path)
	}
	meta := rp.Metadata
	if meta.IsDir() {
		return nil, o.wrap(store.NewError(store.KindIsADirectory, "read path is a directory"), "read", path)
	}
	if _, _, err := args.Range.Resolve(meta.ContentLength); err != nil {
		return nil, o.wrap(err, "read", path)
	}
	return &reader{r: stream.BytesReader(nil), op: o, path: path}, nil
}

type reader struct {
	r    store.Reader
	op   *Operator
	path string
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, r.op.wrap(err, "Reader::read", r.path)
	}
	return n, err
}

func (r *reader) Close() error {
	return r.r.Close()
}

// ============================================================================
// Write
// ============================================================================

// Write stores data at path and returns the resulting metadata.
func (o *Operator) Write(ctx context.Context, path string, data []byte) (store.Metadata, error) {
	return o.WriteWith(ctx, path, data, store.OpWrite{})
}

// WriteWith stores data at path with args.
func (o *Operator) WriteWith(ctx context.Context, path string, data []byte, args store.OpWrite) (store.Metadata, error) {
	w, err := o.Writer(ctx, path, args)
	if err != nil {
		return store.Metadata{}, err
	}
	if err := w.Write(ctx, data); err != nil {
		_ = w.Abort(ctx)
		return store.Metadata{}, err
	}
	return w.Close(ctx)
}

// Writer opens a writer on path.
//
// The writer flavor follows args: Append opens an append writer, a
// Concurrent above 1 or a positive Chunk opens a multipart writer, anything
// else a one-shot writer. Each flavor requires the matching capability.
func (o *Operator) Writer(ctx context.Context, path string, args store.OpWrite) (store.Writer, error) {
	path = store.NormalizePath(path)
	if store.IsDirPath(path) {
		return nil, o.wrap(store.NewError(store.KindIsADirectory, "write path is a directory"), "write", path)
	}
	c := o.capability()
	if err := checkWrite(c, args); err != nil {
		return nil, o.wrap(err, "write", path)
	}

	_, w, err := o.acc.Write(ctx, o.abs(path), args)
	if err != nil {
		return nil, o.wrap(err, "write", path)
	}
	return &writer{w: w, op: o, path: path, capability: c}, nil
}

// writer enforces write_can_empty and write_total_max_size on top of the
// backend writer.
type writer struct {
	w          store.Writer
	op         *Operator
	path       string
	capability store.Capability
	written    int64
}

func (w *writer) Write(ctx context.Context, p []byte) error {
	if limit := w.capability.WriteTotalMaxSize; limit > 0 && w.written+int64(len(p)) > limit {
		return w.op.wrap(store.Unsupportedf("write size %d exceeds write_total_max_size %d",
			w.written+int64(len(p)), limit), "Writer::write", w.path)
	}
	if err := w.w.Write(ctx, p); err != nil {
		return w.op.wrap(err, "Writer::write", w.path)
	}
	w.written += int64(len(p))
	return nil
}

func (w *writer) Close(ctx context.Context) (store.Metadata, error) {
	if w.written == 0 && !w.capability.WriteCanEmpty {
		_ = w.w.Abort(ctx)
		return store.Metadata{}, w.op.wrap(store.Unsupportedf("write with empty content is not supported"),
			"Writer::close", w.path)
	}
	meta, err := w.w.Close(ctx)
	if err != nil {
		return store.Metadata{}, w.op.wrap(err, "Writer::close", w.path)
	}
	return meta, nil
}

func (w *writer) Abort(ctx context.Context) error {
	return w.op.wrap(w.w.Abort(ctx), "Writer::abort", w.path)
}

// ============================================================================
// Delete
// ============================================================================

// Delete removes path. Whether deleting a missing path fails with NotFound
// follows the backend's delete_strict capability.
func (o *Operator) Delete(ctx context.Context, path string) error {
	return o.DeleteWith(ctx, path, store.OpDelete{})
}

// DeleteWith removes path with args.
func (o *Operator) DeleteWith(ctx context.Context, path string, args store.OpDelete) error {
	path = store.NormalizePath(path)
	if err := checkDelete(o.capability(), args); err != nil {
		return o.wrap(err, "delete", path)
	}
	return o.deletePaths(ctx, "delete", path, []string{path}, args)
}

func (o *Operator) deletePaths(ctx context.Context, operation, path string, paths []string, args store.OpDelete) error {
	_, d, err := o.acc.Delete(ctx)
	if err != nil {
		return o.wrap(err, operation, path)
	}
	for _, p := range paths {
		if err := d.Delete(o.abs(p), args); err != nil {
			return o.wrap(err, operation, p)
		}
	}
	if _, err := stream.FlushAll(ctx, d); err != nil {
		return o.wrap(err, operation, path)
	}
	return nil
}

// RemoveAll removes path and, for a directory, everything below it.
// A missing path is not an error.
func (o *Operator) RemoveAll(ctx context.Context, path string) error {
	path = store.NormalizePath(path)
	c := o.capability()
	if err := checkDelete(c, store.OpDelete{}); err != nil {
		return o.wrap(err, "remove_all", path)
	}

	if !store.IsDirPath(path) {
		err := o.deletePaths(ctx, "remove_all", path, []string{path}, store.OpDelete{})
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	entries, err := o.ListWith(ctx, path, store.OpList{Recursive: c.ListWithRecursive})
	if err != nil {
		return err
	}

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
		if e.Metadata.IsDir() && !c.ListWithRecursive {
			if err := o.RemoveAll(ctx, e.Path); err != nil {
				return err
			}
		}
	}
	// Children sort after their parent: reverse order empties directories
	// before they are removed.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, p := range paths {
		if err := o.deletePaths(ctx, "remove_all", p, []string{p}, store.OpDelete{}); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if path != "/" {
		if err := o.deletePaths(ctx, "remove_all", path, []string{path}, store.OpDelete{}); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// ============================================================================
// List
// ============================================================================

// List returns the direct children of the directory path.
func (o *Operator) List(ctx context.Context, path string) ([]store.Entry, error) {
	return o.ListWith(ctx, path, store.OpList{})
}

// ListWith returns the entries selected by args.
func (o *Operator) ListWith(ctx context.Context, path string, args store.OpList) ([]store.Entry, error) {
	l, err := o.Lister(ctx, path, args)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, l)
}

// Lister opens a lister on the directory path. Entry paths are relative
// to the operator root.
func (o *Operator) Lister(ctx context.Context, path string, args store.OpList) (store.Lister, error) {
	path = store.NormalizePath(path)
	if !store.IsDirPath(path) {
		return nil, o.wrap(store.NewError(store.KindNotADirectory, "list path is not a directory"), "list", path)
	}
	if err := checkList(o.capability(), args); err != nil {
		return nil, o.wrap(err, "list", path)
	}

	if args.StartAfter != "" {
		args.StartAfter = o.abs(store.NormalizePath(args.StartAfter))
	}

	_, l, err := o.acc.List(ctx, o.abs(path), args)
	if err != nil {
		return nil, o.wrap(err, "list", path)
	}
	return &lister{l: l, op: o, path: path}, nil
}

type lister struct {
	l    store.Lister
	op   *Operator
	path string
}

func (l *lister) Next(ctx context.Context) (store.Entry, error) {
	entry, err := l.l.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return store.Entry{}, io.EOF
		}
		return store.Entry{}, l.op.wrap(err, "Lister::next", l.path)
	}
	entry.Path = l.op.rel(entry.Path)
	return entry, nil
}

// ============================================================================
// Copy / Rename / CreateDir
// ============================================================================

// Copy copies the file from to the file to.
func (o *Operator) Copy(ctx context.Context, from, to string) error {
	from, to = store.NormalizePath(from), store.NormalizePath(to)
	if err := o.checkTransfer("copy", from, to, o.capability().Copy); err != nil {
		return err
	}

	if _, err := o.acc.Copy(ctx, o.abs(from), o.abs(to), store.OpCopy{}); err != nil {
		return o.wrapTransfer(err, "copy", from, to)
	}
	return nil
}

// Rename moves the file from to the file to.
func (o *Operator) Rename(ctx context.Context, from, to string) error {
	from, to = store.NormalizePath(from), store.NormalizePath(to)
	if err := o.checkTransfer("rename", from, to, o.capability().Rename); err != nil {
		return err
	}

	if _, err := o.acc.Rename(ctx, o.abs(from), o.abs(to), store.OpRename{}); err != nil {
		return o.wrapTransfer(err, "rename", from, to)
	}
	return nil
}

func (o *Operator) checkTransfer(operation, from, to string, supported bool) error {
	var err error
	switch {
	case !supported:
		err = store.Unsupportedf("%s is not supported", operation)
	case store.IsDirPath(from):
		err = store.NewError(store.KindIsADirectory, "source path is a directory")
	case store.IsDirPath(to):
		err = store.NewError(store.KindIsADirectory, "destination path is a directory")
	case from == to:
		err = store.NewError(store.KindIsSameFile, "source and destination are the same file")
	default:
		return nil
	}
	return o.wrapTransfer(err, operation, from, to)
}

// CreateDir creates the directory path, which must end with "/".
func (o *Operator) CreateDir(ctx context.Context, path string) error {
	path = store.NormalizePath(path)
	if !store.IsDirPath(path) {
		return o.wrap(store.NewError(store.KindNotADirectory, "create_dir path must end with /"), "create_dir", path)
	}
	if !o.capability().CreateDir {
		return o.wrap(store.Unsupportedf("create_dir is not supported"), "create_dir", path)
	}

	if _, err := o.acc.CreateDir(ctx, o.abs(path), store.OpCreateDir{}); err != nil {
		return o.wrap(err, "create_dir", path)
	}
	return nil
}
