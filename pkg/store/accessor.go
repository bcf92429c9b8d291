package store

import (
	"context"
	"io"
)

// ============================================================================
// Streaming Handles
// ============================================================================

// Reader streams the payload of one read. It yields exactly RpRead.Size bytes
// when the size is known.
type Reader = io.ReadCloser

// Writer accumulates the payload of one write.
//
// Write may be called any number of times. Close commits the object and
// returns its resulting metadata; nothing is visible remotely before Close
// succeeds for backends that support it. Abort discards the write. After
// Close or Abort the writer must not be used again.
type Writer interface {
	// Write hands one chunk to the writer. The writer may retain p until the
	// call returns only; callers can reuse p afterwards.
	Write(ctx context.Context, p []byte) error

	// Close commits the write.
	Close(ctx context.Context) (Metadata, error)

	// Abort discards everything written so far.
	Abort(ctx context.Context) error
}

// Lister yields entries one by one. Next returns io.EOF once the listing is
// exhausted.
type Lister interface {
	Next(ctx context.Context) (Entry, error)
}

// Deleter queues deletions and executes them on Flush.
//
// Flush returns the number of paths actually deleted in this flush. Queued
// paths that were not flushed because of an error stay queued.
type Deleter interface {
	Delete(path string, args OpDelete) error
	Flush(ctx context.Context) (int, error)
}

// ============================================================================
// Accessor
// ============================================================================

// Accessor is the contract every backend implements.
//
// Paths handed to an Accessor are already normalized and prefixed with the
// backend root by the operator: they never start with a slash, a trailing
// slash marks a directory and "" is the root of the storage. An Accessor is
// never invoked for an operation variant its Info capability does not
// declare, so implementations need not re-check their own capability.
//
// Implementations must be safe for concurrent use. Handles returned by
// streaming operations are owned by a single caller.
type Accessor interface {
	// Info returns the shared backend metadata.
	Info() *Info

	// CreateDir creates a directory (path ends with "/").
	CreateDir(ctx context.Context, path string, args OpCreateDir) (RpCreateDir, error)

	// Stat returns the metadata of path.
	Stat(ctx context.Context, path string, args OpStat) (RpStat, error)

	// Read opens a reader on path.
	Read(ctx context.Context, path string, args OpRead) (RpRead, Reader, error)

	// Write opens a writer on path.
	Write(ctx context.Context, path string, args OpWrite) (RpWrite, Writer, error)

	// Delete opens a deleter.
	Delete(ctx context.Context) (RpDelete, Deleter, error)

	// List opens a lister on a directory path.
	List(ctx context.Context, path string, args OpList) (RpList, Lister, error)

	// Copy copies a file.
	Copy(ctx context.Context, from, to string, args OpCopy) (RpCopy, error)

	// Rename moves a file.
	Rename(ctx context.Context, from, to string, args OpRename) (RpRename, error)
}

// Unimplemented can be embedded by backends to get an Unsupported answer for
// every operation they do not override.
type Unimplemented struct{}

func (Unimplemented) unsupported(op string) error {
	return NewError(KindUnsupported, "operation is not supported by this backend").WithOperation(op)
}

func (u Unimplemented) CreateDir(context.Context, string, OpCreateDir) (RpCreateDir, error) {
	return RpCreateDir{}, u.unsupported("create_dir")
}

func (u Unimplemented) Stat(context.Context, string, OpStat) (RpStat, error) {
	return RpStat{}, u.unsupported("stat")
}

func (u Unimplemented) Read(context.Context, string, OpRead) (RpRead, Reader, error) {
	return RpRead{}, nil, u.unsupported("read")
}

func (u Unimplemented) Write(context.Context, string, OpWrite) (RpWrite, Writer, error) {
	return RpWrite{}, nil, u.unsupported("write")
}

func (u Unimplemented) Delete(context.Context) (RpDelete, Deleter, error) {
	return RpDelete{}, nil, u.unsupported("delete")
}

func (u Unimplemented) List(context.Context, string, OpList) (RpList, Lister, error) {
	return RpList{}, nil, u.unsupported("list")
}

func (u Unimplemented) Copy(context.Context, string, string, OpCopy) (RpCopy, error) {
	return RpCopy{}, u.unsupported("copy")
}

func (u Unimplemented) Rename(context.Context, string, string, OpRename) (RpRename, error) {
	return RpRename{}, u.unsupported("rename")
}
