// Package fs implements a storage service on a filesystem.
//
// The service works on any afero.Fs: the local disk below Config.Path in
// production, an in-memory filesystem in tests. Directories are real
// directories, so create_dir and implied parents behave like the OS does.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	"github.com/spf13/afero"
)

// Config configures the fs service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Path is the base directory on the local filesystem. Created when
	// missing.
	Path string `mapstructure:"path" validate:"required"`

	// AtomicWriteDir, relative to Path, receives in-progress writes which
	// are renamed into place on close. Empty writes in place.
	AtomicWriteDir string `mapstructure:"atomic_write_dir"`
}

// Backend is the fs service.
//
// Thread Safety:
// Operations rely on the filesystem for consistency. Concurrent writers of
// the same path race; the last rename wins when AtomicWriteDir is set.
type Backend struct {
	fs     *afero.Afero
	info   *store.Info
	tmpDir string
}

var _ store.Accessor = (*Backend)(nil)

// New creates a service rooted at cfg.Path on the local filesystem.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		return nil, store.NewError(store.KindConfigInvalid, "path is required").
			WithContext("service", string(store.SchemeFS))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := afero.NewOsFs().MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return NewWithFs(ctx, afero.NewBasePathFs(afero.NewOsFs(), cfg.Path), cfg)
}

// NewWithFs creates a service on an arbitrary filesystem. cfg.Path is
// ignored.
func NewWithFs(ctx context.Context, fsys afero.Fs, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &Backend{
		fs: &afero.Afero{Fs: fsys},
		info: store.NewInfo().
			SetScheme(store.SchemeFS).
			SetName(cfg.Name).
			SetRoot(cfg.Root).
			SetNativeCapability(store.Capability{
				Stat:               true,
				Read:               true,
				Write:              true,
				WriteCanEmpty:      true,
				WriteCanAppend:     true,
				CreateDir:          true,
				Delete:             true,
				Copy:               true,
				Rename:             true,
				List:               true,
				ListWithLimit:      true,
				ListWithStartAfter: true,
				ListWithRecursive:  true,
			}),
	}

	if cfg.AtomicWriteDir != "" {
		b.tmpDir = localPath(store.NormalizePath(cfg.AtomicWriteDir))
		if err := b.fs.MkdirAll(b.tmpDir, 0755); err != nil {
			return nil, parseError(err, cfg.AtomicWriteDir)
		}
	}
	logger.Debug("fs: service ready (name=%q, atomic_write_dir=%q)", cfg.Name, cfg.AtomicWriteDir)
	return b, nil
}

func (b *Backend) Info() *store.Info {
	return b.info
}

// localPath maps an absolute store path to a filesystem path.
func localPath(p string) string {
	return filepath.FromSlash("/" + strings.Trim(p, "/"))
}

// storePath maps a filesystem path back to an absolute store path.
func storePath(p string, dir bool) string {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	if dir && p != "" {
		p += "/"
	}
	return p
}

func metadataOf(fi iofs.FileInfo) store.Metadata {
	if fi.IsDir() {
		meta := store.NewMetadata(store.ModeDir)
		meta.LastModified = fi.ModTime().UTC()
		return meta
	}
	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = uint64(fi.Size())
	meta.LastModified = fi.ModTime().UTC()
	return meta
}

// ============================================================================
// Stat / Read / CreateDir
// ============================================================================

func (b *Backend) Stat(ctx context.Context, path string, _ store.OpStat) (store.RpStat, error) {
	if err := ctx.Err(); err != nil {
		return store.RpStat{}, err
	}
	fi, err := b.fs.Stat(localPath(path))
	if err != nil {
		return store.RpStat{}, parseError(err, path)
	}
	if store.IsDirPath(path) && !fi.IsDir() {
		return store.RpStat{}, store.NewError(store.KindNotADirectory, "path is a file").WithPath(path)
	}
	return store.NewRpStat(metadataOf(fi)), nil
}

func (b *Backend) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	if err := ctx.Err(); err != nil {
		return store.RpRead{}, nil, err
	}
	f, err := b.fs.Open(localPath(path))
	if err != nil {
		return store.RpRead{}, nil, parseError(err, path)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return store.RpRead{}, nil, parseError(err, path)
	}
	if fi.IsDir() {
		_ = f.Close()
		return store.RpRead{}, nil, store.NewError(store.KindIsADirectory, "cannot read a directory").WithPath(path)
	}

	offset, length, err := args.Range.Resolve(uint64(fi.Size()))
	if err != nil {
		_ = f.Close()
		return store.RpRead{}, nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			_ = f.Close()
			return store.RpRead{}, nil, parseError(err, path)
		}
	}

	r := &fileReader{Reader: io.LimitReader(f, int64(length)), f: f}
	return store.RpRead{Size: int64(length)}, r, nil
}

type fileReader struct {
	io.Reader
	f afero.File
}

func (r *fileReader) Close() error {
	return r.f.Close()
}

func (b *Backend) CreateDir(ctx context.Context, path string, _ store.OpCreateDir) (store.RpCreateDir, error) {
	if err := ctx.Err(); err != nil {
		return store.RpCreateDir{}, err
	}
	if err := b.fs.MkdirAll(localPath(path), 0755); err != nil {
		return store.RpCreateDir{}, parseError(err, path)
	}
	return store.RpCreateDir{}, nil
}

// ============================================================================
// Copy / Rename
// ============================================================================

func (b *Backend) Copy(ctx context.Context, from, to string, _ store.OpCopy) (store.RpCopy, error) {
	if err := ctx.Err(); err != nil {
		return store.RpCopy{}, err
	}
	src, err := b.fs.Open(localPath(from))
	if err != nil {
		return store.RpCopy{}, parseError(err, from)
	}
	defer func() { _ = src.Close() }()

	if fi, err := src.Stat(); err != nil {
		return store.RpCopy{}, parseError(err, from)
	} else if fi.IsDir() {
		return store.RpCopy{}, store.NewError(store.KindIsADirectory, "cannot copy a directory").WithPath(from)
	}

	target := localPath(to)
	if err := b.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return store.RpCopy{}, parseError(err, to)
	}
	dst, err := b.fs.OpenFile(target, osCreateTrunc, 0644)
	if err != nil {
		return store.RpCopy{}, parseError(err, to)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return store.RpCopy{}, parseError(err, to)
	}
	if err := dst.Close(); err != nil {
		return store.RpCopy{}, parseError(err, to)
	}
	return store.RpCopy{}, nil
}

func (b *Backend) Rename(ctx context.Context, from, to string, _ store.OpRename) (store.RpRename, error) {
	if err := ctx.Err(); err != nil {
		return store.RpRename{}, err
	}
	source := localPath(from)
	fi, err := b.fs.Stat(source)
	if err != nil {
		return store.RpRename{}, parseError(err, from)
	}
	if fi.IsDir() {
		return store.RpRename{}, store.NewError(store.KindIsADirectory, "cannot rename a directory").WithPath(from)
	}

	target := localPath(to)
	if err := b.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return store.RpRename{}, parseError(err, to)
	}
	if err := b.fs.Rename(source, target); err != nil {
		return store.RpRename{}, parseError(err, from)
	}
	return store.RpRename{}, nil
}

// ============================================================================
// Errors
// ============================================================================

// parseError maps filesystem errors to store kinds.
func parseError(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, iofs.ErrNotExist):
		return store.NewError(store.KindNotFound, "no such file or directory").WithPath(path).WithSource(err)
	case errors.Is(err, iofs.ErrPermission):
		return store.NewError(store.KindPermissionDenied, "permission denied").WithPath(path).WithSource(err)
	case errors.Is(err, iofs.ErrExist):
		return store.NewError(store.KindAlreadyExists, "file exists").WithPath(path).WithSource(err)
	case errors.Is(err, syscall.EISDIR):
		return store.NewError(store.KindIsADirectory, "is a directory").WithPath(path).WithSource(err)
	case errors.Is(err, syscall.ENOTDIR):
		return store.NewError(store.KindNotADirectory, "not a directory").WithPath(path).WithSource(err)
	default:
		return store.NewError(store.KindUnexpected, "filesystem operation failed").WithPath(path).WithSource(err)
	}
}

// Delete queues paths and removes them one by one on flush.
func (b *Backend) Delete(context.Context) (store.RpDelete, store.Deleter, error) {
	return store.RpDelete{}, stream.NewOneShotDeleter(&deleter{fs: b.fs}), nil
}

type deleter struct {
	fs *afero.Afero
}

// DeleteOnce removes a file or an empty directory. A missing path is not
// an error.
func (d *deleter) DeleteOnce(ctx context.Context, path string, _ store.OpDelete) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	err := d.fs.Remove(localPath(path))
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return parseError(err, path)
	}
	return nil
}
