package fs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	"github.com/spf13/afero"
)

const (
	osCreateTrunc  = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	osCreateAppend = os.O_WRONLY | os.O_CREATE | os.O_APPEND
)

func (b *Backend) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return store.RpWrite{}, nil, err
	}
	if args.Append {
		return store.RpWrite{}, stream.NewAppendWriter(&appendWriter{fs: b.fs, path: path}), nil
	}
	return store.RpWrite{}, stream.NewOneShotWriter(&oneShotWriter{fs: b.fs, path: path, tmpDir: b.tmpDir}), nil
}

// oneShotWriter writes the whole file on close, through a temporary file
// when tmpDir is set.
type oneShotWriter struct {
	fs     *afero.Afero
	path   string
	tmpDir string
}

func (w *oneShotWriter) WriteOnce(ctx context.Context, data []byte) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}
	target := localPath(w.path)
	if err := w.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}

	if w.tmpDir == "" {
		if err := w.fs.WriteFile(target, data, 0644); err != nil {
			return store.Metadata{}, parseError(err, w.path)
		}
	} else {
		tmp := filepath.Join(w.tmpDir, uuid.NewString())
		if err := w.fs.WriteFile(tmp, data, 0644); err != nil {
			return store.Metadata{}, parseError(err, w.path)
		}
		if err := w.fs.Rename(tmp, target); err != nil {
			_ = w.fs.Remove(tmp)
			return store.Metadata{}, parseError(err, w.path)
		}
	}

	return w.stat()
}

func (w *oneShotWriter) stat() (store.Metadata, error) {
	fi, err := w.fs.Stat(localPath(w.path))
	if err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}
	return metadataOf(fi), nil
}

// appendWriter appends to the end of the file after checking its size.
type appendWriter struct {
	fs   *afero.Afero
	path string
}

func (w *appendWriter) Offset(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fi, err := w.fs.Stat(localPath(w.path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, parseError(err, w.path)
	}
	if fi.IsDir() {
		return 0, store.NewError(store.KindIsADirectory, "cannot append to a directory").WithPath(w.path)
	}
	return uint64(fi.Size()), nil
}

func (w *appendWriter) Append(ctx context.Context, offset uint64, data []byte) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}
	target := localPath(w.path)
	if err := w.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}

	f, err := w.fs.OpenFile(target, osCreateAppend, 0644)
	if err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}
	if uint64(fi.Size()) != offset {
		return store.Metadata{}, store.Errorf(store.KindConditionNotMatch,
			"append offset %d does not match file size %d", offset, fi.Size()).WithPath(w.path)
	}
	if _, err := f.Write(data); err != nil {
		return store.Metadata{}, parseError(err, w.path)
	}

	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = offset + uint64(len(data))
	return meta, nil
}
