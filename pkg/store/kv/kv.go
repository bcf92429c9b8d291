// Package kv turns a plain key/value store into a full store.Accessor.
//
// Services backed by an embedded database or a SQL table only implement
// Adapter (four methods) and get stat, read, write, list, delete, copy,
// rename and create_dir from Backend. Keys are the absolute paths handed
// down by the operator; directories are either explicit markers (a key
// ending with "/" holding an empty value) or implied by the keys below them.
package kv

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

// Adapter is the minimal key/value primitive.
type Adapter interface {
	// Get returns the value of key, or an error of kind NotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Scan returns every key starting with prefix, in any order.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Options describes the backend built on top of an Adapter.
type Options struct {
	Scheme store.Scheme
	Name   string
	Root   string
	Shared bool
}

// Backend implements store.Accessor on top of an Adapter.
type Backend struct {
	adapter Adapter
	info    *store.Info
}

var _ store.Accessor = (*Backend)(nil)

// New creates a backend on adapter.
func New(adapter Adapter, opts Options) *Backend {
	info := store.NewInfo().
		SetScheme(opts.Scheme).
		SetName(opts.Name).
		SetRoot(opts.Root).
		SetNativeCapability(store.Capability{
			Stat:               true,
			Read:               true,
			Write:              true,
			WriteCanEmpty:      true,
			CreateDir:          true,
			Delete:             true,
			Copy:               true,
			Rename:             true,
			List:               true,
			ListWithLimit:      true,
			ListWithStartAfter: true,
			ListWithRecursive:  true,
			Shared:             opts.Shared,
		})
	return &Backend{adapter: adapter, info: info}
}

// Adapter returns the underlying adapter.
func (b *Backend) Adapter() Adapter {
	return b.adapter
}

// Close closes the adapter if it holds resources.
func (b *Backend) Close() error {
	if c, ok := b.adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Backend) Info() *store.Info {
	return b.info
}

func (b *Backend) CreateDir(ctx context.Context, path string, _ store.OpCreateDir) (store.RpCreateDir, error) {
	// The root always exists.
	if path == "" {
		return store.RpCreateDir{}, nil
	}
	if err := b.adapter.Set(ctx, path, nil); err != nil {
		return store.RpCreateDir{}, err
	}
	return store.RpCreateDir{}, nil
}

func (b *Backend) Stat(ctx context.Context, path string, _ store.OpStat) (store.RpStat, error) {
	if store.IsDirPath(path) {
		if path == "" {
			return store.NewRpStat(store.NewMetadata(store.ModeDir)), nil
		}
		if _, err := b.adapter.Get(ctx, path); err == nil {
			return store.NewRpStat(store.NewMetadata(store.ModeDir)), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return store.RpStat{}, err
		}
		keys, err := b.adapter.Scan(ctx, path)
		if err != nil {
			return store.RpStat{}, err
		}
		if len(keys) == 0 {
			return store.RpStat{}, store.NewError(store.KindNotFound, "directory not found").WithPath(path)
		}
		return store.NewRpStat(store.NewMetadata(store.ModeDir)), nil
	}

	value, err := b.adapter.Get(ctx, path)
	if err != nil {
		return store.RpStat{}, err
	}
	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = uint64(len(value))
	return store.NewRpStat(meta), nil
}

func (b *Backend) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	value, err := b.adapter.Get(ctx, path)
	if err != nil {
		return store.RpRead{}, nil, err
	}
	data, err := args.Range.Slice(value)
	if err != nil {
		return store.RpRead{}, nil, err
	}
	return store.RpRead{Size: int64(len(data))}, stream.BytesReader(data), nil
}

func (b *Backend) Write(_ context.Context, path string, _ store.OpWrite) (store.RpWrite, store.Writer, error) {
	return store.RpWrite{}, stream.NewOneShotWriter(&kvWriter{adapter: b.adapter, key: path}), nil
}

func (b *Backend) Delete(context.Context) (store.RpDelete, store.Deleter, error) {
	return store.RpDelete{}, stream.NewOneShotDeleter(&kvDeleter{adapter: b.adapter}), nil
}

func (b *Backend) List(_ context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	return store.RpList{}, stream.NewPageLister(&kvLister{adapter: b.adapter, path: path, args: args}), nil
}

func (b *Backend) Copy(ctx context.Context, from, to string, _ store.OpCopy) (store.RpCopy, error) {
	value, err := b.adapter.Get(ctx, from)
	if err != nil {
		return store.RpCopy{}, err
	}
	if err := b.adapter.Set(ctx, to, value); err != nil {
		return store.RpCopy{}, err
	}
	return store.RpCopy{}, nil
}

func (b *Backend) Rename(ctx context.Context, from, to string, _ store.OpRename) (store.RpRename, error) {
	if _, err := b.Copy(ctx, from, to, store.OpCopy{}); err != nil {
		return store.RpRename{}, err
	}
	if err := b.adapter.Delete(ctx, from); err != nil {
		return store.RpRename{}, err
	}
	return store.RpRename{}, nil
}

// ============================================================================
// Primitives
// ============================================================================

type kvWriter struct {
	adapter Adapter
	key     string
}

func (w *kvWriter) WriteOnce(ctx context.Context, data []byte) (store.Metadata, error) {
	value := append([]byte(nil), data...)
	if err := w.adapter.Set(ctx, w.key, value); err != nil {
		return store.Metadata{}, err
	}
	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = uint64(len(value))
	return meta, nil
}

type kvDeleter struct {
	adapter Adapter
}

func (d *kvDeleter) DeleteOnce(ctx context.Context, path string, _ store.OpDelete) error {
	return d.adapter.Delete(ctx, path)
}

// kvLister scans once and serves the snapshot in pages of args.Limit.
type kvLister struct {
	adapter Adapter
	path    string
	args    store.OpList

	scanned bool
	entries []store.Entry
}

func (l *kvLister) NextPage(ctx context.Context, pc *stream.PageContext) error {
	if !l.scanned {
		keys, err := l.adapter.Scan(ctx, l.path)
		if err != nil {
			return err
		}
		l.entries = Children(l.path, keys, l.args.Recursive, l.args.StartAfter)
		l.scanned = true
	}

	start := 0
	if pc.Token != "" {
		start, _ = strconv.Atoi(pc.Token)
	}
	end := len(l.entries)
	if l.args.Limit > 0 {
		end = min(start+l.args.Limit, end)
	}
	for _, entry := range l.entries[start:end] {
		pc.Push(entry)
	}
	if end >= len(l.entries) {
		pc.Done = true
		return nil
	}
	pc.Token = strconv.Itoa(end)
	return nil
}

// Children derives the sorted entries below dir from a flat key set.
//
// Non-recursive listings collapse deeper keys into their first level
// directory. The directory marker of dir itself is skipped. Entries up to
// and including startAfter are dropped.
func Children(dir string, keys []string, recursive bool, startAfter string) []store.Entry {
	seen := make(map[string]bool)
	var paths []string

	for _, key := range keys {
		if !strings.HasPrefix(key, dir) || key == dir {
			continue
		}
		rest := key[len(dir):]

		if recursive {
			// Implied parent directories show up too.
			for i := 0; i < len(rest); i++ {
				if rest[i] == '/' && i < len(rest)-1 {
					p := dir + rest[:i+1]
					if !seen[p] {
						seen[p] = true
						paths = append(paths, p)
					}
				}
			}
			if !seen[key] {
				seen[key] = true
				paths = append(paths, key)
			}
			continue
		}

		p := key
		if idx := strings.Index(rest, "/"); idx >= 0 {
			p = dir + rest[:idx+1]
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	sort.Strings(paths)

	entries := make([]store.Entry, 0, len(paths))
	for _, p := range paths {
		if startAfter != "" && p <= startAfter {
			continue
		}
		entries = append(entries, store.NewEntry(p, store.NewMetadata(store.ModeFromPath(p))))
	}
	return entries
}
