package memory

import (
	"context"
	"strconv"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/kv"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

// ============================================================================
// List
// ============================================================================

func (b *Backend) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	if err := ctx.Err(); err != nil {
		return store.RpList{}, nil, err
	}
	return store.RpList{}, stream.NewPageLister(&lister{b: b, path: path, args: args}), nil
}

// lister takes its snapshot on the first page so every entry of that
// snapshot is served exactly once, whatever happens to the map afterwards.
type lister struct {
	b    *Backend
	path string
	args store.OpList

	snapshot []store.Entry
	taken    bool
}

func (l *lister) NextPage(ctx context.Context, pc *stream.PageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !l.taken {
		l.snapshot = l.b.snapshot(l.path, l.args)
		l.taken = true
	}

	start := 0
	if pc.Token != "" {
		start, _ = strconv.Atoi(pc.Token)
	}
	end := len(l.snapshot)
	if l.args.Limit > 0 {
		end = min(start+l.args.Limit, end)
	}
	for _, e := range l.snapshot[start:end] {
		pc.Push(e)
	}
	if end >= len(l.snapshot) {
		pc.Done = true
		return nil
	}
	pc.Token = strconv.Itoa(end)
	return nil
}

func (b *Backend) snapshot(dir string, args store.OpList) []store.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}

	entries := kv.Children(dir, keys, args.Recursive, args.StartAfter)
	for i, e := range entries {
		if obj := b.currentFile(e.Path); obj != nil && obj.meta.IsFile() {
			entries[i].Metadata = obj.meta
		}
	}
	return entries
}

// ============================================================================
// Delete
// ============================================================================

func (b *Backend) Delete(ctx context.Context) (store.RpDelete, store.Deleter, error) {
	if err := ctx.Err(); err != nil {
		return store.RpDelete{}, nil, err
	}
	return store.RpDelete{}, stream.NewOneShotDeleter(b), nil
}

// DeleteOnce removes path, or one version of it.
func (b *Backend) DeleteOnce(ctx context.Context, path string, args store.OpDelete) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[path]
	if !ok {
		return b.missing(path)
	}

	if args.Version == "" {
		delete(b.entries, path)
		return nil
	}

	for i, o := range e.versions {
		if o.meta.Version == args.Version {
			e.versions = append(e.versions[:i:i], e.versions[i+1:]...)
			if len(e.versions) == 0 {
				delete(b.entries, path)
			}
			return nil
		}
	}
	return b.missing(path)
}

func (b *Backend) missing(path string) error {
	if b.cfg.DeleteStrict {
		return store.NewError(store.KindNotFound, "object not found").WithPath(path)
	}
	return nil
}

// ============================================================================
// Copy / Rename
// ============================================================================

func (b *Backend) Copy(ctx context.Context, from, to string, _ store.OpCopy) (store.RpCopy, error) {
	if err := ctx.Err(); err != nil {
		return store.RpCopy{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.currentFile(from)
	if src == nil {
		return store.RpCopy{}, store.NewError(store.KindNotFound, "source not found").WithPath(from)
	}
	if src.meta.IsDir() {
		return store.RpCopy{}, store.NewError(store.KindIsADirectory, "cannot copy a directory").WithPath(from)
	}

	b.put(to, b.newObject(src.data, src.meta.ContentType))
	return store.RpCopy{}, nil
}

func (b *Backend) Rename(ctx context.Context, from, to string, _ store.OpRename) (store.RpRename, error) {
	if err := ctx.Err(); err != nil {
		return store.RpRename{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.currentFile(from)
	if src == nil {
		return store.RpRename{}, store.NewError(store.KindNotFound, "source not found").WithPath(from)
	}
	if src.meta.IsDir() {
		return store.RpRename{}, store.NewError(store.KindIsADirectory, "cannot rename a directory").WithPath(from)
	}

	b.put(to, b.newObject(src.data, src.meta.ContentType))
	delete(b.entries, from)
	return store.RpRename{}, nil
}
