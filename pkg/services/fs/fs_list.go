package fs

import (
	"context"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	"github.com/spf13/afero"
)

func (b *Backend) List(ctx context.Context, path string, args store.OpList) (store.RpList, store.Lister, error) {
	if err := ctx.Err(); err != nil {
		return store.RpList{}, nil, err
	}
	return store.RpList{}, stream.NewPageLister(&lister{fs: b.fs, path: path, args: args}), nil
}

// lister reads the directory once and serves the snapshot in pages of
// args.Limit entries. The page token is the offset of the next entry.
type lister struct {
	fs   *afero.Afero
	path string
	args store.OpList

	scanned bool
	entries []store.Entry
}

func (l *lister) NextPage(ctx context.Context, pc *stream.PageContext) error {
	if !l.scanned {
		entries, err := l.scan(ctx)
		if err != nil {
			return err
		}
		l.entries = entries
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

func (l *lister) scan(ctx context.Context) ([]store.Entry, error) {
	root := localPath(l.path)
	var entries []store.Entry

	if l.args.Recursive {
		err := l.fs.Walk(root, func(p string, fi iofs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if p == root {
				return nil
			}
			entries = append(entries, store.NewEntry(storePath(p, fi.IsDir()), metadataOf(fi)))
			return nil
		})
		if err != nil {
			return nil, parseError(err, l.path)
		}
	} else {
		infos, err := l.fs.ReadDir(root)
		if err != nil {
			return nil, parseError(err, l.path)
		}
		for _, fi := range infos {
			p := filepath.Join(root, fi.Name())
			entries = append(entries, store.NewEntry(storePath(p, fi.IsDir()), metadataOf(fi)))
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if l.args.StartAfter != "" {
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Path > l.args.StartAfter })
		entries = entries[i:]
	}
	return entries, nil
}
