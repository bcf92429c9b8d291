// Package memory implements an in-memory storage service.
//
// It supports every operation variant: conditional stat and read, object
// versions, one-shot, append and multipart writes, paged listings, copy and
// rename. It is used for tests and as the reference behavior of the other
// services.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

// Config configures the memory service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// DeleteStrict makes deleting a missing path fail with NotFound.
	DeleteStrict bool `mapstructure:"delete_strict"`

	// WriteTotalMaxSize caps the size of a single object (0 = unlimited).
	WriteTotalMaxSize int64 `mapstructure:"write_total_max_size" validate:"omitempty,min=0"`

	// KeepMultipartOnFailure leaves the upload session in place when a part
	// fails instead of discarding it.
	KeepMultipartOnFailure bool `mapstructure:"keep_multipart_on_failure"`
}

// object is one version of a file, or a directory marker.
type object struct {
	data []byte
	meta store.Metadata
}

// entry holds the versions of one path, oldest first.
type entry struct {
	versions []*object
}

func (e *entry) current() *object {
	if len(e.versions) == 0 {
		return nil
	}
	return e.versions[len(e.versions)-1]
}

func (e *entry) version(v string) *object {
	for _, o := range e.versions {
		if o.meta.Version == v {
			return o
		}
	}
	return nil
}

// Backend is the memory service.
//
// Thread Safety:
// All state is protected by a single RWMutex. Values are copied on the way
// in and never mutated afterwards, so readers can hold them without the
// lock.
type Backend struct {
	cfg  Config
	info *store.Info

	mu      sync.RWMutex
	entries map[string]*entry
	uploads map[string]*upload
	seq     uint64
}

var _ store.Accessor = (*Backend)(nil)

// New creates an empty memory service.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := store.NewInfo().
		SetScheme(store.SchemeMemory).
		SetRoot(cfg.Root).
		SetName(cfg.Name).
		SetNativeCapability(store.Capability{
			Stat:                      true,
			StatWithIfMatch:           true,
			StatWithIfNoneMatch:       true,
			StatWithIfModifiedSince:   true,
			StatWithIfUnmodifiedSince: true,
			StatWithVersion:           true,

			Read:                      true,
			ReadWithIfMatch:           true,
			ReadWithIfNoneMatch:       true,
			ReadWithIfModifiedSince:   true,
			ReadWithIfUnmodifiedSince: true,
			ReadWithVersion:           true,

			Write:                true,
			WriteCanEmpty:        true,
			WriteCanMulti:        true,
			WriteCanAppend:       true,
			WriteWithIfMatch:     true,
			WriteWithIfNoneMatch: true,
			WriteWithIfNotExists: true,
			WriteWithContentType: true,
			WriteTotalMaxSize:    cfg.WriteTotalMaxSize,

			CreateDir: true,

			Delete:            true,
			DeleteWithVersion: true,
			DeleteMaxSize:     1,
			DeleteStrict:      cfg.DeleteStrict,

			Copy:   true,
			Rename: true,

			List:               true,
			ListWithLimit:      true,
			ListWithStartAfter: true,
			ListWithRecursive:  true,
		})

	return &Backend{
		cfg:     cfg,
		info:    info,
		entries: make(map[string]*entry),
		uploads: make(map[string]*upload),
	}, nil
}

func (b *Backend) Info() *store.Info {
	return b.info
}

// ============================================================================
// Helpers (callers hold b.mu)
// ============================================================================

// newObject builds the next version of a file.
func (b *Backend) newObject(data []byte, contentType string) *object {
	b.seq++
	sum := md5.Sum(data)
	return &object{
		data: data,
		meta: store.Metadata{
			Mode:          store.ModeFile,
			ContentLength: uint64(len(data)),
			LastModified:  time.Now().UTC(),
			ETag:          `"` + hex.EncodeToString(sum[:]) + `"`,
			Version:       strconv.FormatUint(b.seq, 10),
			ContentType:   contentType,
			ContentMD5:    base64.StdEncoding.EncodeToString(sum[:]),
		},
	}
}

// put appends a new version to path.
func (b *Backend) put(path string, obj *object) {
	e, ok := b.entries[path]
	if !ok {
		e = &entry{}
		b.entries[path] = e
	}
	e.versions = append(e.versions, obj)
}

// currentFile returns the latest version of a file, nil if absent.
func (b *Backend) currentFile(path string) *object {
	if e, ok := b.entries[path]; ok {
		return e.current()
	}
	return nil
}

// dirExists reports whether dir (ending with "/") exists, explicitly or
// through an object below it.
func (b *Backend) dirExists(dir string) bool {
	if dir == "" {
		return true
	}
	if _, ok := b.entries[dir]; ok {
		return true
	}
	for key := range b.entries {
		if len(key) > len(dir) && key[:len(dir)] == dir {
			return true
		}
	}
	return false
}

// resolve finds the object addressed by path and version.
//
// Directories are probed first: a path "a" for which "a/" exists resolves
// to the directory even if a file "a" exists too.
func (b *Backend) resolve(path, version string) (*object, error) {
	if store.IsDirPath(path) {
		if !b.dirExists(path) {
			return nil, store.NewError(store.KindNotFound, "directory not found").WithPath(path)
		}
		return &object{meta: store.NewMetadata(store.ModeDir)}, nil
	}

	if b.dirExists(path + "/") {
		return &object{meta: store.NewMetadata(store.ModeDir)}, nil
	}

	e, ok := b.entries[path]
	if !ok || len(e.versions) == 0 {
		return nil, store.NewError(store.KindNotFound, "object not found").WithPath(path)
	}
	if version == "" {
		return e.current(), nil
	}
	obj := e.version(version)
	if obj == nil {
		return nil, store.NewError(store.KindNotFound, "object version not found").
			WithPath(path).
			WithContext("version", version)
	}
	return obj, nil
}

// ============================================================================
// Stat / Read / CreateDir
// ============================================================================

func (b *Backend) CreateDir(ctx context.Context, path string, _ store.OpCreateDir) (store.RpCreateDir, error) {
	if err := ctx.Err(); err != nil {
		return store.RpCreateDir{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[path]; !ok {
		meta := store.NewMetadata(store.ModeDir)
		meta.LastModified = time.Now().UTC()
		b.entries[path] = &entry{versions: []*object{{meta: meta}}}
	}
	return store.RpCreateDir{}, nil
}

func (b *Backend) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	if err := ctx.Err(); err != nil {
		return store.RpStat{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, err := b.resolve(path, args.Version)
	if err != nil {
		return store.RpStat{}, err
	}

	cond := args.Conditions()
	cond.Version = ""
	if err := cond.Check(obj.meta); err != nil {
		return store.RpStat{}, err
	}
	return store.NewRpStat(obj.meta), nil
}

func (b *Backend) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	if err := ctx.Err(); err != nil {
		return store.RpRead{}, nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, err := b.resolve(path, args.Version)
	if err != nil {
		return store.RpRead{}, nil, err
	}
	if obj.meta.IsDir() {
		return store.RpRead{}, nil, store.NewError(store.KindIsADirectory, "cannot read a directory").WithPath(path)
	}

	cond := args.Conditions()
	cond.Version = ""
	if err := cond.Check(obj.meta); err != nil {
		return store.RpRead{}, nil, err
	}

	data, err := args.Range.Slice(obj.data)
	if err != nil {
		return store.RpRead{}, nil, err
	}
	return store.RpRead{Size: int64(len(data))}, stream.BytesReader(data), nil
}
