package store

import (
	"sync"
	"sync/atomic"
)

// Scheme identifies a backend implementation ("memory", "s3", "fs", ...).
type Scheme string

const (
	SchemeMemory Scheme = "memory"
	SchemeFS     Scheme = "fs"
	SchemeS3     Scheme = "s3"
	SchemeBadger Scheme = "badger"
	SchemeBolt   Scheme = "bolt"
	SchemeSQL    Scheme = "sql"
	SchemeHTTP   Scheme = "http"
)

// Info is the metadata of one backend instance.
//
// It is built once by the backend constructor and shared by pointer between
// the backend, the operator and every streaming handle that needs it. Scheme,
// root, name and capability are set during construction and only read
// afterwards. The HTTP client is the one exception: it can be swapped at any
// time and the swap is atomic.
type Info struct {
	mu sync.RWMutex

	scheme Scheme
	root   string
	name   string

	nativeCapability Capability
	fullCapability   Capability

	httpClient atomic.Pointer[HTTPClient]
}

// NewInfo creates an Info with root "/" and a default HTTP client.
func NewInfo() *Info {
	info := &Info{root: "/"}
	info.httpClient.Store(NewHTTPClient())
	return info
}

// Scheme returns the backend scheme.
func (i *Info) Scheme() Scheme {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.scheme
}

// SetScheme sets the backend scheme.
func (i *Info) SetScheme(scheme Scheme) *Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.scheme = scheme
	return i
}

// Root returns the normalized root: "/" or "/a/b".
func (i *Info) Root() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.root
}

// SetRoot normalizes and sets the root.
func (i *Info) SetRoot(root string) *Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.root = NormalizeRoot(root)
	return i
}

// Name returns the backend's name (bucket, database, directory...).
func (i *Info) Name() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.name
}

// SetName sets the backend name.
func (i *Info) SetName(name string) *Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.name = name
	return i
}

// NativeCapability returns what the backend itself supports.
func (i *Info) NativeCapability() Capability {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.nativeCapability
}

// SetNativeCapability sets the native capability. The full capability is
// reset to the same value; layers that extend capability adjust it afterwards.
func (i *Info) SetNativeCapability(capability Capability) *Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nativeCapability = capability
	i.fullCapability = capability
	return i
}

// FullCapability returns the capability exposed to callers.
func (i *Info) FullCapability() Capability {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.fullCapability
}

// UpdateFullCapability lets a layer extend the exposed capability.
func (i *Info) UpdateFullCapability(fn func(Capability) Capability) *Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fullCapability = fn(i.fullCapability)
	return i
}

// HTTPClient returns the current HTTP client. Callers should fetch it once
// per request rather than caching it.
func (i *Info) HTTPClient() *HTTPClient {
	return i.httpClient.Load()
}

// UpdateHTTPClient atomically replaces the HTTP client.
//
// fn receives the current client and returns the replacement. Concurrent
// updates are serialized by compare-and-swap so no update is lost.
func (i *Info) UpdateHTTPClient(fn func(*HTTPClient) *HTTPClient) {
	for {
		current := i.httpClient.Load()
		next := fn(current)
		if next == nil {
			next = NewHTTPClient()
		}
		if i.httpClient.CompareAndSwap(current, next) {
			return
		}
	}
}
