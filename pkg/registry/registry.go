// Package registry keeps the named services built from configuration.
package registry

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
)

// Registry manages named services. It is safe for concurrent use.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.Register("assets", backend, operator.New(backend, layer.NewRetry(layer.RetryConfig{})))
//
//	op, _ := reg.Get("assets")
//	data, _ := op.Read(ctx, "logo.png")
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
	fallback string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]*Service),
	}
}

// Register adds a named service. backend is the undecorated accessor op was
// built on; it is closed by Remove and Close when it implements io.Closer.
//
// Returns an error if a service with the same name already exists.
func (r *Registry) Register(name string, backend store.Accessor, op *operator.Operator) error {
	if op == nil || backend == nil {
		return fmt.Errorf("cannot register nil service")
	}
	if name == "" {
		return fmt.Errorf("cannot register service with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}

	r.services[name] = &Service{
		Name:         name,
		Operator:     op,
		Backend:      backend,
		RegisteredAt: time.Now(),
	}
	return nil
}

// SetDefault selects the service returned by Get("").
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; !exists {
		return fmt.Errorf("service %q not found", name)
	}
	r.fallback = name
	return nil
}

// Default returns the name of the default service, "" when none is set.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// GetService returns the named service. An empty name resolves to the
// default service, or to the only one registered.
func (r *Registry) GetService(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		switch {
		case r.fallback != "":
			name = r.fallback
		case len(r.services) == 1:
			for only := range r.services {
				name = only
			}
		default:
			return nil, fmt.Errorf("no default service: %d services registered", len(r.services))
		}
	}

	svc, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %q not found", name)
	}
	return svc, nil
}

// Get returns the operator of the named service.
func (r *Registry) Get(name string) (*operator.Operator, error) {
	svc, err := r.GetService(name)
	if err != nil {
		return nil, err
	}
	return svc.Operator, nil
}

// Blocking returns the blocking operator of the named service, running on
// the default executor.
func (r *Registry) Blocking(name string) (*operator.BlockingOperator, error) {
	op, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return op.Blocking(), nil
}

// Remove unregisters the named service and closes its backend.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	svc, exists := r.services[name]
	if exists {
		delete(r.services, name)
		if r.fallback == name {
			r.fallback = ""
		}
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("service %q not found", name)
	}
	return closeBackend(svc)
}

// List returns the registered service names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByScheme returns the names of the services backed by scheme, sorted.
func (r *Registry) ListByScheme(scheme store.Scheme) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, svc := range r.services {
		if svc.Scheme() == scheme {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered services.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Exists reports whether a service is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.services[name]
	return exists
}

// Close removes every service and closes their backends. Every backend is
// closed even if some fail; the failures are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	services := r.services
	r.services = make(map[string]*Service)
	r.fallback = ""
	r.mu.Unlock()

	var errs []error
	for _, svc := range services {
		if err := closeBackend(svc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeBackend(svc *Service) error {
	c, ok := svc.Backend.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close service %q: %v", svc.Name, err)
		return fmt.Errorf("close service %q: %w", svc.Name, err)
	}
	logger.Debug("Service %q closed", svc.Name)
	return nil
}
