package registry

import (
	"time"

	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/store"
)

// Service is a named operator: one configured backend with its layer stack.
//
// Several services can point at the same underlying storage with different
// roots or layers.
type Service struct {
	Name     string
	Operator *operator.Operator

	// Backend is the undecorated accessor, kept to release its resources.
	Backend store.Accessor

	RegisteredAt time.Time
}

// Scheme returns the backend scheme of the service.
func (s *Service) Scheme() store.Scheme {
	return s.Operator.Info().Scheme()
}

// Root returns the root the service resolves paths under.
func (s *Service) Root() string {
	return s.Operator.Info().Root()
}
