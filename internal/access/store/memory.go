// Package store persists the owner capability and the verifier registry.
package store

import (
	"context"
	"sync"

	"attestry/internal/access/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// InMemory favors clarity over performance; it backs tests and
// single-process deployments.
type InMemory struct {
	mu        sync.RWMutex
	owner     domain.Identity
	verifiers map[domain.Identity]*models.Verifier
}

func NewInMemory() *InMemory {
	return &InMemory{verifiers: make(map[domain.Identity]*models.Verifier)}
}

func (s *InMemory) Owner(_ context.Context) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owner.IsZero() {
		return domain.Identity{}, sentinel.ErrNotFound
	}
	return s.owner, nil
}

func (s *InMemory) SetOwner(_ context.Context, owner domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	return nil
}

func (s *InMemory) UpsertVerifier(_ context.Context, verifier *models.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *verifier
	s.verifiers[verifier.Identity] = &copied
	return nil
}

func (s *InMemory) FindVerifier(_ context.Context, identity domain.Identity) (*models.Verifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.verifiers[identity]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

// Execute runs validate-then-apply on one verifier entry while holding the
// lock, so no concurrent call can observe or produce a half-applied role
// change.
func (s *InMemory) Execute(
	_ context.Context,
	identity domain.Identity,
	validate func(*models.Verifier) error,
	apply func(*models.Verifier),
) (*models.Verifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifiers[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(v); err != nil {
		return nil, err
	}
	apply(v)
	copied := *v
	return &copied, nil
}
