// Package store persists the fingerprint→record map.
package store

import (
	"context"
	"sync"
	"time"

	"attestry/internal/ledger/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// InMemory keeps records in a map plus an append-order index, so ListByOwner
// and ListAll return registration order without sorting. Counters are
// maintained incrementally under the same lock as the records they describe.
type InMemory struct {
	mu     sync.RWMutex
	docs   map[domain.Fingerprint]*models.Document
	order  []domain.Fingerprint
	counts models.Counts
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[domain.Fingerprint]*models.Document)}
}

// Create inserts a new record. Returns sentinel.ErrConflict if the
// fingerprint is already present; the existing record is untouched.
func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.Fingerprint]; ok {
		return sentinel.ErrConflict
	}
	copied := *doc
	s.docs[doc.Fingerprint] = &copied
	s.order = append(s.order, doc.Fingerprint)
	s.counts.Pending++
	s.counts.Total++
	return nil
}

func (s *InMemory) Find(_ context.Context, fp domain.Fingerprint) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.docs[fp]; ok {
		copied := *doc
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

// Execute runs validate-then-apply on one record while holding the lock.
// This is the single critical section that makes adjudication a true
// check-then-set: two racing adjudications cannot both observe Pending.
func (s *InMemory) Execute(
	_ context.Context,
	fp domain.Fingerprint,
	validate func(*models.Document) error,
	apply func(*models.Document),
) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	before := doc.Status
	apply(doc)
	s.recount(before, doc.Status)
	copied := *doc
	return &copied, nil
}

func (s *InMemory) recount(before, after models.Status) {
	if before == after {
		return
	}
	switch before {
	case models.StatusPending:
		s.counts.Pending--
	case models.StatusVerified:
		s.counts.Verified--
	case models.StatusRejected:
		s.counts.Rejected--
	}
	switch after {
	case models.StatusPending:
		s.counts.Pending++
	case models.StatusVerified:
		s.counts.Verified++
	case models.StatusRejected:
		s.counts.Rejected++
	}
}

// ListByOwner returns the owner's fingerprints in registration order.
func (s *InMemory) ListByOwner(_ context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Fingerprint
	for _, fp := range s.order {
		if s.docs[fp].Owner == owner {
			out = append(out, fp)
		}
	}
	return out, nil
}

// ListAll returns every fingerprint in registration order.
func (s *InMemory) ListAll(_ context.Context) ([]domain.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Fingerprint{}, s.order...), nil
}

func (s *InMemory) Counts(_ context.Context) (models.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts, nil
}

// CountExpiredPending counts Pending records past their validity window at
// the given instant. Derived, never stored.
func (s *InMemory) CountExpiredPending(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, doc := range s.docs {
		if doc.Status == models.StatusPending && now.After(doc.ExpiresAt) {
			n++
		}
	}
	return n, nil
}
