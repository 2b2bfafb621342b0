package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/access/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

type AccessStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *AccessStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestAccessStoreSuite(t *testing.T) {
	suite.Run(t, new(AccessStoreSuite))
}

func (s *AccessStoreSuite) newVerifier(b byte) *models.Verifier {
	v, err := models.NewVerifier(domain.Identity{b}, "label", s.now)
	s.Require().NoError(err)
	return v
}

// TestOwner verifies the owner singleton behavior.
func (s *AccessStoreSuite) TestOwner() {
	s.Run("empty store has no owner", func() {
		_, err := s.store.Owner(s.ctx)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("set then get", func() {
		owner := domain.Identity{0x01}
		s.Require().NoError(s.store.SetOwner(s.ctx, owner))

		got, err := s.store.Owner(s.ctx)
		s.Require().NoError(err)
		s.Equal(owner, got)
	})

	s.Run("set replaces", func() {
		next := domain.Identity{0x02}
		s.Require().NoError(s.store.SetOwner(s.ctx, next))

		got, err := s.store.Owner(s.ctx)
		s.Require().NoError(err)
		s.Equal(next, got)
	})
}

// TestVerifierLifecycle verifies upsert, lookup and the Execute critical section.
func (s *AccessStoreSuite) TestVerifierLifecycle() {
	v := s.newVerifier(0x0a)
	s.Require().NoError(s.store.UpsertVerifier(s.ctx, v))

	s.Run("find returns a copy", func() {
		found, err := s.store.FindVerifier(s.ctx, v.Identity)
		s.Require().NoError(err)
		found.Active = false

		again, err := s.store.FindVerifier(s.ctx, v.Identity)
		s.Require().NoError(err)
		s.True(again.Active)
	})

	s.Run("unknown identity", func() {
		_, err := s.store.FindVerifier(s.ctx, domain.Identity{0xff})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("execute applies after validation", func() {
		got, err := s.store.Execute(s.ctx, v.Identity,
			func(v *models.Verifier) error { return v.CanDeactivate() },
			func(v *models.Verifier) { v.ApplyDeactivation(s.now) },
		)
		s.Require().NoError(err)
		s.False(got.Active)
	})

	s.Run("execute surfaces validation failure unapplied", func() {
		_, err := s.store.Execute(s.ctx, v.Identity,
			func(v *models.Verifier) error { return v.CanDeactivate() },
			func(v *models.Verifier) { v.ApplyDeactivation(s.now) },
		)
		s.Require().Error(err)
	})

	s.Run("execute on unknown identity", func() {
		_, err := s.store.Execute(s.ctx, domain.Identity{0xff},
			func(*models.Verifier) error { return nil },
			func(*models.Verifier) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
