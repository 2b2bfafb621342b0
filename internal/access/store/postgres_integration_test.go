//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/access/models"
	"attestry/internal/access/store"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
	"attestry/pkg/testutil/containers"
)

type PostgresAccessSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresAccessSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAccessSuite))
}

func (s *PostgresAccessSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresAccessSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx, "TRUNCATE TABLE registry_owner, verifiers")
	s.Require().NoError(err)
}

func (s *PostgresAccessSuite) TestOwnerSingleton() {
	ctx := context.Background()

	_, err := s.store.Owner(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	first := domain.Identity{0x01}
	second := domain.Identity{0x02}

	s.Require().NoError(s.store.SetOwner(ctx, first))
	got, err := s.store.Owner(ctx)
	s.Require().NoError(err)
	s.Equal(first, got)

	// Transfer replaces, never duplicates.
	s.Require().NoError(s.store.SetOwner(ctx, second))
	got, err = s.store.Owner(ctx)
	s.Require().NoError(err)
	s.Equal(second, got)

	var rows int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM registry_owner").Scan(&rows))
	s.Equal(1, rows)
}

func (s *PostgresAccessSuite) TestVerifierRoundTrip() {
	ctx := context.Background()
	identity := domain.Identity{0x0a}

	v, err := models.NewVerifier(identity, "county clerk", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpsertVerifier(ctx, v))

	found, err := s.store.FindVerifier(ctx, identity)
	s.Require().NoError(err)
	s.Equal("county clerk", found.Label)
	s.True(found.Active)
	s.True(found.AddedAt.Equal(s.now))

	s.Run("execute deactivates under row lock", func() {
		got, err := s.store.Execute(ctx, identity,
			func(v *models.Verifier) error { return v.CanDeactivate() },
			func(v *models.Verifier) { v.ApplyDeactivation(s.now.Add(time.Hour)) },
		)
		s.Require().NoError(err)
		s.False(got.Active)

		persisted, err := s.store.FindVerifier(ctx, identity)
		s.Require().NoError(err)
		s.False(persisted.Active)
	})

	s.Run("upsert reactivates", func() {
		v.ApplyReactivation("new label", s.now.Add(2*time.Hour))
		s.Require().NoError(s.store.UpsertVerifier(ctx, v))

		persisted, err := s.store.FindVerifier(ctx, identity)
		s.Require().NoError(err)
		s.True(persisted.Active)
		s.Equal("new label", persisted.Label)
	})
}
