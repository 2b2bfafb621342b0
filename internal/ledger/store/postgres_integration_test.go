//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/ledger/models"
	"attestry/internal/ledger/store"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
	"attestry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(context.Background(), "TRUNCATE TABLE documents")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newDocument(fp byte, owner domain.Identity) *models.Document {
	doc, err := models.NewDocument(domain.Fingerprint{fp}, owner, "metadata", s.now)
	s.Require().NoError(err)
	return doc
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	owner := domain.Identity{0x01}

	doc := s.newDocument(1, owner)
	s.Require().NoError(s.store.Create(ctx, doc))

	found, err := s.store.Find(ctx, doc.Fingerprint)
	s.Require().NoError(err)
	s.Equal(doc.Fingerprint, found.Fingerprint)
	s.Equal(owner, found.Owner)
	s.Equal(models.StatusPending, found.Status)
	s.True(found.SubmittedAt.Equal(s.now))
	s.True(found.ExpiresAt.Equal(s.now.Add(models.ValidityWindow)))

	s.Run("duplicate maps to conflict", func() {
		s.Require().ErrorIs(s.store.Create(ctx, s.newDocument(1, owner)), sentinel.ErrConflict)
	})

	s.Run("unknown fingerprint", func() {
		_, err := s.store.Find(ctx, domain.Fingerprint{0xff})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestExecutePersistsDecision() {
	ctx := context.Background()
	owner := domain.Identity{0x01}
	judge := domain.Identity{0x02}

	s.Require().NoError(s.store.Create(ctx, s.newDocument(1, owner)))

	decided, err := s.store.Execute(ctx, domain.Fingerprint{1},
		func(d *models.Document) error { return d.CanAdjudicate() },
		func(d *models.Document) { d.ApplyDecision(models.StatusRejected, judge, "water damage") },
	)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, decided.Status)

	found, err := s.store.Find(ctx, domain.Fingerprint{1})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, found.Status)
	s.Equal(judge, found.DecidedBy)
	s.Equal("water damage", found.RejectionReason)

	s.Run("second decision fails validation", func() {
		_, err := s.store.Execute(ctx, domain.Fingerprint{1},
			func(d *models.Document) error { return d.CanAdjudicate() },
			func(d *models.Document) { d.ApplyDecision(models.StatusVerified, judge, "") },
		)
		s.Require().Error(err)
	})
}

func (s *PostgresStoreSuite) TestListingsAndCounts() {
	ctx := context.Background()
	alice := domain.Identity{0x0a}
	bob := domain.Identity{0x0b}
	judge := domain.Identity{0x02}

	s.Require().NoError(s.store.Create(ctx, s.newDocument(3, alice)))
	s.Require().NoError(s.store.Create(ctx, s.newDocument(1, bob)))
	s.Require().NoError(s.store.Create(ctx, s.newDocument(2, alice)))

	all, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{{3}, {1}, {2}}, all)

	mine, err := s.store.ListByOwner(ctx, alice)
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{{3}, {2}}, mine)

	_, err = s.store.Execute(ctx, domain.Fingerprint{1},
		func(d *models.Document) error { return d.CanAdjudicate() },
		func(d *models.Document) { d.ApplyDecision(models.StatusVerified, judge, "") },
	)
	s.Require().NoError(err)

	counts, err := s.store.Counts(ctx)
	s.Require().NoError(err)
	s.Equal(models.Counts{Pending: 2, Verified: 1, Rejected: 0, Total: 3}, counts)
	s.Equal(counts.Total, counts.Pending+counts.Verified+counts.Rejected)

	expired, err := s.store.CountExpiredPending(ctx, s.now.Add(models.ValidityWindow+time.Hour))
	s.Require().NoError(err)
	s.Equal(2, expired)
}
