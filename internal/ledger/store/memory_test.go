package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/ledger/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

type DocumentStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *DocumentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestDocumentStoreSuite(t *testing.T) {
	suite.Run(t, new(DocumentStoreSuite))
}

func (s *DocumentStoreSuite) newDocument(fp byte, owner domain.Identity) *models.Document {
	doc, err := models.NewDocument(domain.Fingerprint{fp}, owner, "", s.now)
	s.Require().NoError(err)
	return doc
}

// TestUniqueness verifies a fingerprint can be registered exactly once.
func (s *DocumentStoreSuite) TestUniqueness() {
	owner := domain.Identity{0x01}
	other := domain.Identity{0x02}

	doc := s.newDocument(1, owner)
	s.Require().NoError(s.store.Create(s.ctx, doc))

	s.Run("duplicate rejected even from another owner", func() {
		dup := s.newDocument(1, other)
		s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("first record untouched", func() {
		found, err := s.store.Find(s.ctx, doc.Fingerprint)
		s.Require().NoError(err)
		s.Equal(owner, found.Owner)
	})

	s.Run("failed duplicate does not bump counters", func() {
		counts, err := s.store.Counts(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, counts.Total)
		s.Equal(1, counts.Pending)
	})
}

// TestRegistrationOrder verifies listings return insertion order.
func (s *DocumentStoreSuite) TestRegistrationOrder() {
	alice := domain.Identity{0x0a}
	bob := domain.Identity{0x0b}

	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(3, alice)))
	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(1, bob)))
	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(2, alice)))

	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{{3}, {1}, {2}}, all)

	mine, err := s.store.ListByOwner(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{{3}, {2}}, mine)

	none, err := s.store.ListByOwner(s.ctx, domain.Identity{0xff})
	s.Require().NoError(err)
	s.Empty(none)
}

// TestCountersTrackStatus verifies pending+verified+rejected always equals total.
func (s *DocumentStoreSuite) TestCountersTrackStatus() {
	owner := domain.Identity{0x01}
	judge := domain.Identity{0x02}

	for i := byte(1); i <= 3; i++ {
		s.Require().NoError(s.store.Create(s.ctx, s.newDocument(i, owner)))
	}

	decide := func(fp byte, decision models.Status) {
		_, err := s.store.Execute(s.ctx, domain.Fingerprint{fp},
			func(d *models.Document) error { return d.CanAdjudicate() },
			func(d *models.Document) { d.ApplyDecision(decision, judge, "r") },
		)
		s.Require().NoError(err)
	}
	decide(1, models.StatusVerified)
	decide(2, models.StatusRejected)

	counts, err := s.store.Counts(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Counts{Pending: 1, Verified: 1, Rejected: 1, Total: 3}, counts)
	s.Equal(counts.Total, counts.Pending+counts.Verified+counts.Rejected)
}

// TestExecute verifies the critical section semantics of adjudication.
func (s *DocumentStoreSuite) TestExecute() {
	owner := domain.Identity{0x01}
	judge := domain.Identity{0x02}

	s.Run("unknown fingerprint", func() {
		_, err := s.store.Execute(s.ctx, domain.Fingerprint{9},
			func(*models.Document) error { return nil },
			func(*models.Document) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("validation failure leaves record and counters alone", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newDocument(1, owner)))

		_, err := s.store.Execute(s.ctx, domain.Fingerprint{1},
			func(*models.Document) error { return sentinel.ErrInvalidState },
			func(d *models.Document) { d.ApplyDecision(models.StatusVerified, judge, "") },
		)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.Find(s.ctx, domain.Fingerprint{1})
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("racing adjudications produce exactly one winner", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newDocument(2, owner)))

		const racers = 16
		var wg sync.WaitGroup
		wins := make(chan struct{}, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, domain.Fingerprint{2},
					func(d *models.Document) error { return d.CanAdjudicate() },
					func(d *models.Document) { d.ApplyDecision(models.StatusVerified, judge, "") },
				)
				if err == nil {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)
		s.Len(wins, 1)
	})
}

// TestCountExpiredPending verifies the derived expired figure.
func (s *DocumentStoreSuite) TestCountExpiredPending() {
	owner := domain.Identity{0x01}
	judge := domain.Identity{0x02}

	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(1, owner)))
	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(2, owner)))
	_, err := s.store.Execute(s.ctx, domain.Fingerprint{2},
		func(d *models.Document) error { return d.CanAdjudicate() },
		func(d *models.Document) { d.ApplyDecision(models.StatusVerified, judge, "") },
	)
	s.Require().NoError(err)

	n, err := s.store.CountExpiredPending(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(0, n)

	// Past the window only the still-pending record counts.
	later := s.now.Add(models.ValidityWindow + time.Hour)
	n, err = s.store.CountExpiredPending(s.ctx, later)
	s.Require().NoError(err)
	s.Equal(1, n)
}

// TestFindReturnsCopies verifies callers cannot mutate stored state.
func (s *DocumentStoreSuite) TestFindReturnsCopies() {
	owner := domain.Identity{0x01}
	s.Require().NoError(s.store.Create(s.ctx, s.newDocument(1, owner)))

	found, err := s.store.Find(s.ctx, domain.Fingerprint{1})
	s.Require().NoError(err)
	found.Status = models.StatusVerified

	again, err := s.store.Find(s.ctx, domain.Fingerprint{1})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, again.Status)
}
