//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/pkg/platform/events"
	eventpostgres "attestry/pkg/platform/events/store/postgres"
	"attestry/pkg/platform/tx"
	"attestry/pkg/testutil/containers"
)

type EventStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *eventpostgres.Store
}

func TestEventStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EventStoreSuite))
}

func (s *EventStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = eventpostgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *EventStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(context.Background(), "TRUNCATE TABLE registry_events RESTART IDENTITY")
	s.Require().NoError(err)
}

func (s *EventStoreSuite) append(typ events.Type) events.Event {
	stored, err := s.store.Append(context.Background(), events.Event{Type: typ})
	s.Require().NoError(err)
	return stored
}

// TestMarkPublishedAcksOnlyThatEvent verifies the ack matches a single seq:
// acking one produced event must never sweep an unproduced neighbor along.
func (s *EventStoreSuite) TestMarkPublishedAcksOnlyThatEvent() {
	ctx := context.Background()

	s.append(events.TypeDocumentRegistered)
	second := s.append(events.TypeStatusUpdated)
	s.append(events.TypeVerifierAdded)

	s.Require().NoError(s.store.MarkPublished(ctx, second.Seq))

	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(uint64(1), pending[0].Seq)
	s.Equal(uint64(3), pending[1].Seq)

	s.Run("ack is idempotent", func() {
		s.Require().NoError(s.store.MarkPublished(ctx, second.Seq))
		pending, err := s.store.ListUnpublished(ctx, 10)
		s.Require().NoError(err)
		s.Len(pending, 2)
	})
}

// TestAppendSeqFollowsCommitOrder verifies the outbox lock: a transaction
// that appended first but is still open blocks a second appender, so the
// later-committing transaction always carries the larger seq and the relay
// never observes a gap in front of an uncommitted row.
func (s *EventStoreSuite) TestAppendSeqFollowsCommitOrder() {
	ctx := context.Background()
	runner := tx.SQLRunner{DB: s.postgres.DB}

	inTxA := make(chan struct{})
	releaseA := make(chan struct{})
	var seqA, seqB uint64

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := runner.RunInTx(ctx, func(txCtx context.Context) error {
			stored, err := s.store.Append(txCtx, events.Event{Type: events.TypeDocumentRegistered})
			if err != nil {
				return err
			}
			seqA = stored.Seq
			close(inTxA)
			<-releaseA
			return nil
		})
		s.Require().NoError(err)
	}()
	go func() {
		defer wg.Done()
		<-inTxA
		err := runner.RunInTx(ctx, func(txCtx context.Context) error {
			stored, err := s.store.Append(txCtx, events.Event{Type: events.TypeStatusUpdated})
			if err != nil {
				return err
			}
			seqB = stored.Seq
			return nil
		})
		s.Require().NoError(err)
	}()

	// B must be parked on the outbox lock while A's transaction is open:
	// nothing is committed yet, so the relay sees an empty outbox.
	time.Sleep(200 * time.Millisecond)
	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	close(releaseA)
	wg.Wait()

	s.Less(seqA, seqB)

	pending, err = s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(seqA, pending[0].Seq)
	s.Equal(seqB, pending[1].Seq)
}

// TestRolledBackAppendLeavesNoRow verifies an aborted mutation leaves neither
// its event nor a hole the relay could misread as pending work.
func (s *EventStoreSuite) TestRolledBackAppendLeavesNoRow() {
	ctx := context.Background()
	runner := tx.SQLRunner{DB: s.postgres.DB}

	boom := errors.New("mutation failed")
	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Append(txCtx, events.Event{Type: events.TypeDocumentRegistered}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	stored := s.append(events.TypeStatusUpdated)
	s.Require().NoError(s.store.MarkPublished(ctx, stored.Seq))

	pending, err = s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
