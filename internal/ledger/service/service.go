// Package service implements the document ledger: open registration,
// one-shot adjudication gated by the access controller, and the pure read
// queries. Every mutating operation is all-or-nothing: the record change and
// its event commit together or not at all.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DocumentStore,AccessChecker,EventPublisher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ledgermetrics "attestry/internal/ledger/metrics"
	"attestry/internal/ledger/models"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/events"
	"attestry/pkg/platform/sentinel"
	"attestry/pkg/platform/tx"
	"attestry/pkg/requestcontext"
)

// DocumentStore persists the fingerprint→record map. Execute must provide a
// critical section per fingerprint: validate and apply run with no other
// writer able to interleave.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Find(ctx context.Context, fp domain.Fingerprint) (*models.Document, error)
	Execute(ctx context.Context, fp domain.Fingerprint,
		validate func(*models.Document) error,
		apply func(*models.Document)) (*models.Document, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	ListAll(ctx context.Context) ([]domain.Fingerprint, error)
	Counts(ctx context.Context) (models.Counts, error)
	CountExpiredPending(ctx context.Context, now time.Time) (int, error)
}

// DocumentReader serves point reads. Kept separate from DocumentStore so a
// cache can front reads without implementing the write surface.
type DocumentReader interface {
	Find(ctx context.Context, fp domain.Fingerprint) (*models.Document, error)
}

// AccessChecker is the slice of the access controller the ledger consumes.
type AccessChecker interface {
	IsVerifier(ctx context.Context, identity domain.Identity) (bool, error)
}

// EventPublisher appends ledger events to the registry log. Fail-closed: an
// emission error aborts the surrounding mutation.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service orchestrates the ledger.
type Service struct {
	store     DocumentStore
	reader    DocumentReader
	access    AccessChecker
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *ledgermetrics.Metrics
	tx        tx.Runner
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

// WithReader fronts point reads with the given reader (e.g. a redis cache).
func WithReader(reader DocumentReader) Option {
	return func(s *Service) { s.reader = reader }
}

func New(store DocumentStore, access AccessChecker, publisher EventPublisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		reader:    store,
		access:    access,
		publisher: publisher,
		logger:    slog.Default(),
		tx:        tx.NoopRunner{},
		tracer:    otel.Tracer("attestry/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a pending record for the caller. Registration is open:
// any authenticated identity may submit. A duplicate fingerprint fails
// deterministically and leaves the first record unchanged — a retried
// register must surface the duplicate, not silently succeed.
func (s *Service) Register(ctx context.Context, fp domain.Fingerprint, metadata string) (*models.Document, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Register",
		trace.WithAttributes(attribute.String("fingerprint", fp.String())))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	var doc *models.Document
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := models.NewDocument(fp, caller, metadata, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.store.Create(txCtx, d); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeDuplicateFingerprint, "document already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
		}
		doc = d
		submitted, expires := d.SubmittedAt, d.ExpiresAt
		return s.emit(txCtx, events.Event{
			Type:        events.TypeDocumentRegistered,
			Actor:       caller.String(),
			Fingerprint: fp.String(),
			Owner:       caller.String(),
			SubmittedAt: &submitted,
			ExpiresAt:   &expires,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRegistered()
		s.metrics.ObserveRegister(start)
	}
	s.logger.InfoContext(ctx, "document registered",
		"fingerprint", fp.String(),
		"owner", caller.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc, nil
}

// Adjudicate performs the single irreversible transition away from Pending.
// The caller must be an active verifier; the check-then-set runs inside the
// store's critical section so two racing adjudications cannot both win.
// Expiry does not block adjudication: the stored status is authoritative.
func (s *Service) Adjudicate(ctx context.Context, fp domain.Fingerprint, decision models.Status, reason string) (*models.Document, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Adjudicate",
		trace.WithAttributes(
			attribute.String("fingerprint", fp.String()),
			attribute.String("decision", string(decision)),
		))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	switch decision {
	case models.StatusVerified, models.StatusRejected:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidDecision, "decision must be verified or rejected")
	}
	// Blankness is checked on a trimmed view; the reason itself is stored
	// exactly as the verifier submitted it.
	if decision == models.StatusRejected && strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidReason, "rejection requires a reason")
	}

	// Authorization comes first, before the record is even looked up: the
	// access controller gates every state-changing call.
	active, err := s.access.IsVerifier(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check verifier capability")
	}
	if !active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only active verifiers can adjudicate")
	}

	var doc *models.Document
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.store.Execute(txCtx, fp,
			func(d *models.Document) error {
				if err := d.CanAdjudicate(); err != nil {
					return dErrors.New(dErrors.CodeAlreadyDecided, "document status cannot be changed")
				}
				return nil
			},
			func(d *models.Document) {
				d.ApplyDecision(decision, caller, reason)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "document not found")
			}
			return err
		}
		doc = d
		return s.emit(txCtx, events.Event{
			Type:        events.TypeStatusUpdated,
			Actor:       caller.String(),
			Fingerprint: fp.String(),
			Decision:    string(decision),
			Reason:      doc.RejectionReason,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		if decision == models.StatusVerified {
			s.metrics.IncrementVerified()
		} else {
			s.metrics.IncrementRejected()
		}
		s.metrics.ObserveAdjudicate(start)
	}
	s.logger.InfoContext(ctx, "document adjudicated",
		"fingerprint", fp.String(),
		"decision", string(decision),
		"decided_by", caller.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc, nil
}

// GetDocument returns the record. Pure read, callable by anyone.
func (s *Service) GetDocument(ctx context.Context, fp domain.Fingerprint) (*models.Document, error) {
	doc, err := s.reader.Find(ctx, fp)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// ListByOwner returns the owner's fingerprints in registration order. The
// result is stable and restartable: identical until a new registration.
func (s *Service) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	fps, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return fps, nil
}

// ListAll returns every fingerprint in registration order.
func (s *Service) ListAll(ctx context.Context) ([]domain.Fingerprint, error) {
	fps, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return fps, nil
}

// Stats returns the per-status aggregate plus the derived expired-pending
// figure.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
	}
	expired, err := s.store.CountExpiredPending(ctx, requestcontext.Now(ctx))
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count expired documents")
	}
	return models.Stats{Counts: counts, ExpiredPending: expired}, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}
	return nil
}
