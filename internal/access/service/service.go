// Package service implements the access controller: it owns the owner
// capability and the verifier set, and gates every privileged registry
// operation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	accessmetrics "attestry/internal/access/metrics"
	"attestry/internal/access/models"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/events"
	"attestry/pkg/platform/sentinel"
	"attestry/pkg/platform/tx"
	"attestry/pkg/requestcontext"
)

// Store persists the owner capability and the verifier registry.
type Store interface {
	Owner(ctx context.Context) (domain.Identity, error)
	SetOwner(ctx context.Context, owner domain.Identity) error
	UpsertVerifier(ctx context.Context, verifier *models.Verifier) error
	FindVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error)
	Execute(ctx context.Context, identity domain.Identity,
		validate func(*models.Verifier) error,
		apply func(*models.Verifier)) (*models.Verifier, error)
}

// EventPublisher appends role-change events to the registry log. Emission is
// fail-closed: a role change whose event cannot be recorded must not commit.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service orchestrates role management.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *accessmetrics.Metrics
	tx        tx.Runner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *accessmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

func New(store Store, publisher EventPublisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		tx:        tx.NoopRunner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap seeds the owner capability at genesis. The owner is also entered
// into the verifier set so a fresh registry can adjudicate without a separate
// grant. A restart with an existing owner is a no-op: the stored capability
// wins over configuration so a config edit cannot hijack a transferred owner.
func (s *Service) Bootstrap(ctx context.Context, owner domain.Identity) error {
	if owner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "genesis owner must be non-zero")
	}

	if _, err := s.store.Owner(ctx); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load owner")
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SetOwner(txCtx, owner); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set genesis owner")
		}
		v, err := models.NewVerifier(owner, "genesis", requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.store.UpsertVerifier(txCtx, v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed genesis verifier")
		}
		return nil
	})
}

// AddVerifier grants (or reactivates) adjudication capability. Owner-only.
// Re-adding an existing verifier is idempotent apart from the label update.
func (s *Service) AddVerifier(ctx context.Context, identity domain.Identity, label string) (*models.Verifier, error) {
	caller := requestcontext.Caller(ctx)
	if err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)

	var verifier *models.Verifier
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)

		existing, err := s.store.FindVerifier(txCtx, identity)
		switch {
		case err == nil:
			existing.ApplyReactivation(label, now)
			verifier = existing
		case errors.Is(err, sentinel.ErrNotFound):
			verifier, err = models.NewVerifier(identity, label, now)
			if err != nil {
				return err
			}
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verifier")
		}

		if err := s.store.UpsertVerifier(txCtx, verifier); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verifier")
		}
		return s.emit(txCtx, events.Event{
			Type:    events.TypeVerifierAdded,
			Actor:   caller.String(),
			Subject: identity.String(),
			Label:   label,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVerifiersAdded()
	}
	s.logger.InfoContext(ctx, "verifier added",
		"verifier", identity.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return verifier, nil
}

// RemoveVerifier soft-revokes adjudication capability. Owner-only. The entry
// is kept so past decisions stay attributed.
func (s *Service) RemoveVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error) {
	caller := requestcontext.Caller(ctx)
	if err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}

	var verifier *models.Verifier
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		v, err := s.store.Execute(txCtx, identity,
			func(v *models.Verifier) error {
				if err := v.CanDeactivate(); err != nil {
					return dErrors.New(dErrors.CodeConflict, "verifier is already inactive")
				}
				return nil
			},
			func(v *models.Verifier) {
				v.ApplyDeactivation(now)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "verifier not found")
			}
			return err
		}
		verifier = v
		return s.emit(txCtx, events.Event{
			Type:    events.TypeVerifierRemoved,
			Actor:   caller.String(),
			Subject: identity.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVerifiersRemoved()
	}
	s.logger.InfoContext(ctx, "verifier removed",
		"verifier", identity.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return verifier, nil
}

// TransferOwner moves the owner capability. Owner-only. Identity parsing
// already rejects the zero identity, so the registry can never end up with
// zero owners.
func (s *Service) TransferOwner(ctx context.Context, to domain.Identity) error {
	caller := requestcontext.Caller(ctx)
	if err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "new owner must be non-zero")
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SetOwner(txCtx, to); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer owner")
		}
		return s.emit(txCtx, events.Event{
			Type:    events.TypeOwnerTransferred,
			Actor:   caller.String(),
			Subject: to.String(),
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementOwnerTransfers()
	}
	s.logger.InfoContext(ctx, "owner transferred",
		"to", to.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// IsVerifier reports whether identity currently holds active adjudication
// capability. Pure query, callable by anyone.
func (s *Service) IsVerifier(ctx context.Context, identity domain.Identity) (bool, error) {
	v, err := s.store.FindVerifier(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verifier")
	}
	return v.Active, nil
}

// IsOwner reports whether identity holds the owner capability.
func (s *Service) IsOwner(ctx context.Context, identity domain.Identity) (bool, error) {
	owner, err := s.store.Owner(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load owner")
	}
	return owner == identity, nil
}

// GetVerifier returns the registry entry for identity, active or not.
func (s *Service) GetVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error) {
	v, err := s.store.FindVerifier(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "verifier not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verifier")
	}
	return v, nil
}

func (s *Service) requireOwner(ctx context.Context, caller domain.Identity) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}
	ok, err := s.IsOwner(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner can perform this action")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event events.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}
	return nil
}
