package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"attestry/internal/access/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
	txcontext "attestry/pkg/platform/tx"
)

// Postgres keeps the owner in a single-row table and verifiers keyed by
// identity. Execute uses SELECT ... FOR UPDATE for the same critical-section
// guarantee the in-memory store gets from its mutex.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if dbTx, ok := txcontext.From(ctx); ok {
		return dbTx
	}
	return s.db
}

// EnsureSchema creates the access tables. Idempotent; called at startup.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_owner (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			identity   TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS verifiers (
			identity   TEXT PRIMARY KEY,
			label      TEXT NOT NULL,
			active     BOOLEAN NOT NULL,
			added_at   TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure access schema: %w", err)
	}
	return nil
}

func (s *Postgres) Owner(ctx context.Context) (domain.Identity, error) {
	var raw string
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT identity FROM registry_owner WHERE singleton`,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("query owner: %w", err)
	}
	owner, err := domain.ParseIdentity(raw)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("stored owner is malformed: %w", err)
	}
	return owner, nil
}

func (s *Postgres) SetOwner(ctx context.Context, owner domain.Identity) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registry_owner (singleton, identity, updated_at)
		VALUES (TRUE, $1, now())
		ON CONFLICT (singleton) DO UPDATE SET identity = $1, updated_at = now()
	`, owner.String())
	if err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertVerifier(ctx context.Context, verifier *models.Verifier) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO verifiers (identity, label, active, added_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE
		SET label = $2, active = $3, updated_at = $5
	`, verifier.Identity.String(), verifier.Label, verifier.Active, verifier.AddedAt, verifier.UpdatedAt)
	if err != nil {
		if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("upsert verifier: %w", err)
	}
	return nil
}

func (s *Postgres) FindVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error) {
	return s.findVerifier(ctx, s.execer(ctx), identity, false)
}

// Execute validates and mutates one verifier row inside a transaction while
// holding its row lock.
func (s *Postgres) Execute(
	ctx context.Context,
	identity domain.Identity,
	validate func(*models.Verifier) error,
	apply func(*models.Verifier),
) (*models.Verifier, error) {
	run := func(txCtx context.Context) (*models.Verifier, error) {
		v, err := s.findVerifier(txCtx, s.execer(txCtx), identity, true)
		if err != nil {
			return nil, err
		}
		if err := validate(v); err != nil {
			return nil, err
		}
		apply(v)
		if err := s.UpsertVerifier(txCtx, v); err != nil {
			return nil, err
		}
		return v, nil
	}

	// Join the caller's transaction when one is present; otherwise open one.
	if _, ok := txcontext.From(ctx); ok {
		return run(ctx)
	}
	var out *models.Verifier
	err := txcontext.SQLRunner{DB: s.db}.RunInTx(ctx, func(txCtx context.Context) error {
		v, err := run(txCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) findVerifier(ctx context.Context, exec dbExecutor, identity domain.Identity, forUpdate bool) (*models.Verifier, error) {
	query := `SELECT identity, label, active, added_at, updated_at FROM verifiers WHERE identity = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		raw string
		v   models.Verifier
	)
	err := exec.QueryRowContext(ctx, query, identity.String()).
		Scan(&raw, &v.Label, &v.Active, &v.AddedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query verifier: %w", err)
	}
	v.Identity, err = domain.ParseIdentity(raw)
	if err != nil {
		return nil, fmt.Errorf("stored verifier identity is malformed: %w", err)
	}
	return &v, nil
}
