package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"attestry/internal/ledger/models"
	"attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
	txcontext "attestry/pkg/platform/tx"
)

// Postgres persists records in a single table. Registration order is the
// bigserial seq; the unique primary key on fingerprint turns duplicate
// registration into sentinel.ErrConflict. Counts are computed by aggregate
// query, so they cannot drift from the per-record status.
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

// EnsureSchema creates the documents table. Idempotent; called at startup.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			fingerprint      TEXT PRIMARY KEY,
			seq              BIGSERIAL,
			owner_identity   TEXT NOT NULL,
			metadata         TEXT NOT NULL,
			status           TEXT NOT NULL,
			submitted_at     TIMESTAMPTZ NOT NULL,
			expires_at       TIMESTAMPTZ NOT NULL,
			decided_by       TEXT,
			rejection_reason TEXT
		);
		CREATE INDEX IF NOT EXISTS documents_owner_idx ON documents (owner_identity, seq)
	`)
	if err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, doc *models.Document) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (
			fingerprint, owner_identity, metadata, status,
			submitted_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		doc.Fingerprint.String(),
		doc.Owner.String(),
		doc.Metadata,
		string(doc.Status),
		doc.SubmittedAt,
		doc.ExpiresAt,
	)
	if err != nil {
		if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, fp domain.Fingerprint) (*models.Document, error) {
	return s.find(ctx, s.execer(ctx), fp, false)
}

// Execute validates and mutates one record while holding its row lock, so a
// racing adjudication blocks until the first one commits and then fails
// validation.
func (s *Postgres) Execute(
	ctx context.Context,
	fp domain.Fingerprint,
	validate func(*models.Document) error,
	apply func(*models.Document),
) (*models.Document, error) {
	run := func(txCtx context.Context) (*models.Document, error) {
		doc, err := s.find(txCtx, s.execer(txCtx), fp, true)
		if err != nil {
			return nil, err
		}
		if err := validate(doc); err != nil {
			return nil, err
		}
		apply(doc)

		var decidedBy, reason any
		if !doc.DecidedBy.IsZero() {
			decidedBy = doc.DecidedBy.String()
		}
		if doc.RejectionReason != "" {
			reason = doc.RejectionReason
		}
		_, err = s.execer(txCtx).ExecContext(txCtx, `
			UPDATE documents
			SET status = $2, decided_by = $3, rejection_reason = $4
			WHERE fingerprint = $1
		`, fp.String(), string(doc.Status), decidedBy, reason)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		return doc, nil
	}

	if _, ok := txcontext.From(ctx); ok {
		return run(ctx)
	}
	var out *models.Document
	err := txcontext.SQLRunner{DB: s.db}.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := run(txCtx)
		if err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return s.listFingerprints(ctx, `
		SELECT fingerprint FROM documents WHERE owner_identity = $1 ORDER BY seq
	`, owner.String())
}

func (s *Postgres) ListAll(ctx context.Context) ([]domain.Fingerprint, error) {
	return s.listFingerprints(ctx, `SELECT fingerprint FROM documents ORDER BY seq`)
}

func (s *Postgres) Counts(ctx context.Context) (models.Counts, error) {
	var c models.Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'verified'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*)
		FROM documents
	`).Scan(&c.Pending, &c.Verified, &c.Rejected, &c.Total)
	if err != nil {
		return models.Counts{}, fmt.Errorf("count documents: %w", err)
	}
	return c, nil
}

func (s *Postgres) CountExpiredPending(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE status = 'pending' AND expires_at < $1
	`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired pending: %w", err)
	}
	return n, nil
}

func (s *Postgres) listFingerprints(ctx context.Context, query string, args ...any) ([]domain.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer rows.Close()

	var out []domain.Fingerprint
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp, err := domain.ParseFingerprint(raw)
		if err != nil {
			return nil, fmt.Errorf("stored fingerprint is malformed: %w", err)
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return out, nil
}

func (s *Postgres) find(ctx context.Context, exec dbExecutor, fp domain.Fingerprint, forUpdate bool) (*models.Document, error) {
	query := `
		SELECT fingerprint, owner_identity, metadata, status,
			   submitted_at, expires_at, decided_by, rejection_reason
		FROM documents WHERE fingerprint = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		rawFP, rawOwner, status string
		decidedBy, reason       sql.NullString
		doc                     models.Document
	)
	err := exec.QueryRowContext(ctx, query, fp.String()).Scan(
		&rawFP, &rawOwner, &doc.Metadata, &status,
		&doc.SubmittedAt, &doc.ExpiresAt, &decidedBy, &reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	doc.Status = models.Status(status)
	if doc.Fingerprint, err = domain.ParseFingerprint(rawFP); err != nil {
		return nil, fmt.Errorf("stored fingerprint is malformed: %w", err)
	}
	if doc.Owner, err = domain.ParseIdentity(rawOwner); err != nil {
		return nil, fmt.Errorf("stored owner is malformed: %w", err)
	}
	if decidedBy.Valid {
		if doc.DecidedBy, err = domain.ParseIdentity(decidedBy.String); err != nil {
			return nil, fmt.Errorf("stored decider is malformed: %w", err)
		}
	}
	if reason.Valid {
		doc.RejectionReason = reason.String
	}
	return &doc, nil
}
