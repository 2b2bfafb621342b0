// Package models holds the document ledger domain types and their state
// machine. A record is created once, adjudicated at most once, and never
// destroyed.
package models

import (
	"time"

	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// Status is the stored lifecycle state. Pending is the only non-terminal
// state; Verified and Rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"

	// StatusExpired is never stored. It is the read-side overlay for a
	// Pending record whose validity window has lapsed.
	StatusExpired Status = "expired"
)

// ValidityWindow is the fixed lifetime of a registration.
const ValidityWindow = 365 * 24 * time.Hour

// MaxMetadataBytes bounds the free-form metadata blob so oversized payloads
// cannot bloat storage.
const MaxMetadataBytes = 4096

// Document is one ledger record, keyed by fingerprint. Every field except
// the adjudication outcome is immutable after creation.
type Document struct {
	Fingerprint domain.Fingerprint
	Owner       domain.Identity
	Metadata    string
	Status      Status
	SubmittedAt time.Time
	ExpiresAt   time.Time

	// DecidedBy and RejectionReason are set by the single adjudication.
	DecidedBy       domain.Identity
	RejectionReason string
}

// NewDocument constructs a pending record, validating creation invariants.
func NewDocument(fp domain.Fingerprint, owner domain.Identity, metadata string, now time.Time) (*Document, error) {
	if fp.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be non-zero")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document owner must be non-zero")
	}
	if len(metadata) > MaxMetadataBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata exceeds maximum size")
	}
	return &Document{
		Fingerprint: fp,
		Owner:       owner,
		Metadata:    metadata,
		Status:      StatusPending,
		SubmittedAt: now,
		ExpiresAt:   now.Add(ValidityWindow),
	}, nil
}

// ParseDecision validates an adjudication decision. Only the two terminal
// states are decisions.
func ParseDecision(s string) (Status, error) {
	switch Status(s) {
	case StatusVerified:
		return StatusVerified, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidDecision, "decision must be verified or rejected")
	}
}

// CanAdjudicate reports whether the record may still transition. Expiry does
// not block adjudication: the stored status is authoritative for writes.
func (d *Document) CanAdjudicate() error {
	if d.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "document status cannot be changed")
	}
	return nil
}

// ApplyDecision performs the single irreversible transition.
func (d *Document) ApplyDecision(decision Status, decidedBy domain.Identity, reason string) {
	d.Status = decision
	d.DecidedBy = decidedBy
	if decision == StatusRejected {
		d.RejectionReason = reason
	}
}

// EffectiveStatus is the status as perceived by readers: a Pending record
// past its validity window presents as Expired. The stored status is
// untouched.
func (d *Document) EffectiveStatus(now time.Time) Status {
	if d.Status == StatusPending && now.After(d.ExpiresAt) {
		return StatusExpired
	}
	return d.Status
}

// Counts is the per-status aggregate. The store keeps it consistent with the
// authoritative per-record status on every mutation.
type Counts struct {
	Pending  int
	Verified int
	Rejected int
	Total    int
}

// Stats is the read-side aggregate, including the derived expired figure.
type Stats struct {
	Counts
	ExpiredPending int
}
