// Package events is the registry's durable event log. Every committed
// mutation appends exactly one event; consumers replay the log by sequence
// cursor, and delivery order always matches commit order.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a registry mutation.
type Type string

const (
	TypeDocumentRegistered Type = "document_registered"
	TypeStatusUpdated      Type = "status_updated"
	TypeVerifierAdded      Type = "verifier_added"
	TypeVerifierRemoved    Type = "verifier_removed"
	TypeOwnerTransferred   Type = "owner_transferred"
)

// Event is one entry in the log. Seq is assigned by the store at append time
// and is strictly increasing in commit order. Identity-shaped fields are kept
// as strings so the log stays decodable even if value formats evolve.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Actor is the identity that caused the mutation.
	Actor string `json:"actor,omitempty"`

	// Fingerprint is set for document events.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Owner, SubmittedAt and ExpiresAt are set for document_registered.
	Owner       string     `json:"owner,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	// Decision and Reason are set for status_updated.
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// Subject and Label are set for verifier and owner events.
	Subject string `json:"subject,omitempty"`
	Label   string `json:"label,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Store persists the log. Append assigns ID (if unset), Seq and Timestamp
// (if zero) and returns the stored event.
type Store interface {
	Append(ctx context.Context, event Event) (Event, error)
	// ListAfter returns up to limit events with Seq > after, in Seq order.
	ListAfter(ctx context.Context, after uint64, limit int) ([]Event, error)
}
