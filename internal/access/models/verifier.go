// Package models holds the access-control domain types.
package models

import (
	"time"

	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// Verifier is one entry in the verifier registry. Deactivation is a soft
// revoke: the entry stays for audit, Active flips false, and decisions the
// identity made while active remain attributed to it.
type Verifier struct {
	Identity  domain.Identity
	Label     string
	Active    bool
	AddedAt   time.Time
	UpdatedAt time.Time
}

// NewVerifier constructs an active verifier entry.
func NewVerifier(identity domain.Identity, label string, now time.Time) (*Verifier, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verifier identity must be non-zero")
	}
	return &Verifier{
		Identity:  identity,
		Label:     label,
		Active:    true,
		AddedAt:   now,
		UpdatedAt: now,
	}, nil
}

// CanDeactivate reports whether the entry can be revoked.
func (v *Verifier) CanDeactivate() error {
	if !v.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "verifier is already inactive")
	}
	return nil
}

// ApplyDeactivation flips the entry inactive.
func (v *Verifier) ApplyDeactivation(now time.Time) {
	v.Active = false
	v.UpdatedAt = now
}

// ApplyReactivation re-enables the entry and refreshes its label.
func (v *Verifier) ApplyReactivation(label string, now time.Time) {
	v.Active = true
	v.Label = label
	v.UpdatedAt = now
}
