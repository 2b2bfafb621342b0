// Package domain holds the typed values shared across the registry: caller
// identities and document fingerprints. Both are parsed exactly once at trust
// boundaries; everything past the boundary works with the typed form.
package domain

import (
	"encoding/hex"
	"strings"

	dErrors "attestry/pkg/domain-errors"
)

// FingerprintSize is the fixed byte length of a content fingerprint
// (a 256-bit content hash).
const FingerprintSize = 32

// IdentitySize is the fixed byte length of a caller identity.
const IdentitySize = 20

// Fingerprint is the content hash of a registered artifact. It is the primary
// key of the ledger and is comparable, so it can be used directly as a map key.
type Fingerprint [FingerprintSize]byte

// Identity is the address-shaped identifier of a caller (submitter, verifier
// or owner). The zero value is invalid everywhere.
type Identity [IdentitySize]byte

// ParseFingerprint parses a hex-encoded fingerprint, with or without a 0x
// prefix. The zero fingerprint is rejected: a document without content cannot
// be registered.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != FingerprintSize*2 {
		return fp, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be 32 hex-encoded bytes")
	}
	if _, err := hex.Decode(fp[:], []byte(raw)); err != nil {
		return fp, dErrors.Wrap(err, dErrors.CodeInvalidFingerprint, "fingerprint is not valid hex")
	}
	if fp.IsZero() {
		return Fingerprint{}, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be non-zero")
	}
	return fp, nil
}

// ParseIdentity parses a hex-encoded identity, with or without a 0x prefix.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != IdentitySize*2 {
		return id, dErrors.New(dErrors.CodeInvalidInput, "identity must be 20 hex-encoded bytes")
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return id, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identity is not valid hex")
	}
	if id.IsZero() {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity must be non-zero")
	}
	return id, nil
}

func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

func (f Fingerprint) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

func (i Identity) IsZero() bool { return i == Identity{} }

func (i Identity) String() string {
	return "0x" + hex.EncodeToString(i[:])
}
