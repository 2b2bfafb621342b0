package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attestry/pkg/domain-errors"
)

func TestParseFingerprint(t *testing.T) {
	valid := strings.Repeat("ab", FingerprintSize)

	t.Run("accepts bare hex", func(t *testing.T) {
		fp, err := ParseFingerprint(valid)
		require.NoError(t, err)
		assert.Equal(t, "0x"+valid, fp.String())
	})

	t.Run("accepts 0x prefix", func(t *testing.T) {
		fp, err := ParseFingerprint("0x" + valid)
		require.NoError(t, err)
		assert.Equal(t, "0x"+valid, fp.String())
	})

	t.Run("accepts surrounding whitespace", func(t *testing.T) {
		_, err := ParseFingerprint("  0x" + valid + " ")
		assert.NoError(t, err)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseFingerprint(valid[:10])
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFingerprint))
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseFingerprint(strings.Repeat("zz", FingerprintSize))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFingerprint))
	})

	t.Run("rejects zero fingerprint", func(t *testing.T) {
		_, err := ParseFingerprint(strings.Repeat("00", FingerprintSize))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFingerprint))
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseFingerprint("")
		assert.Error(t, err)
	})
}

func TestParseIdentity(t *testing.T) {
	valid := strings.Repeat("1f", IdentitySize)

	t.Run("round trips", func(t *testing.T) {
		id, err := ParseIdentity("0x" + valid)
		require.NoError(t, err)
		assert.Equal(t, "0x"+valid, id.String())
		assert.False(t, id.IsZero())
	})

	t.Run("rejects zero identity", func(t *testing.T) {
		_, err := ParseIdentity(strings.Repeat("00", IdentitySize))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects fingerprint-length input", func(t *testing.T) {
		_, err := ParseIdentity(strings.Repeat("ab", FingerprintSize))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestZeroValuesAreInvalid(t *testing.T) {
	assert.True(t, Fingerprint{}.IsZero())
	assert.True(t, Identity{}.IsZero())
}

func FuzzParseFingerprint(f *testing.F) {
	f.Add(strings.Repeat("ab", FingerprintSize))
	f.Add("0x" + strings.Repeat("01", FingerprintSize))
	f.Add("")
	f.Add("0x")
	f.Add(strings.Repeat("00", FingerprintSize))

	f.Fuzz(func(t *testing.T, s string) {
		fp, err := ParseFingerprint(s)
		if err != nil {
			return
		}
		// Anything accepted must be non-zero and must round trip.
		if fp.IsZero() {
			t.Fatalf("accepted zero fingerprint from %q", s)
		}
		again, err := ParseFingerprint(fp.String())
		if err != nil {
			t.Fatalf("round trip of %q failed: %v", s, err)
		}
		if again != fp {
			t.Fatalf("round trip of %q changed value", s)
		}
	})
}
