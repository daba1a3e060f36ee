package pkce

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifier(t *testing.T) {
	for _, length := range []int{1, 2, 43, 64, 127, 128, 500} {
		v, err := GenerateVerifier(length)
		require.NoError(t, err)
		assert.Len(t, v, length)
		for _, c := range v {
			assert.True(t, strings.ContainsRune(alphabet, c), "unexpected character %q", c)
		}
	}

	t.Run("rejects non-positive length", func(t *testing.T) {
		_, err := GenerateVerifier(0)
		assert.Error(t, err)
		_, err = GenerateVerifier(-5)
		assert.Error(t, err)
	})

	t.Run("fresh value each call", func(t *testing.T) {
		a, err := GenerateVerifier(VerifierLength)
		require.NoError(t, err)
		b, err := GenerateVerifier(VerifierLength)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("covers the whole alphabet", func(t *testing.T) {
		v, err := GenerateVerifier(20000)
		require.NoError(t, err)
		for _, c := range alphabet {
			assert.True(t, strings.ContainsRune(v, c), "character %q never drawn", c)
		}
	})
}

func TestDeriveChallenge(t *testing.T) {
	t.Run("known answer", func(t *testing.T) {
		assert.Equal(t, "bKE9UspwyIPg8LsQHkJaiehiTeUdstI5JZOvaoQRgJA", DeriveChallenge("abc123"))
	})

	t.Run("RFC 7636 Appendix B test vector", func(t *testing.T) {
		verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", DeriveChallenge(verifier))
	})

	t.Run("deterministic and url safe", func(t *testing.T) {
		v, err := GenerateVerifier(VerifierLength)
		require.NoError(t, err)

		first := DeriveChallenge(v)
		assert.Equal(t, first, DeriveChallenge(v))
		assert.NotContains(t, first, "+")
		assert.NotContains(t, first, "/")
		assert.NotContains(t, first, "=")
		assert.Len(t, first, 43)

		decoded, err := base64.RawURLEncoding.DecodeString(first)
		require.NoError(t, err)
		assert.Len(t, decoded, 32)
	})
}

func TestNewPair(t *testing.T) {
	p, err := NewPair(VerifierLength)
	require.NoError(t, err)
	assert.Len(t, p.Verifier, VerifierLength)
	assert.Equal(t, MethodS256, p.Method)
	assert.Equal(t, DeriveChallenge(p.Verifier), p.Challenge)
	assert.True(t, Verify(p.Verifier, p.Challenge))
}

func TestVerify(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := DeriveChallenge(verifier)

	assert.True(t, Verify(verifier, challenge))
	assert.False(t, Verify("wrong-verifier", challenge))
	assert.False(t, Verify("", challenge))
	assert.False(t, Verify(verifier, ""))
}
