package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfc4226Secret is the shared secret from the HOTP specification's
// test vectors (appendix D).
var rfc4226Secret = []byte("12345678901234567890")

var rfc4226Codes = []string{"755224", "287082", "359152", "969429", "338314", "254676"}

func TestGenerateMatchesReferenceVectors(t *testing.T) {
	st := New("Duo: Test", "Duo", rfc4226Secret)

	for i, want := range rfc4226Codes {
		code, next, err := st.Generate()
		require.NoError(t, err)
		assert.Equal(t, want, code, "counter %d", i)
		assert.Equal(t, uint64(i+1), next.Counter())
		st = next
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	st := New("Duo: Test", "Duo", rfc4226Secret)

	first, _, err := st.Generate()
	require.NoError(t, err)
	second, _, err := st.Generate()
	require.NoError(t, err)

	assert.Equal(t, first, second, "same state must yield the same passcode")
}

func TestURIRoundTripPreservesCounter(t *testing.T) {
	st := New("Duo: Test", "Duo", rfc4226Secret)

	var err error
	for i := 0; i < 3; i++ {
		_, st, err = st.Generate()
		require.NoError(t, err)
	}

	reloaded, err := ParseURI(st.URI())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reloaded.Counter())

	code, _, err := reloaded.Generate()
	require.NoError(t, err)
	assert.Equal(t, rfc4226Codes[3], code)
}

func TestParseURI(t *testing.T) {
	st, err := ParseURI("otpauth://hotp/Duo:%20Test?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ&counter=5")
	require.NoError(t, err)
	assert.True(t, st.Provisioned())
	assert.Equal(t, uint64(5), st.Counter())

	code, _, err := st.Generate()
	require.NoError(t, err)
	assert.Equal(t, rfc4226Codes[5], code)
}

func TestParseURIRejectsTOTP(t *testing.T) {
	_, err := ParseURI("otpauth://totp/Test?secret=GEZDGNBV")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counter-based required")
}

func TestUnprovisionedState(t *testing.T) {
	var st State

	assert.False(t, st.Provisioned())
	assert.Empty(t, st.URI())

	_, _, err := st.Generate()
	assert.ErrorIs(t, err, ErrNotProvisioned)

	_, err = ParseURI("")
	assert.ErrorIs(t, err, ErrNotProvisioned)
}
