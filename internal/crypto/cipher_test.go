package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	c, err := NewFieldCipher("unit-test-passphrase")
	require.NoError(t, err)
	return c
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, v := range []float64{0, 1.5, -42.125, 1000.0001, -0.0000001} {
		payload, err := c.EncryptFloat(v)
		require.NoError(t, err)
		assert.Equal(t, v, c.DecryptFloat(payload))
	}
}

func TestFieldCipher_CiphertextNotPlaintext(t *testing.T) {
	c := newTestCipher(t)

	payload, err := c.EncryptFloat(123.45)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "123.45")
}

func TestFieldCipher_MalformedPayloadYieldsZero(t *testing.T) {
	c := newTestCipher(t)

	assert.Equal(t, 0.0, c.DecryptFloat(nil))
	assert.Equal(t, 0.0, c.DecryptFloat([]byte{0x01}))
	assert.Equal(t, 0.0, c.DecryptFloat([]byte("definitely not a ciphertext")))

	// Tampered ciphertext must fail authentication, not return garbage.
	payload, err := c.EncryptFloat(-7.5)
	require.NoError(t, err)
	payload[len(payload)-1] ^= 0xFF
	assert.Equal(t, 0.0, c.DecryptFloat(payload))
}

func TestFieldCipher_WrongKeyYieldsZero(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewFieldCipher("a different passphrase")
	require.NoError(t, err)

	payload, err := c.EncryptFloat(99.9)
	require.NoError(t, err)
	assert.Equal(t, 0.0, other.DecryptFloat(payload))
}

func TestNewFieldCipher_EmptyPassphrase(t *testing.T) {
	_, err := NewFieldCipher("")
	assert.Error(t, err)
}
