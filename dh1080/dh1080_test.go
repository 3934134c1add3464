package dh1080

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedSecretAgreement(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	aliceSecret, err := alice.SharedSecret(bob.Public)
	require.NoError(t, err)
	bobSecret, err := bob.SharedSecret(alice.Public)
	require.NoError(t, err)

	assert.Equal(t, 0, aliceSecret.Cmp(bobSecret), "shared secrets must match")

	_, aliceKey := DeriveKey(aliceSecret)
	_, bobKey := DeriveKey(bobSecret)
	assert.Equal(t, aliceKey, bobKey)
}

func TestByteLengthInvariant(t *testing.T) {
	for i := 0; i < 50; i++ {
		kp, err := Generate()
		require.NoError(t, err)

		assert.Len(t, normalize(kp.Public), KeyLen)

		peer, err := Generate()
		require.NoError(t, err)

		secret, err := kp.SharedSecret(peer.Public)
		require.NoError(t, err)
		assert.Len(t, normalize(secret), KeyLen)
	}
}

func TestPublicKeyWireRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	encoded := EncodePublic(kp.Public)
	decoded, err := DecodePublic(encoded)
	require.NoError(t, err)

	assert.Equal(t, 0, kp.Public.Cmp(decoded))
}

func TestWireDialects(t *testing.T) {
	msg, ok := Parse("DH1080_INIT abc123 CBC")
	require.True(t, ok)
	assert.Equal(t, StageInit, msg.Stage)
	assert.Equal(t, DialectIrssi, msg.Dialect)
	assert.True(t, msg.CBC)
	assert.Equal(t, "abc123", msg.PubKey)

	msg2, ok := Parse("DH1080_FINISH_cbc xyz789")
	require.True(t, ok)
	assert.Equal(t, StageFinish, msg2.Stage)
	assert.Equal(t, DialectMIRC, msg2.Dialect)
	assert.True(t, msg2.CBC)

	_, ok = Parse("not a dh1080 message")
	assert.False(t, ok)

	assert.Equal(t, "DH1080_INIT abc CBC", Format(StageInit, DialectIrssi, true, "abc"))
	assert.Equal(t, "DH1080_FINISH_cbc abc", Format(StageFinish, DialectMIRC, true, "abc"))
}

func TestRejectsOutOfRangePeerKey(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	_, err = kp.SharedSecret(one)
	assert.ErrorIs(t, err, ErrInvalidPeerKey)
}
