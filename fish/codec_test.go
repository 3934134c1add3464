package fish

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECBRoundTrip(t *testing.T) {
	key := []byte("secretkey")
	plaintext := "Hello, IRC"

	out, err := Encrypt(plaintext, key, ModeECB)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "+OK "))

	got, err := Decrypt(out, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCBCNativeRoundTrip(t *testing.T) {
	key := []byte("secretkey")
	plaintext := "Hello, IRC"

	out1, err := Encrypt(plaintext, key, ModeCBC)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out1, "*OK "))

	got, err := Decrypt(out1, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	out2, err := Encrypt(plaintext, key, ModeCBC)
	require.NoError(t, err)
	assert.NotEqual(t, out1, out2, "IV randomness should yield different ciphertexts")
}

func TestCBCMircryptionRoundTrip(t *testing.T) {
	key := []byte("secretkey")
	plaintext := "Mircryption compatible message"

	out, err := Encrypt(plaintext, key, ModeCBCMircryption)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "+OK *"))

	got, err := Decrypt(out, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestIsEncrypted(t *testing.T) {
	assert.True(t, IsEncrypted("+OK abc"))
	assert.True(t, IsEncrypted("*OK abc"))
	assert.True(t, IsEncrypted("mcps abc"))
	assert.False(t, IsEncrypted("hello world"))
}

func TestDecryptUndecryptable(t *testing.T) {
	key := []byte("secretkey")
	_, err := Decrypt("+OK not-valid-base64!!", key)
	assert.ErrorIs(t, err, ErrUndecryptable)
}

func TestFishBase64Bijection(t *testing.T) {
	data := []byte("01234567abcdefgh")
	enc, err := EncodeFishBase64(data)
	require.NoError(t, err)
	assert.Len(t, enc, (len(data)/8)*12)

	dec, err := DecodeFishBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestBlowfishECBIsInverse(t *testing.T) {
	key := []byte("anotherkey")
	plaintext := []byte("exactly8")

	ct, err := ecbEncrypt(key, plaintext)
	require.NoError(t, err)

	pt, err := ecbDecrypt(key, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestBlowfishCBCIsInverse(t *testing.T) {
	key := []byte("anotherkey")
	iv := []byte("01234567")
	plaintext := []byte("this is a longer plaintext spanning blocks")

	ct, err := cbcEncrypt(key, iv, plaintext)
	require.NoError(t, err)

	pt, err := cbcDecrypt(key, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}
