package fish

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Mode selects the cipher mode used to encrypt an outgoing message.
type Mode int

const (
	// ModeCBC is the default: native CBC with a random 8-byte IV
	// prepended to the ciphertext, wire-prefixed with "*OK ".
	ModeCBC Mode = iota
	// ModeECB encrypts independently per-block with no IV, wire-prefixed
	// with "+OK ".
	ModeECB
	// ModeCBCMircryption is CBC with a zero IV and an 8-byte random
	// prefix mixed into the plaintext instead, using standard Base64 and
	// wire-prefixed with "+OK *".
	ModeCBCMircryption
)

const (
	prefixECB         = "+OK "
	prefixCBCNative   = "*OK "
	prefixCBCMircrypt = "+OK *"
	prefixLegacyMCPS  = "mcps "
)

// IsEncrypted reports whether text carries one of the recognized FiSH
// wire prefixes.
func IsEncrypted(text string) bool {
	return strings.HasPrefix(text, prefixCBCNative) ||
		strings.HasPrefix(text, prefixECB) ||
		strings.HasPrefix(text, prefixLegacyMCPS)
}

// Encrypt encrypts plaintext for key using mode. The key's raw bytes
// (with any "cbc:" marker already stripped by the caller/key store) are
// used directly as the Blowfish key.
func Encrypt(plaintext string, key []byte, mode Mode) (string, error) {
	switch mode {
	case ModeECB:
		ct, err := ecbEncrypt(key, []byte(plaintext))
		if err != nil {
			return "", err
		}
		enc, err := EncodeFishBase64(ct)
		if err != nil {
			return "", err
		}
		return prefixECB + enc, nil

	case ModeCBCMircryption:
		prefixBytes := make([]byte, blockSize)
		if _, err := rand.Read(prefixBytes); err != nil {
			return "", err
		}
		payload := append(prefixBytes, []byte(plaintext)...)
		iv := make([]byte, blockSize)
		ct, err := cbcEncrypt(key, iv, payload)
		if err != nil {
			return "", err
		}
		return prefixCBCMircrypt + base64.StdEncoding.EncodeToString(ct), nil

	default: // ModeCBC
		iv := make([]byte, blockSize)
		if _, err := rand.Read(iv); err != nil {
			return "", err
		}
		ct, err := cbcEncrypt(key, iv, []byte(plaintext))
		if err != nil {
			return "", err
		}
		enc, err := EncodeFishBase64(append(append([]byte(nil), iv...), ct...))
		if err != nil {
			return "", err
		}
		return prefixCBCNative + enc, nil
	}
}

// Decrypt decrypts an incoming wire-encoded message with key, selecting
// the wire form from its prefix. Any decryption failure (bad base64,
// misaligned ciphertext, invalid UTF-8 plaintext) is reported as
// ErrUndecryptable so the caller can surface the message with the
// original ciphertext and an encrypted flag, per the soft-failure
// contract.
func Decrypt(text string, key []byte) (string, error) {
	switch {
	case strings.HasPrefix(text, prefixCBCMircrypt):
		raw, err := base64.StdEncoding.DecodeString(text[len(prefixCBCMircrypt):])
		if err != nil {
			return "", ErrUndecryptable
		}
		iv := make([]byte, blockSize)
		pt, err := cbcDecrypt(key, iv, raw)
		if err != nil {
			return "", ErrUndecryptable
		}
		if len(pt) < blockSize {
			return "", ErrUndecryptable
		}
		pt = pt[blockSize:]
		if !utf8.Valid(pt) {
			return "", ErrUndecryptable
		}
		return string(pt), nil

	case strings.HasPrefix(text, prefixCBCNative):
		raw, err := DecodeFishBase64(padFishBase64(text[len(prefixCBCNative):]))
		if err != nil {
			return "", ErrUndecryptable
		}
		if len(raw) < blockSize {
			return "", ErrUndecryptable
		}
		iv, ct := raw[:blockSize], raw[blockSize:]
		pt, err := cbcDecrypt(key, iv, ct)
		if err != nil {
			return "", ErrUndecryptable
		}
		if !utf8.Valid(pt) {
			return "", ErrUndecryptable
		}
		return string(pt), nil

	case strings.HasPrefix(text, prefixECB):
		raw, err := DecodeFishBase64(padFishBase64(text[len(prefixECB):]))
		if err != nil {
			return "", ErrUndecryptable
		}
		pt, err := ecbDecrypt(key, raw)
		if err != nil {
			return "", ErrUndecryptable
		}
		if !utf8.Valid(pt) {
			return "", ErrUndecryptable
		}
		return string(pt), nil

	case strings.HasPrefix(text, prefixLegacyMCPS):
		raw, err := DecodeFishBase64(padFishBase64(text[len(prefixLegacyMCPS):]))
		if err != nil {
			return "", ErrUndecryptable
		}
		pt, err := ecbDecrypt(key, raw)
		if err != nil {
			return "", ErrUndecryptable
		}
		if !utf8.Valid(pt) {
			return "", ErrUndecryptable
		}
		return string(pt), nil
	}

	return "", ErrNotEncrypted
}
