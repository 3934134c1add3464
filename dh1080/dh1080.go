// Package dh1080 implements the DH1080 Diffie-Hellman key agreement used to
// bootstrap FiSH Blowfish keys over IRC, as popularized by Irssi's fish.pl
// and mIRC's FiSH10.
//
// The 1080-bit Sophie Germain prime, generator, and 135-byte length
// normalization are fixed by the DH1080 convention; see the field notes in
// normalize for why the byte-length invariant is load-bearing.
package dh1080

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// KeyLen is the fixed byte length of the DH1080 prime, and therefore of
// every serialized public key and shared secret derived from it.
const KeyLen = 135

var (
	one = big.NewInt(1)
	gen = big.NewInt(2)

	// prime is the 1080-bit Sophie Germain prime used by DH1080 (p = 2q+1
	// with q also prime). Every implementation on the wire must agree on
	// this constant bit-for-bit for key agreement to interoperate.
	prime = mustPrime(
		"B56020E9D82C7DB717B2C3DD6A1E39C2A05579F90FEDD60F0DEAC6B61F013B1" +
			"37D9F92BF15FBF229C11A6037B20356DF3A35664BC4ED5BBB9F28E05A1E1011" +
			"2B029CEE8BB140953552D720FB7B0025D878FEE1210C26CD0A7A66F4D51CC41" +
			"8D7857C7A36C65F47932436BE0A4E7B981ADFBCEFD07674557D7A0BF4A60541" +
			"A2E3212488648C4917",
	)
)

func mustPrime(hex string) *big.Int {
	p, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("dh1080: failed to parse prime constant")
	}
	return p
}

// Errors returned by this package.
var (
	ErrInvalidPrivate = errors.New("dh1080: generated private key out of range, retry")
	ErrInvalidPublic  = errors.New("dh1080: generated public key out of range, retry")
	ErrInvalidPeerKey = errors.New("dh1080: peer public key out of range")
	ErrWeakSecret     = errors.New("dh1080: derived shared secret is trivial")
	ErrMalformedKey   = errors.New("dh1080: malformed base64 public key")
)

// KeyPair holds a DH1080 private/public key pair. Private is never
// serialized to the wire; only Public is exchanged.
type KeyPair struct {
	Private *big.Int
	Public  *big.Int
}

// Generate produces a new DH1080 key pair, retrying internally (per spec
// §4.3) whenever a draw lands outside the valid range.
func Generate() (*KeyPair, error) {
	for {
		a, err := randInRange()
		if err != nil {
			return nil, err
		}

		pub := new(big.Int).Exp(gen, a, prime)
		if pub.Cmp(one) <= 0 || pub.Cmp(prime) >= 0 {
			continue
		}

		return &KeyPair{Private: a, Public: pub}, nil
	}
}

// randInRange draws KeyLen random bytes as an unsigned big-endian integer,
// rejecting and redrawing until 1 < a < prime.
func randInRange() (*big.Int, error) {
	for {
		buf := make([]byte, KeyLen)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}

		a := new(big.Int).SetBytes(buf)
		if a.Cmp(one) <= 0 || a.Cmp(prime) >= 0 {
			continue
		}

		return a, nil
	}
}

// SharedSecret derives the raw shared secret from our private key and the
// peer's public key, validating the peer key's range and rejecting a
// trivial result.
func (kp *KeyPair) SharedSecret(peerPublic *big.Int) (*big.Int, error) {
	two := big.NewInt(2)
	pMinus1 := new(big.Int).Sub(prime, one)

	if peerPublic.Cmp(two) < 0 || peerPublic.Cmp(pMinus1) > 0 {
		return nil, ErrInvalidPeerKey
	}

	secret := new(big.Int).Exp(peerPublic, kp.Private, prime)
	if secret.Cmp(one) <= 0 {
		return nil, ErrWeakSecret
	}

	return secret, nil
}

// normalize left-pads (or, defensively, left-truncates) b's big-endian
// representation to exactly KeyLen bytes.
//
// This is the byte-length invariant the source documents as a field
// defect: big.Int.Bytes() (like BigInteger.ToByteArray in the original)
// drops leading zero bytes, which silently shortens the serialized value
// unless every DH1080 boundary re-pads to KeyLen. The defensive
// truncation branch is unreachable for well-formed inputs (every value
// taken mod prime already fits in KeyLen bytes) but is retained per the
// source's own flaky-test history.
func normalize(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == KeyLen {
		return b
	}
	if len(b) > KeyLen {
		return b[len(b)-KeyLen:]
	}
	out := make([]byte, KeyLen)
	copy(out[KeyLen-len(b):], b)
	return out
}

// DeriveKey hashes the shared secret with SHA-256 (over its normalized
// 135-byte representation) and returns both the raw 32-byte key and the
// DH1080 wire-encoded string form (standard base64, padding stripped, with
// the DH1080 trailing-'A' convention applied when needed).
func DeriveKey(secret *big.Int) (raw [32]byte, encoded string) {
	normalized := normalize(secret)
	raw = sha256.Sum256(normalized)

	enc := base64.StdEncoding.EncodeToString(raw[:])
	enc = stripPadding(enc)
	if len(enc)%4 == 0 {
		enc += "A"
	}

	return raw, enc
}

func stripPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

// EncodePublic renders a public key for the wire: normalize to 135 bytes,
// then standard base64 with padding stripped and the same trailing-'A'
// convention as DeriveKey.
func EncodePublic(pub *big.Int) string {
	normalized := normalize(pub)
	enc := base64.StdEncoding.EncodeToString(normalized)
	enc = stripPadding(enc)
	if len(enc)%4 == 0 {
		enc += "A"
	}
	return enc
}

// DecodePublic parses a wire-form public key (optionally trailing-'A'
// encoded, per DH1080 convention) back into a big.Int.
func DecodePublic(s string) (*big.Int, error) {
	s = trimTrailingWhitespace(s)

	if len(s)%4 == 1 && s[len(s)-1] == 'A' {
		s = s[:len(s)-1]
	}

	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedKey
	}

	return new(big.Int).SetBytes(raw), nil
}

func trimTrailingWhitespace(s string) string {
	i := len(s)
	for i > 0 && (s[i-1] == ' ' || s[i-1] == '\t' || s[i-1] == '\x01') {
		i--
	}
	j := 0
	for j < i && s[j] == '\x01' {
		j++
	}
	return s[j:i]
}
