// Package fish implements the FiSH message-level encryption scheme used by
// a number of legacy IRC clients (Mircryption, FiSH10, Irssi's fish.pl).
//
// It layers a custom Base64 variant and two cipher modes (ECB and CBC) on
// top of the standard Blowfish block cipher to produce wire-compatible
// ciphertext for "+OK ", "*OK ", and "mcps " prefixed messages.
package fish

import (
	"golang.org/x/crypto/blowfish"
)

const blockSize = 8

// zeroPad pads b with zero bytes up to the next multiple of blockSize.
func zeroPad(b []byte) []byte {
	if rem := len(b) % blockSize; rem != 0 {
		pad := make([]byte, blockSize-rem)
		b = append(b, pad...)
	}
	return b
}

// stripZero removes any trailing zero bytes added by zeroPad.
func stripZero(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

// ecbEncrypt encrypts plaintext with Blowfish in ECB mode, independently
// per 8-byte block, after zero-padding to a block boundary.
func ecbEncrypt(key, plaintext []byte) ([]byte, error) {
	cipher, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := zeroPad(append([]byte(nil), plaintext...))
	out := make([]byte, len(padded))

	for i := 0; i < len(padded); i += blockSize {
		cipher.Encrypt(out[i:i+blockSize], padded[i:i+blockSize])
	}

	return out, nil
}

// ecbDecrypt decrypts ciphertext with Blowfish in ECB mode and strips the
// zero-padding trailer.
func ecbDecrypt(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%blockSize != 0 {
		return nil, ErrBlockAlignment
	}

	cipher, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += blockSize {
		cipher.Decrypt(out[i:i+blockSize], ciphertext[i:i+blockSize])
	}

	return stripZero(out), nil
}

// cbcEncrypt encrypts plaintext with Blowfish in CBC mode using iv as the
// initialization vector. iv must be exactly blockSize bytes.
func cbcEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	if len(iv) != blockSize {
		return nil, ErrBadIV
	}

	cipher, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := zeroPad(append([]byte(nil), plaintext...))
	out := make([]byte, len(padded))

	prev := append([]byte(nil), iv...)
	block := make([]byte, blockSize)

	for i := 0; i < len(padded); i += blockSize {
		for j := 0; j < blockSize; j++ {
			block[j] = padded[i+j] ^ prev[j]
		}
		cipher.Encrypt(out[i:i+blockSize], block)
		prev = out[i : i+blockSize]
	}

	return out, nil
}

// cbcDecrypt decrypts ciphertext with Blowfish in CBC mode using iv as the
// initialization vector, and strips zero-padding.
func cbcDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != blockSize {
		return nil, ErrBadIV
	}
	if len(ciphertext)%blockSize != 0 {
		return nil, ErrBlockAlignment
	}

	cipher, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	prev := append([]byte(nil), iv...)
	decrypted := make([]byte, blockSize)

	for i := 0; i < len(ciphertext); i += blockSize {
		cipher.Decrypt(decrypted, ciphertext[i:i+blockSize])
		for j := 0; j < blockSize; j++ {
			out[i+j] = decrypted[j] ^ prev[j]
		}
		prev = ciphertext[i : i+blockSize]
	}

	return stripZero(out), nil
}
