package fish

import "errors"

var (
	// ErrBlockAlignment is returned when ciphertext is not a multiple of
	// the Blowfish block size (8 bytes).
	ErrBlockAlignment = errors.New("fish: ciphertext is not block-aligned")
	// ErrBadIV is returned when an initialization vector is not exactly
	// 8 bytes.
	ErrBadIV = errors.New("fish: initialization vector must be 8 bytes")
	// ErrBase64Length is returned when FiSH-Base64 input is not a
	// multiple of 12 characters.
	ErrBase64Length = errors.New("fish: base64 input must be a multiple of 12 characters")
	// ErrUndecryptable is returned for any message that looks encrypted
	// but could not be decrypted (bad base64, alignment, or invalid
	// UTF-8 plaintext). Per spec this is a soft failure: the caller
	// should surface the message with its original ciphertext and an
	// encrypted flag rather than abort.
	ErrUndecryptable = errors.New("fish: message is undecryptable")
	// ErrNotEncrypted is returned by Decrypt when the message does not
	// carry a recognized FiSH prefix.
	ErrNotEncrypted = errors.New("fish: message is not fish-encrypted")
)
