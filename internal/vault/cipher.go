// Package vault provides the cryptographic primitives used by the vault:
// the positional additive stream cipher that protects stored passwords and
// the Argon2id helpers behind the hardened master passphrase verifier.
package vault

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidKey is returned when an empty or missing key is supplied.
var ErrInvalidKey = errors.New("invalid key: key must not be empty")

// Encrypt applies the additive keystream to plaintext. For position i the
// output byte is (plaintext[i] + key[i mod len(key)]) mod 256. The output has
// the same length as the input and the input is never modified.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}

	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b + key[i%len(key)]
	}
	return out, nil
}

// Decrypt reverses Encrypt: (ciphertext[i] - key[i mod len(key)] + 256) mod 256.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}

	out := make([]byte, len(ciphertext))
	for i, b := range ciphertext {
		out[i] = b - key[i%len(key)]
	}
	return out, nil
}

// Reencrypt decrypts ciphertext with oldKey and encrypts the result with
// newKey. The intermediate plaintext is zeroized before returning.
func Reencrypt(ciphertext, oldKey, newKey []byte) ([]byte, error) {
	if len(newKey) == 0 {
		return nil, ErrInvalidKey
	}

	plaintext, err := Decrypt(ciphertext, oldKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(plaintext)

	return Encrypt(plaintext, newKey)
}

// Zeroize securely clears a byte slice
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// SecureCompare performs constant-time comparison of two byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
