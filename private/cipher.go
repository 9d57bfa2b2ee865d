package private

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// newCipher builds the AES-256-GCM AEAD every private block is sealed
// under.
func newCipher(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal encrypts plaintext under key with a fresh random nonce,
// returning nonce||ciphertext so the reader needs nothing but the key
// to decrypt (spec.md section 3, "per-block nonce ... stored alongside
// ciphertext").
func seal(key [32]byte, plaintext []byte) ([]byte, error) {
	aead, err := newCipher(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal, splitting the leading nonce off the sealed blob.
func open(key [32]byte, sealed []byte) ([]byte, error) {
	aead, err := newCipher(key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecryptionFailed)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
