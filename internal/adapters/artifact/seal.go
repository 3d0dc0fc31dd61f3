// Package artifact exports a sealed copy of the contribution and reports
// its checksums.
package artifact

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Sealed layout: magic | salt | nonce | secretbox(plaintext).
const (
	magic     = "LPS1"
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

func deriveKey(passphrase string, salt []byte) (*[keySize]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, err
	}
	var key [keySize]byte
	copy(key[:], k)
	return &key, nil
}

// Seal encrypts plaintext with a key derived from passphrase.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrSeal)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrSeal, err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrSeal, err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %w", ErrSeal, err)
	}

	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

// Open reverses Seal.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	header := len(magic) + saltSize + nonceSize
	if len(sealed) < header+secretbox.Overhead || string(sealed[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: not a sealed contribution", ErrOpen)
	}
	salt := sealed[len(magic) : len(magic)+saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[len(magic)+saltSize:header])

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %w", ErrOpen, err)
	}
	plain, ok := secretbox.Open(nil, sealed[header:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: wrong key or corrupted data", ErrOpen)
	}
	return plain, nil
}

// Checksum returns the hex SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
