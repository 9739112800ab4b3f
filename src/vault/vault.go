// Package vault optionally wraps a manifest's serialized bytes behind a
// passphrase before they are written to disk. The manifest format
// itself is untouched, and an unwrapped manifest remains the default.
//
// The construction is Argon2id for key derivation, XChaCha20-Poly1305
// for authenticated encryption, and a magic+version+salt+nonce header,
// applied here to wrapping an arbitrary small plaintext (a manifest's
// JSON bytes) rather than a per-directory vault with online unlock
// state.
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidHeader indicates the sealed data is too short or carries
	// an unrecognized magic.
	ErrInvalidHeader = errors.New("vault: invalid header")

	// ErrUnsupportedVersion indicates a header version this build does
	// not know how to open.
	ErrUnsupportedVersion = errors.New("vault: unsupported version")

	// ErrWrongPassphrase indicates AEAD authentication failed, meaning
	// either the passphrase is wrong or the sealed bytes were tampered
	// with.
	ErrWrongPassphrase = errors.New("vault: wrong passphrase or corrupted data")
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSizeX
	keySize   = 32

	magic   = "FPKV"
	version = 0x01

	headerSize = len(magic) + 1 + saltSize + nonceSize

	// Argon2id parameters, chosen for a one-shot manifest unlock rather
	// than a hot key-derivation path.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Seal derives a key from passphrase via Argon2id and encrypts
// plaintext with XChaCha20-Poly1305, returning header||ciphertext.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)
	defer secureWipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(plaintext)+aead.Overhead())
	out = append(out, []byte(magic)...)
	out = append(out, version)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Open reverses Seal: it re-derives the key from passphrase and the
// embedded salt, then authenticates and decrypts the ciphertext.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < headerSize {
		return nil, ErrInvalidHeader
	}
	if string(sealed[:len(magic)]) != magic {
		return nil, ErrInvalidHeader
	}

	off := len(magic)
	ver := sealed[off]
	off++
	if ver != version {
		return nil, ErrUnsupportedVersion
	}

	salt := sealed[off : off+saltSize]
	off += saltSize
	nonce := sealed[off : off+nonceSize]
	off += nonceSize
	ciphertext := sealed[off:]

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)
	defer secureWipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealed reports whether data begins with the vault's magic header,
// so callers can decide whether to prompt for a passphrase at all.
func IsSealed(data []byte) bool {
	return len(data) >= len(magic) && string(data[:len(magic)]) == magic
}

func secureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
