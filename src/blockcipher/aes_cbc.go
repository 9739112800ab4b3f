// Package blockcipher implements the AES-256-CBC + PKCS7 streaming
// cipher used to encrypt every block file. See DESIGN.md for why this
// stays on crypto/aes and crypto/cipher rather than an AEAD cipher.
package blockcipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/nas-ai/filepack/src/pkgerrors"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// IVSize is the AES block size, and so the CBC IV length, in bytes.
const IVSize = aes.BlockSize

// EncryptStream reads all of src, PKCS7-pads it to the AES block size,
// generates a fresh random IV, and writes IV||ciphertext to dst. The IV
// is part of the block file, never the manifest.
func EncryptStream(src io.Reader, key []byte, dst io.Writer) error {
	if len(key) != KeySize {
		return fmt.Errorf("blockcipher: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("blockcipher: new cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return fmt.Errorf("blockcipher: generate iv: %w", err)
	}
	if _, err := dst.Write(iv); err != nil {
		return fmt.Errorf("blockcipher: write iv: %w", err)
	}

	plaintext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("blockcipher: read plaintext: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	if _, err := dst.Write(ciphertext); err != nil {
		return fmt.Errorf("blockcipher: write ciphertext: %w", err)
	}
	return nil
}

// DecryptStream reads IV||ciphertext from src, decrypts it with key, and
// writes the unpadded plaintext to dst.
func DecryptStream(src io.Reader, key []byte, dst io.Writer) error {
	if len(key) != KeySize {
		return fmt.Errorf("blockcipher: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("blockcipher: new cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return fmt.Errorf("%w: short iv read: %v", pkgerrors.ErrDecryptionFailure, err)
	}

	ciphertext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("blockcipher: read ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d not a multiple of %d", pkgerrors.ErrDecryptionFailure, len(ciphertext), aes.BlockSize)
	}

	padded := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrDecryptionFailure, err)
	}

	if _, err := dst.Write(plaintext); err != nil {
		return fmt.Errorf("blockcipher: write plaintext: %w", err)
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("pkcs7: empty input")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > n {
		return nil, fmt.Errorf("pkcs7: invalid padding length %d", padLen)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7: invalid padding bytes")
		}
	}
	return data[:n-padLen], nil
}
