// Package hashutil provides the SHA-512 hashing primitive used to
// identify blocks. Hashes are opaque 64-byte values; no endianness
// concerns apply.
package hashutil

import (
	"crypto/sha512"
	"io"
)

// Size is the length in bytes of a SHA-512 digest.
const Size = sha512.Size

// Bytes returns the SHA-512 digest of data.
func Bytes(data []byte) [Size]byte {
	return sha512.Sum512(data)
}

// Stream returns the SHA-512 digest of everything read from r, without
// buffering the whole stream in memory.
func Stream(r io.Reader) ([Size]byte, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return [Size]byte{}, err
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
