// Package xorutil provides the fixed-length exclusive-or primitive the
// entanglement scheme is built from, plus the two blinding helpers the
// chunker and unchunker both need to agree on.
package xorutil

import "github.com/nas-ai/filepack/src/pkgerrors"

// Bytes XORs a and b element-wise. It fails with pkgerrors.ErrSizeMismatch
// if the operands differ in length.
func Bytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, pkgerrors.ErrSizeMismatch
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// Into XORs src into dst in place; dst and src must have equal length.
func Into(dst, src []byte) error {
	if len(dst) != len(src) {
		return pkgerrors.ErrSizeMismatch
	}
	for i := range dst {
		dst[i] ^= src[i]
	}
	return nil
}

// Accumulate XORs every element of vals together, returning a zero-valued
// slice of the given width if vals is empty.
func Accumulate(width int, vals ...[]byte) ([]byte, error) {
	total := make([]byte, width)
	for _, v := range vals {
		if len(v) != width {
			return nil, pkgerrors.ErrSizeMismatch
		}
		if err := Into(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// BlindPrefix XORs tail into the first len(tail) bytes of h, leaving the
// remainder of h untouched. h is modified in place. XORing the same
// tail into the prefix a second time undoes the first, so this same
// operation serves both blinding (chunker) and un-blinding (unchunker).
func BlindPrefix(h []byte, tail []byte) error {
	if len(tail) > len(h) {
		return pkgerrors.ErrSizeMismatch
	}
	return Into(h[:len(tail)], tail)
}
