// Package manifest defines the logical manifest schema and its
// canonical JSON encoding. The wire format is JSON, with base64-encoded
// byte fields and Unix-epoch-second timestamps.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nas-ai/filepack/src/blockcipher"
	"github.com/nas-ai/filepack/src/hashutil"
)

// Manifest is the in-memory, logical form of a block manifest record.
type Manifest struct {
	// Name is the original file's base name.
	Name string

	// CreatedAt and LastModifiedAt are the original file's timestamps.
	// The chunker fills both from the file's modification time; the
	// file's creation time is not read.
	CreatedAt      time.Time
	LastModifiedAt time.Time

	// BlockHashes holds the blinded hashes H'_i in reconstruction order.
	// Each entry is exactly hashutil.Size (64) bytes.
	BlockHashes [][]byte

	// UnlockKey is K, exactly blockcipher.KeySize (32) bytes.
	UnlockKey []byte
}

// Validate checks the manifest's structural invariants.
func (m *Manifest) Validate() error {
	if len(m.BlockHashes) == 0 {
		return fmt.Errorf("manifest: block_hashes must be non-empty")
	}
	for i, h := range m.BlockHashes {
		if len(h) != hashutil.Size {
			return fmt.Errorf("manifest: block_hashes[%d] has length %d, want %d", i, len(h), hashutil.Size)
		}
	}
	if len(m.UnlockKey) != blockcipher.KeySize {
		return fmt.Errorf("manifest: unlock_key has length %d, want %d", len(m.UnlockKey), blockcipher.KeySize)
	}
	return nil
}

// wireManifest is the canonical JSON transport shape.
type wireManifest struct {
	Name                string   `json:"Name"`
	DateCreatedUtc      int64    `json:"DateCreatedUtc"`
	DateLastModifiedUtc int64    `json:"DateLastModifiedUtc"`
	BlockHashes         []string `json:"BlockHashes"`
	UnlockKey           string   `json:"UnlockKey"`
}

// MarshalJSON encodes the manifest in the canonical wire format: base64
// byte fields, epoch-second timestamps.
func (m Manifest) MarshalJSON() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	hashes := make([]string, len(m.BlockHashes))
	for i, h := range m.BlockHashes {
		hashes[i] = base64.StdEncoding.EncodeToString(h)
	}

	w := wireManifest{
		Name:                m.Name,
		DateCreatedUtc:      m.CreatedAt.UTC().Unix(),
		DateLastModifiedUtc: m.LastModifiedAt.UTC().Unix(),
		BlockHashes:         hashes,
		UnlockKey:           base64.StdEncoding.EncodeToString(m.UnlockKey),
	}
	return json.MarshalIndent(w, "", "  ")
}

// UnmarshalJSON decodes the canonical wire format produced by MarshalJSON.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("manifest: decode: %w", err)
	}

	hashes := make([][]byte, len(w.BlockHashes))
	for i, s := range w.BlockHashes {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("manifest: decode block_hashes[%d]: %w", i, err)
		}
		hashes[i] = b
	}

	key, err := base64.StdEncoding.DecodeString(w.UnlockKey)
	if err != nil {
		return fmt.Errorf("manifest: decode unlock_key: %w", err)
	}

	m.Name = w.Name
	m.CreatedAt = time.Unix(w.DateCreatedUtc, 0).UTC()
	m.LastModifiedAt = time.Unix(w.DateLastModifiedUtc, 0).UTC()
	m.BlockHashes = hashes
	m.UnlockKey = key

	return m.Validate()
}
