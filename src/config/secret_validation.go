package config

import (
	"fmt"
	"os"
	"strings"
)

const minPassphraseLength = 12

// weakPassphrases rejects the handful of placeholder values people
// paste into a --passphrase-file without thinking, so a typo'd example
// from a README doesn't silently become the real secret.
var weakPassphrases = map[string]bool{
	"password":     true,
	"changeme":     true,
	"passphrase":   true,
	"123456789012": true,
}

// readSecretFromFile reads the vault passphrase out of path, trimming
// surrounding whitespace so a trailing newline from an editor or
// `echo >` doesn't become part of the secret.
func readSecretFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read passphrase file %q: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ValidateVaultPassphrase enforces basic strength rules for the
// optional manifest-at-rest passphrase (src/vault): non-empty, long
// enough to carry real entropy into Argon2id, and not one of the
// handful of placeholder values people reuse by habit.
func ValidateVaultPassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("config: vault passphrase must not be empty")
	}
	if len(passphrase) < minPassphraseLength {
		return fmt.Errorf("config: vault passphrase must be at least %d characters, got %d", minPassphraseLength, len(passphrase))
	}
	if weakPassphrases[strings.ToLower(passphrase)] {
		return fmt.Errorf("config: vault passphrase is too common to use")
	}
	return nil
}
