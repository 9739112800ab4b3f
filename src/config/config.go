// Package config wires the chunker/unchunker library to a command
// line: flag parsing via pflag, with viper providing an env-var
// overlay for anything not passed as a flag. No config file is read.
// The CLI's
// own design is intentionally minimal, only getting enough values to
// call src/chunker and src/unchunker from a shell.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Mode selects which operation main.go dispatches to.
type Mode string

const (
	ModeChunk   Mode = "chunk"
	ModeUnchunk Mode = "unchunk"
)

// Config holds everything main.go needs to invoke the chunker or
// unchunker, collected from CLI flags with environment-variable
// fallbacks under the FILEPACK_ prefix.
type Config struct {
	Mode Mode

	InputFile  string
	OutputDir  string
	BlockDir   string
	OutputFile string

	ManifestPath string

	Force   bool
	Verbose bool
	Verify  bool

	Parallelism       int
	OverrideBlockSize int64
	Seed              int64
	HasSeed           bool

	VaultPassphraseFile string

	LogLevel string
}

// Load parses args (typically os.Args[1:]) into a Config. The first
// positional argument selects the mode ("chunk" or "unchunk").
func Load(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("config: expected a mode argument: %q or %q", ModeChunk, ModeUnchunk)
	}

	mode := Mode(args[0])
	if mode != ModeChunk && mode != ModeUnchunk {
		return nil, fmt.Errorf("config: unknown mode %q: expected %q or %q", args[0], ModeChunk, ModeUnchunk)
	}

	fs := pflag.NewFlagSet(string(mode), pflag.ContinueOnError)

	fs.StringP("input", "i", "", "input file to chunk")
	fs.StringP("output-dir", "o", "", "directory to write block files and manifest into (chunk mode)")
	fs.String("block-dir", "", "directory holding block files (unchunk mode)")
	fs.String("output-file", "", "path to write the reconstructed file to (unchunk mode)")
	fs.String("manifest", "", "path to the manifest file")
	fs.Bool("force", false, "overwrite existing output")
	fs.BoolP("verbose", "v", false, "emit per-block debug logging")
	fs.Bool("verify", false, "self-verify reconstruction after chunking")
	fs.Int("parallelism", 4, "bounded worker pool size for block encryption")
	fs.Int64("override-block-size", 0, "fixed block size in bytes, overriding the randomized sizer")
	fs.Int64("seed", 0, "seed the block-size PRNG for deterministic chunking")
	fs.Bool("deterministic", false, "treat --seed as set even when it is 0")
	fs.String("passphrase-file", "", "file containing a passphrase to seal/unseal the manifest with src/vault")
	fs.String("log-level", "info", "logrus level: trace, debug, info, warn, error")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FILEPACK")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	cfg := &Config{
		Mode:                mode,
		InputFile:           v.GetString("input"),
		OutputDir:           v.GetString("output-dir"),
		BlockDir:            v.GetString("block-dir"),
		OutputFile:          v.GetString("output-file"),
		ManifestPath:        v.GetString("manifest"),
		Force:               v.GetBool("force"),
		Verbose:             v.GetBool("verbose"),
		Verify:              v.GetBool("verify"),
		Parallelism:         v.GetInt("parallelism"),
		OverrideBlockSize:   v.GetInt64("override-block-size"),
		Seed:                v.GetInt64("seed"),
		HasSeed:             v.GetBool("deterministic") || v.GetInt64("seed") != 0,
		VaultPassphraseFile: v.GetString("passphrase-file"),
		LogLevel:            v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeChunk:
		if c.InputFile == "" {
			return fmt.Errorf("config: --input is required for %q", ModeChunk)
		}
		if c.OutputDir == "" {
			return fmt.Errorf("config: --output-dir is required for %q", ModeChunk)
		}
	case ModeUnchunk:
		if c.ManifestPath == "" {
			return fmt.Errorf("config: --manifest is required for %q", ModeUnchunk)
		}
		if c.BlockDir == "" {
			return fmt.Errorf("config: --block-dir is required for %q", ModeUnchunk)
		}
		if c.OutputFile == "" {
			return fmt.Errorf("config: --output-file is required for %q", ModeUnchunk)
		}
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("config: --parallelism must be non-negative")
	}
	return nil
}

// SeedPtr returns the configured seed as *int64 for chunker.Options,
// or nil when the caller did not ask for deterministic chunking.
func (c *Config) SeedPtr() *int64 {
	if !c.HasSeed {
		return nil
	}
	s := c.Seed
	return &s
}

// ResolvePassphrase reads the passphrase file, if one was configured.
// Returns "", false when no passphrase file was set.
func (c *Config) ResolvePassphrase() (string, bool, error) {
	if c.VaultPassphraseFile == "" {
		return "", false, nil
	}
	secret, err := readSecretFromFile(c.VaultPassphraseFile)
	if err != nil {
		return "", false, err
	}
	if err := ValidateVaultPassphrase(secret); err != nil {
		return "", false, err
	}
	return secret, true, nil
}
