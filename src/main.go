package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nas-ai/filepack/src/chunker"
	"github.com/nas-ai/filepack/src/config"
	"github.com/nas-ai/filepack/src/manifest"
	"github.com/nas-ai/filepack/src/pkgerrors"
	"github.com/nas-ai/filepack/src/unchunker"
	"github.com/nas-ai/filepack/src/vault"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Warn("received shutdown signal, cancelling in-flight operation")
		cancel()
	}()

	switch cfg.Mode {
	case config.ModeChunk:
		if err := runChunk(ctx, cfg, logger); err != nil {
			logger.WithError(err).Fatal("chunk failed")
		}
	case config.ModeUnchunk:
		if err := runUnchunk(ctx, cfg, logger); err != nil {
			logger.WithError(err).Fatal("unchunk failed")
		}
	}
}

func runChunk(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	result, err := chunker.Chunk(ctx, chunker.Options{
		InputFile:         cfg.InputFile,
		OutputDir:         cfg.OutputDir,
		Force:             cfg.Force,
		Verbose:           cfg.Verbose,
		Verify:            cfg.Verify,
		Parallelism:       cfg.Parallelism,
		OverrideBlockSize: cfg.OverrideBlockSize,
		Seed:              cfg.SeedPtr(),
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	passphrase, ok, err := cfg.ResolvePassphrase()
	if err != nil {
		return fmt.Errorf("resolve vault passphrase: %w", err)
	}
	if ok {
		if err := sealManifestAtRest(result.ManifestPath, passphrase); err != nil {
			return fmt.Errorf("seal manifest: %w", err)
		}
		logger.WithField("manifest", result.ManifestPath).Info("manifest sealed with vault passphrase")
	}

	logger.WithFields(logrus.Fields{
		"blocks":   result.BlockCount,
		"manifest": result.ManifestPath,
	}).Info("chunk complete")
	return nil
}

func runUnchunk(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	data, err := os.ReadFile(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("%w: reading manifest: %v", pkgerrors.ErrInvalidInput, err)
	}

	if vault.IsSealed(data) {
		passphrase, ok, err := cfg.ResolvePassphrase()
		if err != nil {
			return fmt.Errorf("resolve vault passphrase: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: manifest is sealed; a --passphrase-file is required", pkgerrors.ErrInvalidInput)
		}
		data, err = vault.Open(data, passphrase)
		if err != nil {
			return fmt.Errorf("unseal manifest: %w", err)
		}
	}

	var m manifest.Manifest
	if err := m.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: decoding manifest: %v", pkgerrors.ErrInvalidInput, err)
	}

	if err := unchunker.Unchunk(ctx, unchunker.Options{
		Manifest:   &m,
		BlockDir:   cfg.BlockDir,
		OutputFile: cfg.OutputFile,
		Force:      cfg.Force,
		Verbose:    cfg.Verbose,
		Logger:     logger,
	}); err != nil {
		return err
	}

	logger.WithField("output", cfg.OutputFile).Info("unchunk complete")
	return nil
}

func sealManifestAtRest(manifestPath, passphrase string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	sealed, err := vault.Seal(data, passphrase)
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath, sealed, 0o644)
}
