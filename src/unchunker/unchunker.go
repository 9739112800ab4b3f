// Package unchunker takes a manifest and the directory holding its
// block files, reverses the entanglement scheme to recover the unlock
// key, verifies every block's integrity, and streams the decrypted
// blocks back out in order.
package unchunker

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/nas-ai/filepack/src/blockcipher"
	"github.com/nas-ai/filepack/src/blockstore"
	"github.com/nas-ai/filepack/src/hashutil"
	"github.com/nas-ai/filepack/src/manifest"
	"github.com/nas-ai/filepack/src/pkgerrors"
	"github.com/nas-ai/filepack/src/xorutil"
	"github.com/sirupsen/logrus"
)

// Options configures an Unchunk invocation.
type Options struct {
	Manifest   *manifest.Manifest
	BlockDir   string
	OutputFile string
	Force      bool
	Verbose    bool

	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Unchunk reconstructs opts.OutputFile from the manifest's block files
// under opts.BlockDir. On any failure after block files start being
// written to output, the partial output file is removed.
func Unchunk(ctx context.Context, opts Options) error {
	log := opts.logger()

	if opts.Manifest == nil {
		return fmt.Errorf("%w: manifest is nil", pkgerrors.ErrInvalidInput)
	}
	if err := opts.Manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}

	if !opts.Force {
		if _, err := os.Stat(opts.OutputFile); err == nil {
			return fmt.Errorf("%w: %s", pkgerrors.ErrAlreadyExists, opts.OutputFile)
		}
	}

	store, err := blockstore.Open(opts.BlockDir)
	if err != nil {
		return err
	}

	n := len(opts.Manifest.BlockHashes)

	names := make([]string, n)
	tails := make([][]byte, n)
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", pkgerrors.ErrCancelled, ctx.Err())
		default:
		}

		name, err := store.FindByIndex(i)
		if err != nil {
			return pkgerrors.NewIoError("locate", opts.BlockDir, err)
		}
		names[i] = name

		tail, err := store.Tail(name, 32)
		if err != nil {
			return pkgerrors.NewIoError("tail", name, err)
		}
		tails[i] = tail
	}

	nonceKey, err := recoverKey(opts.Manifest, names, tails, store)
	if err != nil {
		return err
	}

	if err := decryptInOrder(ctx, opts, store, names, nonceKey, log); err != nil {
		_ = os.Remove(opts.OutputFile)
		return err
	}

	log.WithFields(logrus.Fields{
		"blocks": n,
		"output": opts.OutputFile,
	}).Info("unchunk: complete")

	return nil
}

// recoverKey un-blinds every H'_i back to H_i, verifies each block's
// ciphertext hash against H_i, then recovers
// N = unlock_key xor P_0 xor ... xor P_{n-1}.
func recoverKey(m *manifest.Manifest, names []string, tails [][]byte, store *blockstore.Store) ([]byte, error) {
	total, err := xorutil.Accumulate(32, tails...)
	if err != nil {
		return nil, fmt.Errorf("%w: accumulating block tails: %v", pkgerrors.ErrInvalidInput, err)
	}

	prefixes := make([][]byte, len(m.BlockHashes))
	for i, blinded := range m.BlockHashes {
		blindTail, err := xorutil.Bytes(total, tails[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrSizeMismatch, err)
		}

		h := append([]byte(nil), blinded...)
		if err := xorutil.BlindPrefix(h, blindTail); err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrSizeMismatch, err)
		}

		f, err := store.OpenBlock(names[i])
		if err != nil {
			return nil, pkgerrors.NewIoError("open", names[i], err)
		}
		actual, err := hashutil.Stream(f)
		f.Close()
		if err != nil {
			return nil, pkgerrors.NewIoError("hash", names[i], err)
		}

		if !bytes.Equal(actual[:], h) {
			return nil, pkgerrors.NewIntegrityFailure(i, fmt.Errorf("block ciphertext hash does not match manifest"))
		}

		prefixes[i] = h[:32]
	}

	accum, err := xorutil.Accumulate(blockcipher.KeySize, prefixes...)
	if err != nil {
		return nil, fmt.Errorf("%w: accumulating hash prefixes: %v", pkgerrors.ErrSizeMismatch, err)
	}

	nonceKey, err := xorutil.Bytes(m.UnlockKey, accum)
	if err != nil {
		return nil, fmt.Errorf("%w: recovering nonce key: %v", pkgerrors.ErrSizeMismatch, err)
	}
	return nonceKey, nil
}

func decryptInOrder(ctx context.Context, opts Options, store *blockstore.Store, names []string, nonceKey []byte, log *logrus.Logger) error {
	out, err := os.OpenFile(opts.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return pkgerrors.NewIoError("create", opts.OutputFile, err)
	}

	for i, name := range names {
		select {
		case <-ctx.Done():
			out.Close()
			return fmt.Errorf("%w: %v", pkgerrors.ErrCancelled, ctx.Err())
		default:
		}

		f, err := store.OpenBlock(name)
		if err != nil {
			out.Close()
			return pkgerrors.NewIoError("open", name, err)
		}

		err = blockcipher.DecryptStream(f, nonceKey, out)
		f.Close()
		if err != nil {
			out.Close()
			return fmt.Errorf("unchunker: decrypt block %d: %w", i, err)
		}

		if opts.Verbose {
			log.WithFields(logrus.Fields{"block_index": i, "name": name}).Debug("unchunk: block decrypted")
		}
	}

	return out.Close()
}
