// Package chunker reads a plaintext file, partitions it into
// randomized-length blocks, encrypts each block under a single random
// nonce key, hashes the ciphertext, builds the XOR key schedule and the
// blinded manifest entries, and writes the block files plus the
// manifest.
package chunker

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"io"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nas-ai/filepack/src/blockcipher"
	"github.com/nas-ai/filepack/src/blockstore"
	"github.com/nas-ai/filepack/src/hashutil"
	"github.com/nas-ai/filepack/src/manifest"
	"github.com/nas-ai/filepack/src/pkgerrors"
	"github.com/nas-ai/filepack/src/sizer"
	"github.com/nas-ai/filepack/src/unchunker"
	"github.com/nas-ai/filepack/src/xorutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configures a Chunk invocation.
type Options struct {
	InputFile  string
	OutputDir  string
	Force      bool
	Verbose    bool
	Verify     bool
	Parallelism int // bounded worker pool size; 0 means sequential

	// OverrideBlockSize, when non-zero, replaces the Sizer's randomized
	// length selection with a fixed size (still clamped to what remains
	// and subject to the terminal-block edge rule).
	OverrideBlockSize int64

	// Seed, when non-nil, seeds the block-size PRNG for deterministic
	// chunking. Nil uses a time-seeded PRNG; this never affects which
	// cryptographic RNG is used for N or the per-block IVs, only
	// traffic-shaping block sizes.
	Seed *int64

	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Result is returned by Chunk alongside the manifest: where the
// manifest and block files were written, for callers that want to
// move or publish them atomically.
type Result struct {
	Manifest      *manifest.Manifest
	ManifestPath  string
	BlockPrefix   string
	BlockCount    int
}

const manifestFileName = "manifest.json"

// Chunk partitions, encrypts, and hashes opts.InputFile into block
// files under opts.OutputDir, and returns the resulting manifest.
func Chunk(ctx context.Context, opts Options) (*Result, error) {
	log := opts.logger()

	info, err := os.Stat(opts.InputFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", pkgerrors.ErrInvalidInput, opts.InputFile)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: empty input file", pkgerrors.ErrInvalidInput)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating output dir: %v", pkgerrors.ErrInvalidInput, err)
	}

	store, err := blockstore.Open(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(store.BaseDir(), manifestFileName)
	if !opts.Force {
		if _, err := os.Stat(manifestPath); err == nil {
			return nil, fmt.Errorf("%w: %s", pkgerrors.ErrAlreadyExists, manifestPath)
		}
	}

	prefix := uuid.New().String()[:8]
	if !opts.Force {
		first := blockstore.BlockFileName(prefix, 0)
		if exists, _ := store.Exists(first); exists {
			return nil, fmt.Errorf("%w: %s", pkgerrors.ErrAlreadyExists, first)
		}
	}

	var producedNames []string
	cleanup := func() {
		for _, n := range producedNames {
			_ = store.Delete(n)
		}
	}

	result, err := chunkInto(ctx, opts, store, prefix, info, log, &producedNames)
	if err != nil {
		cleanup()
		return nil, err
	}

	if opts.Verify {
		if verr := selfVerify(ctx, opts.InputFile, result.Manifest, store); verr != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrVerifyFailed, verr)
		}
	}

	data, err := result.Manifest.MarshalJSON()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("chunker: marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		cleanup()
		return nil, fmt.Errorf("chunker: write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	log.WithFields(logrus.Fields{
		"blocks":   result.BlockCount,
		"manifest": manifestPath,
	}).Info("chunk: complete")

	return result, nil
}

type blockOutcome struct {
	index int
	name  string
	hash  [hashutil.Size]byte
	tail  []byte
}

func chunkInto(ctx context.Context, opts Options, store *blockstore.Store, prefix string, info os.FileInfo, log *logrus.Logger, producedNames *[]string) (*Result, error) {
	f, err := os.Open(opts.InputFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}
	defer f.Close()

	nonceKey := make([]byte, blockcipher.KeySize)
	if _, err := io.ReadFull(cryptorand.Reader, nonceKey); err != nil {
		return nil, fmt.Errorf("chunker: generate nonce key: %w", err)
	}

	var szr *sizer.Sizer
	rng := seedRNG(opts.Seed)
	if opts.OverrideBlockSize > 0 {
		szr = sizer.NewWithOverride(info.Size(), opts.OverrideBlockSize, rng)
	} else {
		szr = sizer.New(info.Size(), rng)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	// A single producer goroutine reads blocks off the input in
	// consumption order and hands them to a fixed pool of worker
	// goroutines over a channel buffered to the pool size. That caps how
	// far the producer can run ahead of the slowest worker, so at most
	// roughly 2*parallelism+1 block buffers are live at once (one per
	// worker, up to parallelism queued, one being read) instead of the
	// whole file.
	jobs := make(chan pending, parallelism)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		remaining := info.Size()

		for i := 0; remaining > 0; i++ {
			select {
			case <-gctx.Done():
				return fmt.Errorf("%w: %v", pkgerrors.ErrCancelled, gctx.Err())
			default:
			}

			length := szr.Next(remaining)
			buf := make([]byte, length)
			if _, err := io.ReadFull(f, buf); err != nil {
				return fmt.Errorf("chunker: read block %d: %w", i, err)
			}
			remaining -= length

			name := blockstore.BlockFileName(prefix, i)
			*producedNames = append(*producedNames, name)

			select {
			case jobs <- pending{index: i, name: name, buf: buf}:
			case <-gctx.Done():
				return fmt.Errorf("%w: %v", pkgerrors.ErrCancelled, gctx.Err())
			}
		}
		return nil
	})

	var (
		mu       sync.Mutex
		outcomes []blockOutcome
	)
	for w := 0; w < parallelism; w++ {
		g.Go(func() error {
			for b := range jobs {
				outcome, err := encryptOneBlock(gctx, store, b.name, b.index, b.buf, nonceKey)
				if err != nil {
					return err
				}
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
				if opts.Verbose {
					log.WithFields(logrus.Fields{"block_index": b.index, "bytes": len(b.buf)}).Debug("chunk: block encrypted")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	key, blindedHashes, err := assembleKeyAndHashes(nonceKey, outcomes)
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		Name:           filepath.Base(opts.InputFile),
		CreatedAt:      info.ModTime(),
		LastModifiedAt: info.ModTime(),
		BlockHashes:    blindedHashes,
		UnlockKey:      key,
	}

	return &Result{
		Manifest:    m,
		BlockPrefix: prefix,
		BlockCount:  len(outcomes),
	}, nil
}

type pending struct {
	index int
	name  string
	buf   []byte
}

func encryptOneBlock(ctx context.Context, store *blockstore.Store, name string, index int, plaintext, key []byte) (blockOutcome, error) {
	select {
	case <-ctx.Done():
		return blockOutcome{}, fmt.Errorf("%w: %v", pkgerrors.ErrCancelled, ctx.Err())
	default:
	}

	dst, err := store.Create(name)
	if err != nil {
		return blockOutcome{}, fmt.Errorf("chunker: create block %d: %w", index, err)
	}

	if err := blockcipher.EncryptStream(bytesReader(plaintext), key, dst); err != nil {
		dst.Close()
		return blockOutcome{}, fmt.Errorf("chunker: encrypt block %d: %w", index, err)
	}
	if err := dst.Close(); err != nil {
		return blockOutcome{}, fmt.Errorf("chunker: close block %d: %w", index, err)
	}

	rf, err := store.OpenBlock(name)
	if err != nil {
		return blockOutcome{}, fmt.Errorf("chunker: reopen block %d: %w", index, err)
	}
	hash, err := hashutil.Stream(rf)
	rf.Close()
	if err != nil {
		return blockOutcome{}, fmt.Errorf("chunker: hash block %d: %w", index, err)
	}

	tail, err := store.Tail(name, 32)
	if err != nil {
		return blockOutcome{}, fmt.Errorf("chunker: tail block %d: %w", index, err)
	}

	return blockOutcome{index: index, name: name, hash: hash, tail: tail}, nil
}

// assembleKeyAndHashes builds the key schedule K := N xor P_0 xor ...
// xor P_{n-1}, and the blinded hashes H'_i := H_i with T_j (j != i)
// XORed into its first 32 bytes.
func assembleKeyAndHashes(nonceKey []byte, ordered []blockOutcome) ([]byte, [][]byte, error) {
	key := append([]byte(nil), nonceKey...)
	total := make([]byte, 32)

	for _, o := range ordered {
		prefix := o.hash[:32]
		if err := xorutil.Into(key, prefix); err != nil {
			return nil, nil, err
		}
		if err := xorutil.Into(total, o.tail); err != nil {
			return nil, nil, err
		}
	}

	blinded := make([][]byte, len(ordered))
	for _, o := range ordered {
		h := append([]byte(nil), o.hash[:]...)
		blindTail := append([]byte(nil), total...)
		if err := xorutil.Into(blindTail, o.tail); err != nil {
			return nil, nil, err
		}
		if err := xorutil.BlindPrefix(h, blindTail); err != nil {
			return nil, nil, err
		}
		blinded[o.index] = h
	}

	return key, blinded, nil
}

func seedRNG(seed *int64) *mathrand.Rand {
	if seed != nil {
		return mathrand.New(mathrand.NewSource(*seed))
	}
	return mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

// selfVerify runs the unchunker against the just-produced artifacts and
// asserts the reconstructed stream's SHA-512 equals the input's. The
// temp file is always removed, regardless of outcome.
func selfVerify(ctx context.Context, inputFile string, m *manifest.Manifest, store *blockstore.Store) error {
	tmp, err := os.CreateTemp("", "chunk-verify-*")
	if err != nil {
		return fmt.Errorf("chunker: create verify temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	err = unchunker.Unchunk(ctx, unchunker.Options{
		Manifest:   m,
		BlockDir:   store.BaseDir(),
		OutputFile: tmpPath,
		Force:      true,
	})
	if err != nil {
		return fmt.Errorf("chunker: verify unchunk: %w", err)
	}

	got, err := hashFile(tmpPath)
	if err != nil {
		return err
	}
	want, err := hashFile(inputFile)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("chunker: reconstructed stream hash does not match input")
	}
	return nil
}

func hashFile(path string) ([hashutil.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [hashutil.Size]byte{}, fmt.Errorf("chunker: open %s for verify hash: %w", path, err)
	}
	defer f.Close()
	return hashutil.Stream(f)
}
