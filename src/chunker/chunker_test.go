package chunker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nas-ai/filepack/src/blockstore"
	"github.com/nas-ai/filepack/src/pkgerrors"
	"github.com/nas-ai/filepack/src/unchunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempInput(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func seeded(n int64) *int64 {
	return &n
}

func TestChunk_RoundTrip(t *testing.T) {
	input := writeTempInput(t, 30*1024*1024)
	outDir := t.TempDir()

	result, err := Chunk(context.Background(), Options{
		InputFile:   input,
		OutputDir:   outDir,
		Parallelism: 4,
		Seed:        seeded(11),
	})
	require.NoError(t, err)
	assert.Greater(t, result.BlockCount, 1)

	restored := filepath.Join(t.TempDir(), "restored.bin")
	require.NoError(t, unchunker.Unchunk(context.Background(), unchunker.Options{
		Manifest:   result.Manifest,
		BlockDir:   outDir,
		OutputFile: restored,
	}))

	want, err := os.ReadFile(input)
	require.NoError(t, err)
	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChunk_SelfVerify(t *testing.T) {
	input := writeTempInput(t, 5*1024*1024)
	outDir := t.TempDir()

	result, err := Chunk(context.Background(), Options{
		InputFile: input,
		OutputDir: outDir,
		Verify:    true,
		Seed:      seeded(3),
	})
	require.NoError(t, err)
	assert.FileExists(t, result.ManifestPath)
}

func TestChunk_RejectsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Chunk(context.Background(), Options{InputFile: path, OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestChunk_RejectsDirectoryInput(t *testing.T) {
	_, err := Chunk(context.Background(), Options{InputFile: t.TempDir(), OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestChunk_RefusesToOverwriteWithoutForce(t *testing.T) {
	input := writeTempInput(t, 2*1024*1024)
	outDir := t.TempDir()

	_, err := Chunk(context.Background(), Options{InputFile: input, OutputDir: outDir, Seed: seeded(1)})
	require.NoError(t, err)

	_, err = Chunk(context.Background(), Options{InputFile: input, OutputDir: outDir, Seed: seeded(2)})
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyExists)
}

func TestChunk_ForceOverwritesExisting(t *testing.T) {
	input := writeTempInput(t, 2*1024*1024)
	outDir := t.TempDir()

	_, err := Chunk(context.Background(), Options{InputFile: input, OutputDir: outDir, Seed: seeded(1)})
	require.NoError(t, err)

	_, err = Chunk(context.Background(), Options{InputFile: input, OutputDir: outDir, Force: true, Seed: seeded(2)})
	assert.NoError(t, err)
}

func TestChunk_CancelledContext(t *testing.T) {
	input := writeTempInput(t, 2*1024*1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Chunk(ctx, Options{InputFile: input, OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrCancelled)
}

func TestChunk_BlockFilesUseOpaquePrefix(t *testing.T) {
	input := writeTempInput(t, 1024*1024)
	outDir := t.TempDir()

	result, err := Chunk(context.Background(), Options{InputFile: input, OutputDir: outDir, Seed: seeded(5)})
	require.NoError(t, err)

	first := blockstore.BlockFileName(result.BlockPrefix, 0)
	assert.NotContains(t, first, "input.bin")
	assert.FileExists(t, filepath.Join(outDir, first))
}
