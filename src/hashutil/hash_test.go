package hashutil

import (
	"bytes"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	data := []byte("hello, entangled world")
	want := sha512.Sum512(data)
	got := Bytes(data)
	assert.Equal(t, want, got)
}

func TestStream_MatchesBytes(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 10000)

	want := Bytes(data)
	got, err := Stream(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream_Empty(t *testing.T) {
	got, err := Stream(bytes.NewReader(nil))
	require.NoError(t, err)
	want := sha512.Sum512(nil)
	assert.Equal(t, want, got)
}
