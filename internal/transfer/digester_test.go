package transfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigesterReassembles(t *testing.T) {
	var got *Artifact
	completions := 0
	d := NewDigester("hi.txt", "text/plain", 5, func(a *Artifact) {
		got = a
		completions++
	})

	require.NoError(t, d.Unchunk([]byte("he")))
	assert.InDelta(t, 0.4, d.Progress(), 1e-9)
	require.Nil(t, got)

	require.NoError(t, d.Unchunk([]byte("llo")))

	require.Equal(t, 1, completions)
	assert.Equal(t, "hi.txt", got.Name)
	assert.Equal(t, "text/plain", got.Mime)
	assert.Equal(t, int64(5), got.Size)
	assert.Equal(t, []byte("hello"), got.Data)
	assert.Equal(t, 1.0, d.Progress())
	assert.True(t, d.Done())
}

func TestDigesterDefaultsMime(t *testing.T) {
	var got *Artifact
	d := NewDigester("blob", "", 2, func(a *Artifact) { got = a })

	require.NoError(t, d.Unchunk([]byte("ab")))
	assert.Equal(t, DefaultMime, got.Mime)
}

func TestDigesterZeroSizeCompletesImmediately(t *testing.T) {
	var got *Artifact
	NewDigester("empty.txt", "text/plain", 0, func(a *Artifact) { got = a })

	require.NotNil(t, got)
	assert.Empty(t, got.Data)
	assert.Equal(t, int64(0), got.Size)
}

func TestDigesterRejectsOverrun(t *testing.T) {
	d := NewDigester("small", "", 3, func(*Artifact) {
		t.Fatal("must not complete")
	})

	err := d.Unchunk([]byte("toolong"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeExceeded))
	assert.False(t, d.Done())
}

func TestDigesterRejectsChunksAfterCompletion(t *testing.T) {
	d := NewDigester("done", "", 1, func(*Artifact) {})
	require.NoError(t, d.Unchunk([]byte("x")))

	err := d.Unchunk([]byte("y"))
	assert.True(t, errors.Is(err, ErrSizeExceeded))
}

func TestDigesterOwnsChunkBuffers(t *testing.T) {
	var got *Artifact
	d := NewDigester("buf", "", 4, func(a *Artifact) { got = a })

	buf := []byte("ab")
	require.NoError(t, d.Unchunk(buf))
	copy(buf, "XX") // transport reuses its buffer
	require.NoError(t, d.Unchunk([]byte("cd")))

	assert.True(t, bytes.Equal(got.Data, []byte("abcd")))
}
