package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/transfer"
)

func TestSaveWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	a := &transfer.Artifact{Name: "hi.txt", Mime: "text/plain", Size: 5, Data: []byte("hello")}

	path, err := Save(dir, a)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "hi.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestSaveAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	a := &transfer.Artifact{Name: "hi.txt", Data: []byte("one")}

	first, err := Save(dir, a)
	require.NoError(t, err)

	a.Data = []byte("two")
	second, err := Save(dir, a)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(dir, "hi (1).txt"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	a := &transfer.Artifact{Name: "x.bin", Data: []byte{1, 2, 3}}

	path, err := Save(dir, a)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.bin"), path)
}

func TestSaveStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	a := &transfer.Artifact{Name: "../../evil.txt", Data: []byte("x")}

	path, err := Save(dir, a)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.txt"), path)
}
