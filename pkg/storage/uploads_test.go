package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadsSaveAndOpen(t *testing.T) {
	uploads, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	n, err := uploads.Save("1/abc.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	f, err := uploads.Open("1/abc.pdf")
	require.NoError(t, err)
	defer f.Close()

	data := make([]byte, 16)
	read, _ := f.Read(data)
	assert.Equal(t, "content", string(data[:read]))
}

func TestUploadsResolveContainment(t *testing.T) {
	base := t.TempDir()
	uploads, err := NewUploads(base)
	require.NoError(t, err)

	t.Run("normal key resolves inside base", func(t *testing.T) {
		path, err := uploads.Resolve("1/abc.pdf")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "1", "abc.pdf"), path)
	})

	t.Run("dot-dot escape rejected", func(t *testing.T) {
		_, err := uploads.Resolve("../../etc/passwd")
		assert.ErrorIs(t, err, ErrPathEscape)
	})

	t.Run("nested dot-dot escape rejected", func(t *testing.T) {
		_, err := uploads.Resolve("1/../../../etc/passwd")
		assert.ErrorIs(t, err, ErrPathEscape)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := uploads.Resolve("")
		assert.Error(t, err)
	})

	t.Run("dot-dot inside the tree is fine once cleaned", func(t *testing.T) {
		path, err := uploads.Resolve("1/sub/../abc.pdf")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "1", "abc.pdf"), path)
	})
}

func TestUploadsRemove(t *testing.T) {
	uploads, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	_, err = uploads.Save("a.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, uploads.Remove("a.txt"))

	path, err := uploads.Resolve("a.txt")
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Removing twice is not an error.
	assert.NoError(t, uploads.Remove("a.txt"))
}
