package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestLocalStorageSaveAndGet(t *testing.T) {
	s := newTestStorage(t)

	info, err := s.Save(strings.NewReader("kurssimateriaali"), "algebra.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "algebra.txt", info.Name)
	assert.Equal(t, int64(len("kurssimateriaali")), info.Size)
	assert.Equal(t, "text/plain", info.MimeType)

	reader, err := s.Get(info.ID)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "kurssimateriaali", string(content))
}

func TestLocalStorageGetPath(t *testing.T) {
	s := newTestStorage(t)

	info, err := s.Save(strings.NewReader("sisältö"), "notes.md")
	require.NoError(t, err)

	path, err := s.GetPath(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Path, path)
	assert.True(t, strings.HasSuffix(path, ".md"))
}

func TestLocalStorageNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get("missing-id")
	assert.ErrorIs(t, err, ErrFileNotFound)

	exists, err := s.Exists("missing-id")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageDelete(t *testing.T) {
	s := newTestStorage(t)

	info, err := s.Save(strings.NewReader("data"), "tmp.pdf")
	require.NoError(t, err)

	exists, err := s.Exists(info.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(info.ID))

	exists, err = s.Exists(info.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageList(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Save(strings.NewReader("a"), "a.txt")
	require.NoError(t, err)
	_, err = s.Save(strings.NewReader("b"), "b.pdf")
	require.NoError(t, err)

	files, err := s.List()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGetMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", getMimeType("x.PDF"))
	assert.Equal(t, "text/markdown", getMimeType("x.markdown"))
	assert.Equal(t, "text/plain", getMimeType("x.txt"))
	assert.Equal(t, "application/octet-stream", getMimeType("x.bin"))
}
