// manager_test.go - Tests for the blob store
package storage

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewStoreWithFs(afero.NewMemMapFs(), "/data/uploads")
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory on disk", func(t *testing.T) {
		dir := t.TempDir() + "/uploads"
		store, err := NewLocalStore(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.uploadDir)

		exists, err := afero.DirExists(afero.NewOsFs(), dir)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("creates upload directory in memory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_, err := NewStoreWithFs(fs, "/blobs")
		require.NoError(t, err)

		exists, _ := afero.DirExists(fs, "/blobs")
		assert.True(t, exists)
	})
}

func TestLocalStore_SaveOpen(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("invoice.pdf", "application/pdf", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "invoice.pdf", info.Name)
	assert.Equal(t, int64(13), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	f, err := store.Open(info.ID)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	buf := make([]byte, 3)
	_, err = f.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "PDF", string(buf))
}

func TestLocalStore_Get(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("a.pdf", "application/pdf", strings.NewReader("x"))
	require.NoError(t, err)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Name, got.Name)

	got.Name = "mutated"
	again, _ := store.Get(info.ID)
	assert.Equal(t, "a.pdf", again.Name)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("a.pdf", "application/pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(info.ID))

	_, err = store.Open(info.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete(info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	for _, name := range []string{"one.pdf", "two.pdf", "three.pdf"} {
		_, err := store.Save(name, "application/pdf", strings.NewReader(name))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three.pdf", list[0].Name)
	assert.Equal(t, "two.pdf", list[1].Name)

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
