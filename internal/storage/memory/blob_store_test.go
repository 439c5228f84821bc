package memory

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "142285-1-School-2015_Mar_5.pdf", payload)
	require.NoError(t, err)
	assert.Equal(t, "memory://142285-1-School-2015_Mar_5.pdf", uri)

	payload[0] = 'C'
	stored, ok := store.Get("142285-1-School-2015_Mar_5.pdf")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored))
	assert.Equal(t, 1, store.Puts())
}

func TestBlobStoreExistsAndNames(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ok, err := store.Exists("b.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, name := range []string{"b.txt", "a.pdf"} {
		_, err := store.PutObject(context.Background(), name, []byte(name))
		require.NoError(t, err)
	}
	ok, err = store.Exists("b.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, store.Names())
}

func TestBlobStoreRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBlobStore().PutObject(ctx, "a.pdf", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlobStoreReadListRemove(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, name := range []string{"b.pdf", "a.pdf", "a.txt"} {
		_, err := store.PutObject(context.Background(), name, []byte(name))
		require.NoError(t, err)
	}

	pdfs, err := store.List(".pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, pdfs)

	data, err := store.ReadObject("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", string(data))

	require.NoError(t, store.Remove("a.pdf"))
	require.NoError(t, store.Remove("missing.pdf"))
	_, err = store.ReadObject("a.pdf")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
