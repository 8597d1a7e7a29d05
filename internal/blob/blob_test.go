package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	// sha1("hello world")
	assert.Equal(t, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", Digest([]byte("hello world")))
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", Digest(nil))
}

func TestValidDigest(t *testing.T) {
	assert.True(t, ValidDigest("2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"))
	assert.False(t, ValidDigest(""))
	assert.False(t, ValidDigest("2AAE6C35C94FCFB415DBE95F408B9CE91EE846ED")) // uppercase
	assert.False(t, ValidDigest("2aae6c35"))                                 // too short
	assert.False(t, ValidDigest("../../../../etc/passwd"))
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			content := []byte("testcase input data\nwith lines\n")

			digest, err := store.Put(ctx, content)
			require.NoError(t, err)
			assert.Equal(t, Digest(content), digest)

			got, err := store.Get(ctx, digest)
			require.NoError(t, err)
			assert.Equal(t, content, got)

			ok, err := store.Exists(ctx, digest)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStorePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			d1, err := store.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			d2, err := store.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			assert.Equal(t, d1, d2)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	missing := Digest([]byte("never stored"))
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, missing)
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := store.Exists(ctx, missing)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRejectsBadDigest(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "not-a-digest")
			assert.ErrorIs(t, err, ErrBadDigest)

			_, err = store.Exists(ctx, "../escape")
			assert.ErrorIs(t, err, ErrBadDigest)
		})
	}
}

func TestMemoryCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	content := []byte("mutable")
	digest, err := store.Put(ctx, content)
	require.NoError(t, err)
	content[0] = 'X'

	got, err := store.Get(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)

	got[0] = 'Y'
	again, err := store.Get(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), again)
}

func TestFilesystemShardsAndCompresses(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFilesystem(root)
	require.NoError(t, err)

	content := []byte("compress me")
	digest, err := store.Put(ctx, content)
	require.NoError(t, err)

	path := filepath.Join(root, digest[:2], digest+".zst")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// No stray temp files after a completed write.
	entries, err := os.ReadDir(filepath.Join(root, digest[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, digest+".zst", entries[0].Name())
}

func TestOpenDefaultsToFilesystem(t *testing.T) {
	t.Setenv("ARENA_BLOB_DRIVER", "")
	t.Setenv("ARENA_BLOB_FS_ROOT", t.TempDir())

	store, err := Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())
}

func TestOpenMemory(t *testing.T) {
	t.Setenv("ARENA_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Setenv("ARENA_BLOB_DRIVER", "tape")
	_, err := Open(context.Background())
	assert.Error(t, err)
}
