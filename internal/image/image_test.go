package image

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	backend := storage.NewMemoryStore()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Service: "test"})
	return NewStore(backend, log), backend
}

func galleryRef(path string) Ref {
	return Ref{Path: path, Width: 640, Height: 480, MIMEType: JPEG}
}

func TestSaveFromGallery(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/holiday.jpg"), []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(saved.Path, Directory))
	assert.True(t, strings.HasSuffix(saved.Path, ".jpg"))
	assert.NotEqual(t, "gallery/holiday.jpg", saved.Path)
	assert.Equal(t, 640, saved.Width)
	assert.Equal(t, 480, saved.Height)
	assert.Equal(t, JPEG, saved.MIMEType)

	blob, err := backend.Get(ctx, saved.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), blob)

	exists, err := backend.Has(ctx, sidecarKey(saved.Path))
	require.NoError(t, err)
	assert.True(t, exists, "sidecar should be written alongside the blob")
}

func TestSaveFromGalleryUniqueStems(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first, err := store.SaveFromGallery(ctx, galleryRef("gallery/same.png"), []byte("a"))
	require.NoError(t, err)
	second, err := store.SaveFromGallery(ctx, galleryRef("gallery/same.png"), []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
}

func TestSaveFromGalleryRejectsBadPaths(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, path := range []string{
		"",
		"   ",
		"gallery/notes.txt",
		"gallery/.jpg",
		"gallery/archive.pdf",
	} {
		_, err := store.SaveFromGallery(ctx, galleryRef(path), []byte("x"))
		assert.True(t, apperrors.IsInvalidArgument(err), "path %q should be rejected", path)
	}
}

func TestGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/cat.gif"), []byte("gif"))
	require.NoError(t, err)

	got, err := store.Get(ctx, Ref{Path: saved.Path})
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, GIF, got.MIMEType)
}

func TestGetMissingIsInvalidArgument(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Get(ctx, Ref{Path: "images/missing.png"})
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestHasRequiresBothHalves(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/dog.jpeg"), []byte("bytes"))
	require.NoError(t, err)

	exists, err := store.Has(ctx, saved)
	require.NoError(t, err)
	assert.True(t, exists)

	// Orphan the blob by removing the sidecar directly.
	require.NoError(t, backend.Delete(ctx, sidecarKey(saved.Path)))

	exists, err = store.Has(ctx, saved)
	require.NoError(t, err)
	assert.False(t, exists, "a half-missing pair should read as absent")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/pic.png"), []byte("bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, saved))

	for _, key := range []string{saved.Path, sidecarKey(saved.Path)} {
		exists, err := backend.Has(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)
	}

	assert.True(t, apperrors.IsInvalidArgument(store.Delete(ctx, saved)),
		"deleting an already-deleted image should fail fast")
}

func TestDeleteRemovesSurvivorOfCorruptedPair(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/pic.png"), []byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, backend.Delete(ctx, saved.Path))

	require.NoError(t, store.Delete(ctx, saved))

	exists, err := backend.Has(ctx, sidecarKey(saved.Path))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	saved, err := store.SaveFromGallery(ctx, galleryRef("gallery/pic.png"), []byte("binary-image-data"))
	require.NoError(t, err)

	encoded, err := store.Load(ctx, saved)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("binary-image-data"), decoded)

	_, err = store.Load(ctx, Ref{Path: "images/gone.png"})
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestSidecarKey(t *testing.T) {
	assert.Equal(t, "images/a.json", sidecarKey("images/a.png"))
	assert.Equal(t, "images/b.json", sidecarKey("images/b.jpeg"))
}
