package storage

import (
	"context"
	"testing"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest builds each backend against ephemeral state so the same
// contract assertions run across all of them.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"memory": NewMemoryStore(),
		"s3":     NewS3Store("test-bucket", "companion", NewMockS3Client()),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("has on missing key", func(t *testing.T) {
				exists, err := store.Has(ctx, "missing.json")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("get on missing key is NotFound", func(t *testing.T) {
				_, err := store.Get(ctx, "missing.json")
				assert.True(t, apperrors.IsNotFound(err))
			})

			t.Run("delete on missing key is NotFound", func(t *testing.T) {
				err := store.Delete(ctx, "missing.json")
				assert.True(t, apperrors.IsNotFound(err))
			})

			t.Run("set then get round trips", func(t *testing.T) {
				require.NoError(t, store.Set(ctx, "chatHistory.json", []byte(`[{"text":"hi"}]`)))

				exists, err := store.Has(ctx, "chatHistory.json")
				require.NoError(t, err)
				assert.True(t, exists)

				value, err := store.Get(ctx, "chatHistory.json")
				require.NoError(t, err)
				assert.Equal(t, []byte(`[{"text":"hi"}]`), value)
			})

			t.Run("set is an upsert", func(t *testing.T) {
				require.NoError(t, store.Set(ctx, "quiz.json", []byte("v1")))
				require.NoError(t, store.Set(ctx, "quiz.json", []byte("v2")))

				value, err := store.Get(ctx, "quiz.json")
				require.NoError(t, err)
				assert.Equal(t, []byte("v2"), value)
			})

			t.Run("hierarchical keys create intermediate structure", func(t *testing.T) {
				require.NoError(t, store.Set(ctx, "images/photo.json", []byte(`{"width":640}`)))

				value, err := store.Get(ctx, "images/photo.json")
				require.NoError(t, err)
				assert.Equal(t, []byte(`{"width":640}`), value)
			})

			t.Run("delete removes the key", func(t *testing.T) {
				require.NoError(t, store.Set(ctx, "temp.json", []byte("x")))
				require.NoError(t, store.Delete(ctx, "temp.json"))

				exists, err := store.Has(ctx, "temp.json")
				require.NoError(t, err)
				assert.False(t, exists)

				assert.True(t, apperrors.IsNotFound(store.Delete(ctx, "temp.json")))
			})
		})
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte("immutable")
	require.NoError(t, store.Set(ctx, "k", original))
	original[0] = 'X'

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), value)

	// Mutating the returned slice must not affect the stored value either.
	value[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func TestS3StorePrefix(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	store := NewS3Store("bucket", "companion/user1", client)

	require.NoError(t, store.Set(ctx, "userProfile.json", []byte("{}")))

	_, exists := client.storage["bucket/companion/user1/userProfile.json"]
	assert.True(t, exists, "keys should be namespaced under the configured prefix")
}
