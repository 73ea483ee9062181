package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("png-bytes")
	uri, err := store.PutObject(context.Background(), "screenshots/2025-01-02/login-1.png", "image/png", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://screenshots/2025-01-02/login-1.png", uri)

	payload[0] = 'P'
	stored, ok := store.Object("screenshots/2025-01-02/login-1.png")
	require.True(t, ok)
	require.Equal(t, "png-bytes", string(stored))
	require.Equal(t, []string{"screenshots/2025-01-02/login-1.png"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "image/png", nil)
	require.Error(t, err)
}
