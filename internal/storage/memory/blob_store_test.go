package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("[1,2]")
	uri, err := store.PutObject(context.Background(), "raw/2022/b/offers.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://raw/2022/b/offers.json", uri)

	payload[0] = '{'
	obj, ok := store.Get("raw/2022/b/offers.json")
	require.True(t, ok)
	require.Equal(t, "[1,2]", string(obj.Data))
	require.Equal(t, "application/json", obj.ContentType)
}

func TestBlobStorePathsSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, p := range []string{"b", "a", "c"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b", "c"}, store.Paths())
}
