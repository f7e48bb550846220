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
	payload := []byte("<html>content</html>")
	uri, err := store.PutObject(context.Background(), "snapshots/a1/abc.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/a1/abc.html", uri)

	payload[1] = 'H'
	got, ok := store.Object("snapshots/a1/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html>content</html>", string(got))

	got[0] = 'X'
	again, _ := store.Object("snapshots/a1/abc.html")
	require.Equal(t, byte('<'), again[0])
	require.Equal(t, 1, store.Len())

	_, ok = store.Object("missing")
	require.False(t, ok)
}
