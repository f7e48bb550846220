package gcs

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    r,
	}
}

func newClient(t *testing.T, rt roundTripperFunc) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{Transport: rt}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{}`), nil
	})
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsSnapshot(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	client := newClient(t, func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			body += string(data)
		}
		return jsonResponse(r, http.StatusOK, `{"bucket":"snapshots","name":"audits/a1/abc.html"}`), nil
	})
	store, err := New(client, Config{Bucket: "snapshots"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/audits/a1/abc.html", "text/html", strings.NewReader("<html>snap</html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://snapshots/audits/a1/abc.html", uri)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	require.Contains(t, paths[0], "/b/snapshots/o")
	require.Contains(t, body, "<html>snap</html>")
	require.Contains(t, body, snapshotCacheControl)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{}`), nil
	})
	store, err := New(client, Config{Bucket: "snapshots"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(r *http.Request) (*http.Response, error) {
		require.Contains(t, r.URL.Path, "/storage/v1/b/snapshots")
		return jsonResponse(r, http.StatusOK, `{"name":"snapshots"}`), nil
	})
	store, err := New(client, Config{Bucket: "snapshots"})
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	failing := newClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusNotFound, `{"error":{"code":404,"message":"no bucket"}}`), nil
	})
	store, err = New(failing, Config{Bucket: "snapshots"})
	require.NoError(t, err)
	require.ErrorContains(t, store.Ping(context.Background()), "get bucket snapshots")
}
