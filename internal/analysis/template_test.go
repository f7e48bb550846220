package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTemplateSourceDefault(t *testing.T) {
	t.Parallel()

	src := NewTemplateSource("", zap.NewNop())
	tmpl := src.Template(context.Background())
	require.Equal(t, DefaultTemplate(), tmpl)
	require.Contains(t, tmpl, "{url}")
}

func TestTemplateSourceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Audit {url} please"), 0o600))

	src := NewTemplateSource("file://"+path, nil)
	require.Equal(t, "Audit {url} please", src.Template(context.Background()))

	// Cached for the process lifetime.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o600))
	require.Equal(t, "Audit {url} please", src.Template(context.Background()))
}

func TestTemplateSourceHTTPFetchedOnce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("Remote template for {url}"))
	}))
	defer srv.Close()

	src := NewTemplateSource(srv.URL+"/prompt.txt", nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, "Remote template for {url}", src.Template(context.Background()))
	}
	require.EqualValues(t, 1, hits.Load())
}

func TestTemplateSourceFallsBackOnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := NewTemplateSource(srv.URL, nil)
	require.Equal(t, DefaultTemplate(), src.Template(context.Background()))

	src = NewTemplateSource(filepath.Join(t.TempDir(), "missing.txt"), nil)
	require.Equal(t, DefaultTemplate(), src.Template(context.Background()))
}

func TestTemplateSourceGCS(t *testing.T) {
	t.Parallel()

	src := NewTemplateSource("gs://prompts/seo/v2.txt", nil)
	var gotBucket, gotObject string
	src.openGCS = func(_ context.Context, bucket, object string) (io.ReadCloser, error) {
		gotBucket, gotObject = bucket, object
		return io.NopCloser(strings.NewReader("GCS {url}")), nil
	}
	require.Equal(t, "GCS {url}", src.Template(context.Background()))
	require.Equal(t, "prompts", gotBucket)
	require.Equal(t, "seo/v2.txt", gotObject)

	bad := NewTemplateSource("gs://bucket-only", nil)
	bad.openGCS = func(context.Context, string, string) (io.ReadCloser, error) {
		return nil, errors.New("should not be called")
	}
	require.Equal(t, DefaultTemplate(), bad.Template(context.Background()))
}
