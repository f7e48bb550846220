package analysis

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

//go:embed prompts/default.txt
var defaultTemplate string

const maxTemplateBytes = 1 << 20

// DefaultTemplate returns the built-in prompt template.
func DefaultTemplate() string {
	return defaultTemplate
}

// ObjectOpener reads a GCS object.
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// TemplateSource loads the prompt template once and caches it for the life
// of the process. Source may be empty (built-in template), a file path, an
// http(s) URL, or a gs://bucket/object URI. A load failure falls back to the
// built-in template and is not retried.
type TemplateSource struct {
	source     string
	httpClient *http.Client
	openGCS    ObjectOpener
	logger     *zap.Logger

	once     sync.Once
	template string
}

// NewTemplateSource builds a TemplateSource.
func NewTemplateSource(source string, logger *zap.Logger) *TemplateSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateSource{
		source:     strings.TrimSpace(source),
		httpClient: http.DefaultClient,
		openGCS:    openGCSObject,
		logger:     logger,
	}
}

// Template returns the cached template, loading it on first use.
func (t *TemplateSource) Template(ctx context.Context) string {
	t.once.Do(func() {
		tmpl, err := t.load(ctx)
		if err != nil {
			t.logger.Warn("prompt template load failed; using built-in template",
				zap.String("source", t.source),
				zap.Error(err),
			)
			tmpl = defaultTemplate
		}
		if !strings.Contains(tmpl, "{url}") {
			t.logger.Warn("prompt template has no {url} placeholder", zap.String("source", t.source))
		}
		t.template = tmpl
	})
	return t.template
}

func (t *TemplateSource) load(ctx context.Context) (string, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch src := t.source; {
	case src == "":
		return defaultTemplate, nil
	case strings.HasPrefix(src, "gs://"):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(src, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return "", fmt.Errorf("invalid gcs uri %q", src)
		}
		rc, err = t.openGCS(ctx, bucket, object)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		rc, err = t.openHTTP(ctx, src)
	default:
		rc, err = os.Open(strings.TrimPrefix(src, "file://"))
	}
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxTemplateBytes))
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("template %q is empty", t.source)
	}
	return string(data), nil
}

func (t *TemplateSource) openHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build template request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("fetch template: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func openGCSObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
