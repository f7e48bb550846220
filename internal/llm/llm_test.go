package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/hash/sha256"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Model, c.Model())
	require.Equal(t, 5*time.Minute, c.timeout)
}

func TestClientGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"` + req.Messages[0].Content + `"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "secret", BaseURL: srv.URL + "/", RateLimitRPM: 6000})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), Prompt{System: "sys", User: "world"})
	require.NoError(t, err)
	require.Equal(t, "hello world", out)
}

func TestClientGenerateAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, RateLimitRPM: 6000})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Prompt{User: "x"})
	require.ErrorContains(t, err, "status 503")
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestClientGenerateTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond, RateLimitRPM: 6000})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Prompt{User: "x"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	val, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCachedGeneratorServesRepeats(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{out: "answer"}
	cached := NewCachedGenerator(gen, NewMemoryCache(), sha256.New(), time.Hour, "m", zap.NewNop())

	for i := 0; i < 3; i++ {
		out, err := cached.Generate(context.Background(), Prompt{User: "same"})
		require.NoError(t, err)
		require.Equal(t, "answer", out)
	}
	require.EqualValues(t, 1, gen.calls.Load())

	_, err := cached.Generate(context.Background(), Prompt{User: "different"})
	require.NoError(t, err)
	require.EqualValues(t, 2, gen.calls.Load())
}

func TestCachedGeneratorDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{err: errors.New("boom")}
	cached := NewCachedGenerator(gen, NewMemoryCache(), sha256.New(), time.Hour, "m", nil)

	_, err := cached.Generate(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	_, err = cached.Generate(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	require.EqualValues(t, 2, gen.calls.Load())
}

func TestCachedGeneratorToleratesRedisOutage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close() //nolint:errcheck

	gen := &countingGenerator{out: "fresh"}
	cached := NewCachedGenerator(gen, NewRedisCache(client, "siteaudit:llm:"), sha256.New(), time.Hour, "m", zap.NewNop())

	out, err := cached.Generate(context.Background(), Prompt{User: "x"})
	require.NoError(t, err)
	require.Equal(t, "fresh", out)
}

type countingGenerator struct {
	calls atomic.Int64
	out   string
	err   error
}

func (g *countingGenerator) Generate(context.Context, Prompt) (string, error) {
	g.calls.Add(1)
	return g.out, g.err
}
