package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-auditor/internal/crawl"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 is one token every 100ms.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/next"))
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
	require.Equal(t, 1, l.Hosts())
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.com/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.Equal(t, 2, l.Hosts())
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example"))
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	require.False(t, l.Enabled())
	f := &countingFetcher{}
	require.Same(t, crawl.Fetcher(f), l.Fetcher(f))
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return crawl.FetchResponse{URL: req.URL, NoResponse: true}, f.err
	}
	return crawl.FetchResponse{URL: req.URL, StatusCode: 200}, nil
}

func (f *countingFetcher) Close() error { return nil }

type fakeBrowser struct {
	session *countingFetcher
	err     error
}

func (b *fakeBrowser) Open(context.Context) (crawl.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

func TestFetcherWrapper(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1000, Burst: 1})
	next := &countingFetcher{}
	f := l.Fetcher(next)

	resp, err := f.Fetch(context.Background(), crawl.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, int32(1), next.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err = New(Config{RPS: 0.01, Burst: 1}).Fetcher(next).Fetch(ctx, crawl.FetchRequest{URL: "https://example.com/"})
	require.Error(t, err)
	require.True(t, resp.NoResponse)
}

func TestBrowserWrapper(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1000, Burst: 1})
	inner := &countingFetcher{}
	b := l.Browser(&fakeBrowser{session: inner})

	s, err := b.Open(context.Background())
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), crawl.FetchRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Equal(t, int32(1), inner.calls.Load())

	boom := errors.New("no chrome")
	_, err = l.Browser(&fakeBrowser{err: boom}).Open(context.Background())
	require.ErrorIs(t, err, boom)
}
