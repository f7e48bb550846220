package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := auditsTotal
	Init()

	require.NotNil(t, first)
	require.Same(t, first, auditsTotal)
	require.NotNil(t, pagesTotal)
	require.NotNil(t, strategyFailuresTotal)
	require.NotNil(t, aiAnalysisTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObservers(t *testing.T) {
	Init()

	ObserveAudit("completed")
	ObserveAudit("completed")
	require.InDelta(t, 2, testutil.ToFloat64(auditsTotal.WithLabelValues("completed")), 0)

	ObservePage("https://Shop.Example.com/a", "fallback", "ok", 512)
	ObservePage("https://shop.example.com/b", "fallback", "error", 0)
	require.InDelta(t, 1, testutil.ToFloat64(pagesTotal.WithLabelValues("fallback", "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pagesTotal.WithLabelValues("fallback", "error")), 0)
	require.InDelta(t, 512, testutil.ToFloat64(crawledBytesTotal.WithLabelValues("shop.example.com")), 0)

	ObserveStrategyFailure("primary", "driver_unavailable")
	ObserveStrategyFailure("primary", "")
	require.InDelta(t, 1, testutil.ToFloat64(strategyFailuresTotal.WithLabelValues("primary", "driver_unavailable")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(strategyFailuresTotal.WithLabelValues("primary", "unknown")), 0)

	ObserveAIAnalysis("timeout")
	require.InDelta(t, 1, testutil.ToFloat64(aiAnalysisTotal.WithLabelValues("timeout")), 0)

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.InDelta(t, 1, testutil.ToFloat64(activeWorkers), 0)

	ObserveAuditDuration(3 * time.Second)
	require.Equal(t, 1, testutil.CollectAndCount(auditDurationSeconds))

	ObserveRateLimitDelay(150 * time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(rateLimitDelaySeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
