package links

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustOrigin(t *testing.T, raw string) Origin {
	t.Helper()
	o, err := ParseOrigin(raw)
	require.NoError(t, err)
	return o
}

func TestResolve(t *testing.T) {
	t.Parallel()

	start := mustOrigin(t, "https://a.com/")
	base := "https://a.com/dir/page"

	testCases := []struct {
		name string
		link string
		want string
		kind Kind
	}{
		{"parent relative", "../x", "https://a.com/x", Internal},
		{"sibling relative", "other", "https://a.com/dir/other", Internal},
		{"root relative", "/about", "https://a.com/about", Internal},
		{"absolute same origin", "https://a.com/contact#team", "https://a.com/contact", Internal},
		{"explicit default port", "https://a.com:443/p", "https://a.com:443/p", Internal},
		{"cross origin", "https://b.com/y", "https://b.com/y", External},
		{"same host other scheme", "http://a.com/y", "http://a.com/y", External},
		{"same host other port", "https://a.com:8443/y", "https://a.com:8443/y", External},
		{"protocol relative", "//cdn.a.com/lib.js", "https://cdn.a.com/lib.js", External},
		{"anchor", "#top", "", Skip},
		{"empty", "   ", "", Skip},
		{"javascript", "javascript:void(0)", "", Skip},
		{"mailto", "mailto:hi@a.com", "", Skip},
		{"tel", "TEL:+123", "", Skip},
		{"ftp", "ftp://a.com/file", "", Skip},
		{"malformed", "http://[::1", "", Skip},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, kind := Resolve(tc.link, base, start)
			require.Equal(t, tc.kind, kind)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_BadBase(t *testing.T) {
	t.Parallel()

	_, kind := Resolve("/x", "not a url", mustOrigin(t, "https://a.com"))
	require.Equal(t, Skip, kind)
}

func TestParseOrigin(t *testing.T) {
	t.Parallel()

	o := mustOrigin(t, "HTTP://Example.com/path")
	require.Equal(t, Origin{Scheme: "http", Host: "example.com", Port: "80"}, o)
	require.Equal(t, "http://example.com:80", o.String())

	_, err := ParseOrigin("example.com/path")
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"HTTPS://Example.com:443":          "https://example.com/",
		"http://example.com:80/a#frag":     "http://example.com/a",
		"https://example.com/a?b=2&a=1":    "https://example.com/a?a=1&b=2",
		"https://example.com:8443/x/":      "https://example.com:8443/x/",
	}
	for in, want := range testCases {
		got, err := Normalize(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}

	_, err := Normalize("http://[::1")
	require.Error(t, err)
}

// Fuzz test for Resolve: it must never panic and only return absolute URLs.
func FuzzResolve(f *testing.F) {
	for _, seed := range []string{"../x", "/a", "https://b.com", "#", "javascript:x", "%zz"} {
		f.Add(seed)
	}
	start := Origin{Scheme: "https", Host: "a.com", Port: "443"}
	f.Fuzz(func(t *testing.T, link string) {
		got, kind := Resolve(link, "https://a.com/dir/page", start)
		if kind == Skip && got != "" {
			t.Fatalf("skip with url %q", got)
		}
		if kind != Skip && got == "" {
			t.Fatalf("kind %v with empty url", kind)
		}
	})
}
