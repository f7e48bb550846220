// Package links resolves hrefs found on a page and classifies them against
// the crawl's starting origin.
package links

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind classifies a resolved link.
type Kind int

// Link kinds.
const (
	Skip Kind = iota
	Internal
	External
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case External:
		return "external"
	default:
		return "skip"
	}
}

var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "sms:"}

// Origin is a scheme+host+port triple with default ports made explicit.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// String renders the origin as scheme://host:port.
func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%s", o.Scheme, o.Host, o.Port)
}

// OriginOf extracts the origin of an absolute http(s) URL.
func OriginOf(u *url.URL) (Origin, bool) {
	if u == nil {
		return Origin{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Origin{}, false
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	return Origin{Scheme: scheme, Host: host, Port: port}, true
}

// ParseOrigin parses raw and returns its origin.
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Origin{}, fmt.Errorf("parse url: %w", err)
	}
	o, ok := OriginOf(u)
	if !ok {
		return Origin{}, fmt.Errorf("url %q has no http(s) origin", raw)
	}
	return o, nil
}

// Resolve turns link, found on the page at pageURL, into an absolute URL and
// classifies it against start. Empty links, fragment-only anchors,
// javascript:/mailto:/tel: targets, non-http schemes and anything that fails
// to parse yield Skip. Resolve never panics on malformed input.
func Resolve(link, pageURL string, start Origin) (string, Kind) {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "#") {
		return "", Skip
	}
	lower := strings.ToLower(link)
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(lower, prefix) {
			return "", Skip
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return "", Skip
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", Skip
	}
	// Root-relative paths resolve against the origin, other relative paths
	// against the page's directory; ResolveReference implements both.
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""

	origin, ok := OriginOf(resolved)
	if !ok {
		return "", Skip
	}
	abs := resolved.String()
	if origin == start {
		return abs, Internal
	}
	return abs, External
}

// Normalize standardizes a URL for visited-set bookkeeping: it lowercases
// scheme and host, drops default ports and the fragment, gives an empty path
// a trailing slash and sorts query parameters.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}
