package crawl

import (
	"errors"
	"fmt"
)

// ErrDriverUnavailable marks browser automation that could not start or died
// mid-crawl.
var ErrDriverUnavailable = errors.New("browser driver unavailable")

// Failure kinds.
const (
	KindDriverUnavailable = "driver_unavailable"
	KindTotalCrawlFailure = "total_crawl_failure"
	KindFetchFailed       = "fetch_failed"
	KindCanceled          = "canceled"
)

// Failure is a crawl-level error returned by a strategy or by Chain.
type Failure struct {
	Kind     string
	Strategy string
	Err      error
}

func (f *Failure) Error() string {
	if f.Strategy == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s crawl %s: %v", f.Strategy, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the failure kind carried by err, or "" when err is not a
// *Failure.
func KindOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
