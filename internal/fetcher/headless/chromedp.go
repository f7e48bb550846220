// Package headless opens chromedp browser sessions for the primary crawl.
package headless

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/site-auditor/internal/crawl"
)

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultScreenshotQuality = 90
)

// Config controls the browser sessions.
type Config struct {
	ExecPath          string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ScreenshotQuality int
}

// Browser implements crawl.Browser using chromedp and a local Chrome.
type Browser struct {
	cfg Config
}

// New builds a Browser. Nothing is started until Open.
func New(cfg Config) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ScreenshotQuality <= 0 || cfg.ScreenshotQuality > 100 {
		cfg.ScreenshotQuality = defaultScreenshotQuality
	}
	return &Browser{cfg: cfg}
}

// Open launches a browser process scoped to ctx. Launch failures wrap
// crawl.ErrDriverUnavailable.
func (b *Browser) Open(ctx context.Context) (crawl.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: start browser: %v", crawl.ErrDriverUnavailable, err)
	}
	return &Session{
		cfg:           b.cfg,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Session is one running browser. Each Fetch uses a fresh tab.
type Session struct {
	cfg           Config
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Fetch navigates a new tab to req.URL and captures the rendered DOM.
func (s *Session) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	if err := s.browserCtx.Err(); err != nil {
		return crawl.FetchResponse{}, fmt.Errorf("%w: %v", crawl.ErrDriverUnavailable, err)
	}
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()

	navCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	resp, err := chromedp.RunResponse(navCtx, s.setupAction(), chromedp.Navigate(req.URL))
	if err != nil {
		if s.browserCtx.Err() != nil {
			return crawl.FetchResponse{}, fmt.Errorf("%w: %v", crawl.ErrDriverUnavailable, err)
		}
		return crawl.FetchResponse{URL: req.URL, NoResponse: true}, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	var (
		html     string
		finalURL string
	)
	if err := chromedp.Run(navCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return crawl.FetchResponse{URL: req.URL, Body: []byte(html)}, fmt.Errorf("capture dom: %w", err)
	}

	out := crawl.FetchResponse{
		URL:      finalURL,
		Body:     []byte(html),
		Duration: time.Since(start),
	}
	if resp == nil {
		out.NoResponse = true
	} else {
		out.StatusCode = int(resp.Status)
		out.ContentType = resp.MimeType
	}

	if req.Screenshot && !out.NoResponse {
		var buf []byte
		// Screenshot failures leave the page usable.
		if err := chromedp.Run(navCtx, chromedp.FullScreenshot(&buf, s.cfg.ScreenshotQuality)); err == nil {
			out.Screenshot = EncodeScreenshot(buf)
		}
	}
	return out, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// EncodeScreenshot renders JPEG bytes as an embeddable data URI.
func EncodeScreenshot(jpeg []byte) string {
	if len(jpeg) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
