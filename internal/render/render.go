// Package render turns a script-driven page into its final markup using a
// headless browser.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
)

// ErrAcquire wraps failures to start the rendering client. It is fatal to a run.
var ErrAcquire = errors.New("acquire rendering client")

// Renderer returns the markup of a page after client-side scripts ran.
// Implementations hold an external process and must be closed.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// Factory acquires a Renderer.
type Factory func(ctx context.Context) (Renderer, error)

// Options configures a Chrome renderer.
type Options struct {
	Headless bool
	ExecPath string
	Settle   time.Duration // wait after navigation before reading the DOM
	Timeout  time.Duration // per page, including Settle
	Logger   *zap.Logger
}

// Chrome renders pages in one long-lived headless Chrome tab.
type Chrome struct {
	opts          Options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// NewChrome starts a browser. The returned Chrome must be closed.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}

	c := &Chrome{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logging.OrNop(opts.Logger),
	}
	c.logger.Debug("browser started", zap.Bool("headless", opts.Headless))
	return c, nil
}

// ChromeFactory returns a Factory starting Chrome with opts.
func ChromeFactory(opts Options) Factory {
	return func(ctx context.Context) (Renderer, error) {
		c, err := NewChrome(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Render navigates to url, waits for the settle interval and returns the page HTML.
func (c *Chrome) Render(ctx context.Context, url string) (string, error) {
	start := time.Now()
	defer func() { observability.RenderDuration.Observe(time.Since(start).Seconds()) }()

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = c.opts.Settle + 30*time.Second
	}
	runCtx, cancel := context.WithTimeout(c.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(c.opts.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (c *Chrome) Close() error {
	if c.browserCancel == nil {
		return nil
	}
	c.browserCancel()
	c.allocCancel()
	c.browserCancel = nil
	c.logger.Debug("browser stopped")
	return nil
}
