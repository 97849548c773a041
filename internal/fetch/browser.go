package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/communitybot/feedwatch/pkg/logger"
)

const captureTimeout = 30 * time.Second

// fetchBrowser renders url in a fresh headless browser. The allocator and
// browser contexts are cancelled on every return path, which kills the
// browser process even when navigation never succeeded.
func (c *Client) fetchBrowser(ctx context.Context, url string) (*Document, error) {
	if c.browser.Disabled {
		return nil, ErrBrowserDisabled
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-zygote", true),
		chromedp.WindowSize(1280, 720),
	)
	if c.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.userAgent))
	}
	if c.browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.browser.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// Start the browser on the undecorated context: the first Run owns the
	// browser lifetime, so per-step timeouts must only be applied afterwards.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	if err := c.navigate(browserCtx, url); err != nil {
		return nil, err
	}
	c.waitForContent(browserCtx, url)

	captureCtx, cancelCapture := context.WithTimeout(browserCtx, captureTimeout)
	defer cancelCapture()
	var (
		html     string
		location string
	)
	if err := chromedp.Run(captureCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("capturing document: %w", err)
	}
	if location == "" {
		location = url
	}
	return NewDocument(location, strings.NewReader(html))
}

func (c *Client) navigate(browserCtx context.Context, url string) error {
	attempts := 1 + max(c.browser.NavigationRetries, 0)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		navCtx, cancel := context.WithTimeout(browserCtx, c.browser.NavigationTimeout)
		err = chromedp.Run(navCtx, chromedp.Navigate(url))
		cancel()
		if err == nil {
			return nil
		}
		if !IsTimeout(err) || browserCtx.Err() != nil {
			break
		}
		logger.Warn("browser navigation timed out", "url", url, "attempt", attempt, "of", attempts)
	}
	return fmt.Errorf("navigating: %w", err)
}

// waitForContent polls until client-side rendering has produced enough text.
// Running out of time here is not fatal; whatever rendered is captured.
func (c *Client) waitForContent(browserCtx context.Context, url string) {
	settleCtx, cancel := context.WithTimeout(browserCtx, c.browser.SettleTimeout)
	defer cancel()

	expr := fmt.Sprintf(`document.body !== null && document.body.innerText.length > %d`, c.browser.MinTextLength)
	var settled bool
	start := time.Now()
	err := chromedp.Run(settleCtx, chromedp.Poll(expr, &settled, chromedp.WithPollingInterval(500*time.Millisecond)))
	if err != nil {
		logger.Warn("timed out waiting for rendered content", "url", url, "waited", time.Since(start).Truncate(time.Millisecond), "error", err)
		return
	}
	logger.Debug("rendered content settled", "url", url, "waited", time.Since(start).Truncate(time.Millisecond))
}
