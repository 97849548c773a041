// Package fetch retrieves rendered documents from external feed pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

type Mode int

const (
	ModeHTTP Mode = iota
	ModeBrowser
	ModeFeed
)

func (m Mode) String() string {
	switch m {
	case ModeHTTP:
		return "http"
	case ModeBrowser:
		return "browser"
	case ModeFeed:
		return "feed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configured mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "http":
		return ModeHTTP, nil
	case "browser":
		return ModeBrowser, nil
	case "feed":
		return ModeFeed, nil
	}
	return 0, fmt.Errorf("unknown fetch mode %q", s)
}

// Fetcher retrieves a document from url using the given mode.
type Fetcher interface {
	Fetch(ctx context.Context, url string, mode Mode) (*Document, error)
}

var ErrBrowserDisabled = errors.New("browser mode disabled")

// FetchError wraps every failure returned by Client.Fetch.
type FetchError struct {
	URL  string
	Mode Mode
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (%s): %v", e.URL, e.Mode, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// IsTimeout reports whether err is a transient timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type BrowserOptions struct {
	Disabled          bool
	ExecPath          string
	NavigationTimeout time.Duration
	NavigationRetries int
	SettleTimeout     time.Duration
	MinTextLength     int
}

type Options struct {
	HTTPTimeout time.Duration
	UserAgent   string
	Browser     BrowserOptions
	// Location renders syndicated item dates; defaults to time.Local.
	Location *time.Location
}

// Client implements Fetcher for all modes.
type Client struct {
	http      *http.Client
	userAgent string
	browser   BrowserOptions
	parser    *gofeed.Parser
	loc       *time.Location
}

func New(opts Options) *Client {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 15 * time.Second
	}
	if opts.Browser.NavigationTimeout <= 0 {
		opts.Browser.NavigationTimeout = 120 * time.Second
	}
	if opts.Browser.SettleTimeout <= 0 {
		opts.Browser.SettleTimeout = 30 * time.Second
	}
	if opts.Browser.MinTextLength <= 0 {
		opts.Browser.MinTextLength = 1000
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	hc := NewHTTPClient(opts.HTTPTimeout)
	parser := gofeed.NewParser()
	parser.Client = hc
	parser.UserAgent = opts.UserAgent
	return &Client{
		http:      hc,
		userAgent: opts.UserAgent,
		browser:   opts.Browser,
		parser:    parser,
		loc:       opts.Location,
	}
}

func (c *Client) Fetch(ctx context.Context, url string, mode Mode) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch mode {
	case ModeHTTP:
		doc, err = c.fetchHTTP(ctx, url)
	case ModeBrowser:
		doc, err = c.fetchBrowser(ctx, url)
	case ModeFeed:
		doc, err = c.fetchFeed(ctx, url)
	default:
		err = fmt.Errorf("unsupported mode")
	}
	if err != nil {
		return nil, &FetchError{URL: url, Mode: mode, Err: err}
	}
	doc.Mode = mode
	return doc, nil
}
