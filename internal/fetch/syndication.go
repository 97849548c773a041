package fetch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// fetchFeed reads an RSS/Atom/JSON feed and renders its items as article
// cards, so the same locator and extractor run on syndicated and scraped pages.
func (c *Client) fetchFeed(ctx context.Context, url string) (*Document, error) {
	f, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	base := url
	if f.Link != "" {
		base = f.Link
	}
	return NewDocument(base, strings.NewReader(RenderFeed(f, c.loc)))
}

// RenderFeed renders every item of f as an <article> card carrying a heading,
// date and time spans, a link and the item body.
func RenderFeed(f *gofeed.Feed, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	for _, item := range f.Items {
		writeCard(&b, item, loc)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

func writeCard(b *strings.Builder, item *gofeed.Item, loc *time.Location) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return
	}
	b.WriteString(`<article class="feed-item">`)
	fmt.Fprintf(b, "<h3>%s</h3>", html.EscapeString(item.Title))

	if at := itemTime(item); !at.IsZero() {
		at = at.In(loc)
		fmt.Fprintf(b, `<span class="date">%s</span> <span class="time">%s</span>`,
			at.Format("2 Jan 2006"), at.Format("3:04 PM"))
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			fmt.Fprintf(b, ` <span class="author">%s</span>`, html.EscapeString(a.Name))
		}
	}
	for _, cat := range item.Categories {
		fmt.Fprintf(b, ` <span class="category">%s</span>`, html.EscapeString(cat))
	}
	if item.Link != "" {
		fmt.Fprintf(b, `<a href="%s"></a>`, html.EscapeString(item.Link))
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}
	if body != "" {
		fmt.Fprintf(b, `<div class="description">%s</div>`, body)
	}
	b.WriteString("</article>\n")
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
