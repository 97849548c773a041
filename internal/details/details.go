// Package details scrapes a single event page for the fields shown when a
// user asks about one event.
package details

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/pkg/models"
)

var (
	titleSelectors       = []string{"h1", `[data-testid*="title"]`, ".event-title"}
	descriptionSelectors = []string{".event-description", ".description", `[data-testid*="description"]`, ".event-details", ".about-event"}
	locationSelectors    = []string{`.location, .venue, [data-testid*="location"]`, `[class*="location"]`}

	dateTimeSelector     = `.date, .time, .datetime, [data-testid*="date"], [data-testid*="time"]`
	registrationSelector = `a[href*="register"], a[href*="rsvp"], .register-button a, .rsvp-button a`
	imageSelector        = `.event-image img, .cover-image img, [data-testid*="image"] img`

	dateText  = regexp.MustCompile(`[A-Za-z]+ \d{1,2},? \d{4}`)
	timeText  = regexp.MustCompile(`\d{1,2}:\d{2}\s*(?:[aApP][mM])?`)
	hostLine  = regexp.MustCompile(`(?i)^(?:hosted|presented) by\s*(.*)$`)
	attendees = regexp.MustCompile(`(\d[\d,]*)\s+Going`)
)

const (
	minDescription = 50
	maxHosts       = 5
)

type Client struct {
	fetcher fetch.Fetcher
}

func New(f fetch.Fetcher) *Client {
	return &Client{fetcher: f}
}

// Get fetches url in HTTP mode and extracts its details.
func (c *Client) Get(ctx context.Context, url string) (models.EventDetails, error) {
	doc, err := c.fetcher.Fetch(ctx, url, fetch.ModeHTTP)
	if err != nil {
		return models.EventDetails{}, fmt.Errorf("fetching event details: %w", err)
	}
	d := Extract(doc)
	if d.Title == "" {
		return d, fmt.Errorf("no event title on %s", doc.URL)
	}
	return d, nil
}

// Extract reads the event fields from an already fetched page. Missing fields
// are left empty.
func Extract(doc *fetch.Document) models.EventDetails {
	d := models.EventDetails{URL: doc.URL.String()}
	root := doc.Doc.Selection

	for _, s := range titleSelectors {
		if d.Title = fetch.VisibleText(root.Find(s).First()); d.Title != "" {
			break
		}
	}
	d.Description = description(doc)
	for _, s := range locationSelectors {
		if d.Location = fetch.VisibleText(root.Find(s).First()); d.Location != "" {
			break
		}
	}

	if when := fetch.VisibleText(root.Find(dateTimeSelector).First()); when != "" {
		d.Date = dateText.FindString(when)
		d.Time = strings.TrimSpace(timeText.FindString(when))
	}

	body := root.Find("body")
	d.Hosts = hosts(fetch.Lines(body))
	if m := attendees.FindStringSubmatch(fetch.VisibleText(body)); m != nil {
		d.Attendees, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}

	if href, ok := root.Find(registrationSelector).First().Attr("href"); ok {
		d.RegistrationURL = doc.Resolve(href)
	}
	if src, ok := root.Find(imageSelector).First().Attr("src"); ok {
		d.Image = doc.Resolve(src)
	} else if og, ok := root.Find(`meta[property="og:image"]`).Attr("content"); ok {
		d.Image = doc.Resolve(og)
	}
	return d
}

// description converts the first substantial description block to Markdown,
// falling back to the page's long paragraphs.
func description(doc *fetch.Document) string {
	conv := md.NewConverter(doc.URL.Scheme+"://"+doc.URL.Host, true, nil)
	for _, s := range descriptionSelectors {
		sel := doc.Doc.Find(s).First()
		if len(fetch.VisibleText(sel)) <= minDescription {
			continue
		}
		if out := strings.TrimSpace(conv.Convert(sel)); out != "" {
			return out
		}
	}

	var paras []string
	doc.Doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := fetch.VisibleText(p); len(t) > minDescription {
			paras = append(paras, t)
		}
	})
	return strings.Join(paras, "\n\n")
}

// hosts collects names following "Hosted by" or "Presented by" lines. A bare
// label takes the next line as the name.
func hosts(lines []string) []string {
	var out []string
	seen := map[string]bool{}
	for i, line := range lines {
		m := hostLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" && i+1 < len(lines) {
			name = lines[i+1]
		}
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
		if len(out) == maxHosts {
			break
		}
	}
	return out
}
