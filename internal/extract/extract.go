package extract

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/pkg/logger"
)

// ErrRejected marks a candidate that is not a usable record.
var ErrRejected = errors.New("candidate rejected")

func reject(reason string) error {
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

// Extractor turns one candidate into a record.
type Extractor[T any] interface {
	Extract(doc *fetch.Document, c Candidate, fetchedAt time.Time) (T, error)
}

// Result summarizes one extraction pass.
type Result[T any] struct {
	Records  []T
	Rejected int
	// Malformed counts candidates whose extraction failed outright.
	Malformed int
}

// Run extracts every candidate in order. A candidate that fails is skipped
// and never aborts the pass.
func Run[T any](doc *fetch.Document, cands []Candidate, ex Extractor[T], fetchedAt time.Time) Result[T] {
	var res Result[T]
	for i, c := range cands {
		rec, err := safeExtract(ex, doc, c, fetchedAt)
		switch {
		case err == nil:
			res.Records = append(res.Records, rec)
		case errors.Is(err, ErrRejected):
			res.Rejected++
			logger.Debug("candidate rejected", "index", i, "strategy", c.Strategy, "reason", err)
		default:
			res.Malformed++
			logger.Warn("skipping malformed candidate", "index", i, "strategy", c.Strategy, "error", err)
		}
	}
	return res
}

func safeExtract[T any](ex Extractor[T], doc *fetch.Document, c Candidate, fetchedAt time.Time) (rec T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract panic: %v", r)
		}
	}()
	return ex.Extract(doc, c, fetchedAt)
}

// Dedup keeps the first record for each key.
func Dedup[T any](records []T, key func(T) string) []T {
	seen := make(map[string]bool, len(records))
	out := make([]T, 0, len(records))
	for _, r := range records {
		k := key(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// CompilePatterns compiles detail-link patterns, returning the first error.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling link pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// findLink picks the record link for a candidate: a detail-shaped link in or
// around the element first, then any link in the element or its enclosing
// elements, then "" so the caller can fall back to the feed URL. The walk
// stops below <body> so site navigation is never taken for a record link.
func findLink(doc *fetch.Document, sel *goquery.Selection, details []*regexp.Regexp) string {
	own := links(doc, sel)
	if href := firstDetail(own, details); href != "" {
		return href
	}
	if len(own) > 0 {
		return own[0]
	}
	for p := sel.Parent(); p.Length() > 0 && !p.Is("body, html"); p = p.Parent() {
		around := links(doc, p)
		if href := firstDetail(around, details); href != "" {
			return href
		}
		if len(around) > 0 {
			return around[0]
		}
	}
	return ""
}

func links(doc *fetch.Document, sel *goquery.Selection) []string {
	var out []string
	add := func(_ int, s *goquery.Selection) {
		if href := doc.Resolve(s.AttrOr("href", "")); href != "" {
			out = append(out, href)
		}
	}
	sel.Filter("a[href]").Each(add)
	sel.Find("a[href]").Each(add)
	return out
}

func firstDetail(hrefs []string, details []*regexp.Regexp) string {
	for _, href := range hrefs {
		for _, re := range details {
			if re.MatchString(href) {
				return href
			}
		}
	}
	return ""
}

// firstText returns the first non-empty visible text among sel's matches of selector.
func firstText(sel *goquery.Selection, selector string) string {
	var text string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = fetch.VisibleText(s)
		return text == ""
	})
	return text
}
