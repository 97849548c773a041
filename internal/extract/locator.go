// Package extract turns rendered feed documents into validated records.
//
// Candidate elements are found by a Locator: an ordered list of strategies,
// most specific first, each followed by a stop predicate over the number of
// candidates collected so far. Extractors then turn each candidate into a
// record or reject it.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/communitybot/feedwatch/internal/fetch"
)

// Candidate is one document element considered for extraction.
type Candidate struct {
	Sel *goquery.Selection
	// Text is the element's visible text with whitespace collapsed.
	Text string
	// Strategy names the locator strategy that produced the candidate.
	Strategy string
}

// Strategy finds candidate elements in a document. Find must not mutate doc.
type Strategy struct {
	Name string
	Find func(doc *fetch.Document) []*goquery.Selection
	// Done reports whether locating stops once total candidates are collected.
	Done func(total int) bool
}

type Locator struct {
	Strategies []Strategy
}

// Locate runs the strategies in order, dropping candidates whose visible text
// repeats an earlier candidate's.
func (l *Locator) Locate(doc *fetch.Document) []Candidate {
	if doc == nil || doc.Doc == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Candidate
	for _, s := range l.Strategies {
		for _, sel := range s.Find(doc) {
			text := fetch.VisibleText(sel)
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			out = append(out, Candidate{Sel: sel, Text: text, Strategy: s.Name})
		}
		if s.Done != nil && s.Done(len(out)) {
			break
		}
	}
	return out
}

// Filter decides whether an element's normalized text qualifies.
type Filter func(text string) bool

// All combines filters.
func All(filters ...Filter) Filter {
	return func(text string) bool {
		for _, f := range filters {
			if f != nil && !f(text) {
				return false
			}
		}
		return true
	}
}

// Contains requires the anchor phrase verbatim. An empty anchor accepts everything.
func Contains(anchor string) Filter {
	return func(text string) bool {
		return anchor == "" || strings.Contains(text, anchor)
	}
}

// Length requires min <= rune count <= max. A max of zero means unbounded.
func Length(min, max int) Filter {
	return func(text string) bool {
		n := utf8.RuneCountInString(text)
		return n >= min && (max == 0 || n <= max)
	}
}

// Keywords requires at least one of include and none of exclude, case-insensitively.
func Keywords(include, exclude []string) Filter {
	return func(text string) bool {
		lower := strings.ToLower(text)
		for _, w := range exclude {
			if strings.Contains(lower, w) {
				return false
			}
		}
		if len(include) == 0 {
			return true
		}
		for _, w := range include {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
}

// FirstSelector returns the qualifying elements of the first selector in
// selectors that yields any.
func FirstSelector(selectors []string, keep Filter) func(*fetch.Document) []*goquery.Selection {
	return func(doc *fetch.Document) []*goquery.Selection {
		for _, sel := range selectors {
			if found := matching(doc.Doc.Find(sel), keep); len(found) > 0 {
				return found
			}
		}
		return nil
	}
}

// Scan returns every element matched by selector that qualifies.
func Scan(selector string, keep Filter) func(*fetch.Document) []*goquery.Selection {
	return func(doc *fetch.Document) []*goquery.Selection {
		return matching(doc.Doc.Find(selector), keep)
	}
}

func matching(sel *goquery.Selection, keep Filter) []*goquery.Selection {
	var out []*goquery.Selection
	sel.Each(func(_ int, s *goquery.Selection) {
		if keep(fetch.VisibleText(s)) {
			out = append(out, s)
		}
	})
	return out
}

// OneDeadline rejects text holding several "Due in" deadlines, the mark of a
// wrapper around more than one bounty card.
func OneDeadline(text string) bool {
	return len(dueIn.FindAllStringIndex(text, 2)) < 2
}

// OneDay rejects text naming more than one calendar day.
func OneDay(text string) bool {
	return distinctDays(text) < 2
}

func atLeast(n int) func(int) bool {
	return func(total int) bool { return total >= n }
}

func always(int) bool { return true }

var bountySelectors = []string{
	`[class*="bounty"]`,
	`[class*="listing"]`,
	`[class*="opportunity"]`,
	`[class*="card"]`,
	`[class*="item"]`,
	`[class*="post"]`,
	`[class*="job"]`,
	`article`,
	`li`,
	`section`,
	`[class*="grid"]`,
	`[class*="flex"]`,
	`[class*="container"]`,
	`[class*="wrapper"]`,
	`div`,
	`a`,
}

// minBountyCandidates is how many selector hits suffice before the
// whole-document scan is skipped.
const minBountyCandidates = 10

// BountyLocator locates bounty cards that mention anchor.
func BountyLocator(anchor string) *Locator {
	has := All(Contains(anchor), OneDeadline)
	return &Locator{Strategies: []Strategy{
		{
			Name: "selectors",
			Find: FirstSelector(bountySelectors, All(has, Length(10, 2000))),
			Done: atLeast(minBountyCandidates),
		},
		{
			Name: "document",
			Find: Scan("body *", All(has, Length(20, 2000))),
			Done: atLeast(1),
		},
		{
			Name: "interactive",
			Find: Scan(`a, button, [role="button"]`, All(has, Length(10, 200))),
			Done: always,
		},
	}}
}

var eventSelectors = []string{
	`[data-testid*="event"]`,
	`.event-card`,
	`.event-item`,
	`[class*="event"]`,
	`article`,
	`.card`,
	`.item`,
	`[class*="listing"]`,
	`[class*="post"]`,
}

var (
	eventWords = []string{
		"event", "meetup", "meeting", "workshop", "talks", "networking",
		"hackathon", "friday", "talent hub", "dogpatch", "colosseum",
	}
	chromeWords = []string{
		"calendar", "explore", "sign in", "pending approval", "admin", "you have", "0 events",
	}
)

// EventLocator locates event cards. anchor may be empty. Elements naming
// several days are listing wrappers and never qualify, so the selector stage
// moves on to a selector that matches the cards themselves.
func EventLocator(anchor string) *Locator {
	has := All(Contains(anchor), OneDay)
	return &Locator{Strategies: []Strategy{
		{
			Name: "selectors",
			Find: FirstSelector(eventSelectors, All(has, Length(10, 2000))),
			Done: atLeast(1),
		},
		{
			Name: "document",
			Find: Scan("body *", All(has, Length(20, 500), Keywords(eventWords, chromeWords))),
			Done: atLeast(1),
		},
		{
			Name: "interactive",
			Find: Scan(`a, button, [role="button"]`, All(has, Length(10, 200), Keywords(nil, chromeWords))),
			Done: always,
		},
	}}
}
