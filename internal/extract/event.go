package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/communitybot/feedwatch/internal/dates"
	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/pkg/models"
)

const (
	dateSelector     = `time[datetime], .date, .event-date, [class*="date"], [class*="time"], [class*="datetime"]`
	timeSelector     = `.time, .event-time, [class*="time"], [class*="datetime"]`
	locationSelector = `.location, .venue, [class*="location"], [class*="venue"], [class*="address"]`
)

const month = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b\.?`

// Date patterns scanned in order when no structured date element exists.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+` + month + `,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b` + month + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b(?:tomorrow|today|tonight|next\s+[a-z]+)\b`),
	regexp.MustCompile(`(?i)\b` + month + `\s+\d{1,2}\b`),
}

var (
	timeRange12 = regexp.MustCompile(`(?i)\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?\s*[-–—]\s*\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?`)
	time12      = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*[ap]\.?m\b\.?`)
	time24      = regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d\b`)
)

type EventExtractor struct {
	Source          models.Source
	Location        *time.Location
	DefaultLocation string
	DetailLinks     []*regexp.Regexp

	rules  []TitleRule
	places []string
	venue  *regexp.Regexp
}

// NewEventExtractor builds an extractor that recognises the given place names
// in free text. Of two places matching at the same offset the earlier wins.
func NewEventExtractor(src models.Source, loc *time.Location, places []string, defaultLocation string, details []*regexp.Regexp) *EventExtractor {
	e := &EventExtractor{
		Source:          src,
		Location:        loc,
		DefaultLocation: defaultLocation,
		DetailLinks:     details,
		rules:           []TitleRule{Heading(eventHeadings), FirstLine},
	}
	var alts []string
	for _, p := range places {
		if p = strings.TrimSpace(p); p != "" {
			e.places = append(e.places, p)
			alts = append(alts, regexp.QuoteMeta(p))
		}
	}
	if len(alts) > 0 {
		e.venue = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return e
}

func (e *EventExtractor) Extract(doc *fetch.Document, c Candidate, fetchedAt time.Time) (models.Event, error) {
	title, _, ok := FirstTitle(c, e.rules)
	if !ok {
		return models.Event{}, reject("no title")
	}
	if err := checkTitle(title); err != nil {
		return models.Event{}, err
	}

	if !OneDay(c.Text) {
		return models.Event{}, reject("several dates, not one card")
	}

	dateText, timeText := e.dateTime(c)
	norm := &dates.Normalizer{Now: func() time.Time { return fetchedAt }, Location: e.Location}
	at := norm.Normalize(dateText, timeText)
	if dates.IsBareClock(dateText) && at.Before(fetchedAt) {
		at = at.AddDate(0, 0, 1)
	}

	link := findLink(doc, c.Sel, e.DetailLinks)
	if link == "" {
		link = e.Source.URL
	}

	return models.Event{
		Title:    title,
		Link:     link,
		StartsAt: at,
		Location: e.location(c),
		Source:   e.Source.Label,
	}, nil
}

func (e *EventExtractor) dateTime(c Candidate) (dateText, timeText string) {
	if el := c.Sel.Find(`time[datetime]`).First(); el.Length() > 0 {
		dateText = strings.TrimSpace(el.AttrOr("datetime", ""))
	}
	if dateText == "" {
		dateText = firstText(c.Sel, dateSelector)
	}
	timeText = firstText(c.Sel, timeSelector)
	if timeText == dateText {
		timeText = ""
	}

	if !isDate(dateText) {
		if _, _, ok := dates.ParseClock(dateText); ok && timeText == "" {
			timeText = dateText
		}
		dateText = scanDate(c.Text)
	}
	if timeText == "" {
		timeText = scanTime(c.Text)
	}
	return dateText, timeText
}

func isDate(s string) bool {
	if s == "" {
		return false
	}
	if dates.IsBareClock(s) {
		return true
	}
	for _, re := range datePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func scanDate(text string) string {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// dayZero anchors relative phrases so that distinctDays is deterministic.
// Tokens that resolve to it are unresolved and not counted.
var (
	dayZero = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	hasYear = regexp.MustCompile(`\d{4}`)
)

// distinctDays counts the calendar days named by non-overlapping date tokens
// in text. Patterns are tried in order, so "Sep 21, 2025" hides "Sep 21".
// Yearless tokens are compared by month and day.
func distinctDays(text string) int {
	norm := &dates.Normalizer{Now: func() time.Time { return dayZero }, Location: time.UTC}
	var spans [][]int
	days := make(map[string]bool)
	for _, re := range datePatterns {
	next:
		for _, m := range re.FindAllStringIndex(text, -1) {
			for _, s := range spans {
				if m[0] < s[1] && s[0] < m[1] {
					continue next
				}
			}
			spans = append(spans, m)
			tok := text[m[0]:m[1]]
			if !hasYear.MatchString(tok) {
				tok += " 2000"
			}
			if at := norm.Normalize(tok, ""); !at.Equal(dayZero) {
				days[at.Format("01-02")] = true
			}
		}
	}
	return len(days)
}

// scanTime finds a time range or single time; a range yields its start.
func scanTime(text string) string {
	if m := timeRange12.FindString(text); m != "" {
		return dates.StartOfRange(m)
	}
	if m := time12.FindString(text); m != "" {
		return m
	}
	return time24.FindString(text)
}

func (e *EventExtractor) location(c Candidate) string {
	if loc := firstText(c.Sel, locationSelector); loc != "" {
		return loc
	}
	if e.venue != nil {
		if m := e.venue.FindString(c.Text); m != "" {
			for _, p := range e.places {
				if strings.EqualFold(p, m) {
					return p
				}
			}
			return m
		}
	}
	return e.DefaultLocation
}

// EventKey is the extraction-stage dedup key: title and exact start instant.
func EventKey(ev models.Event) string {
	return ev.Title + "\x00" + strconv.FormatInt(ev.StartsAt.UnixNano(), 10)
}
