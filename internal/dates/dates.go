// Package dates turns the free-form date and time text found on event and
// bounty pages into comparable instants.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	bareClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	range12   = regexp.MustCompile(`(?i)(\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?)\s*[-–—]\s*\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?`)
	range24   = regexp.MustCompile(`(\d{1,2}:\d{2})\s*[-–—]\s*\d{1,2}:\d{2}`)
	clock12   = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\b`)
	clock24   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)

	dayMonYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{4})\b`)
	monDayYear = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	slashDMY   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoYMD     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)

	relative = regexp.MustCompile(`(?i)^(today|tonight|next\s+\w+|this\s+\w+|(mon|tues|wednes|thurs|fri|satur|sun)day)$`)

	deadlineDays   = regexp.MustCompile(`(?i)^(\d{1,4})\s*d(ays?)?$`)
	deadlineMonths = regexp.MustCompile(`(?i)^(\d{1,3})\s*(mo|months?)$`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Layouts tried verbatim before pattern matching. M/D/Y is not among them so
// that slash dates are read day-first.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
	"Monday, 2 January 2006",
	"Mon, 2 Jan 2006",
	"Monday 2 January 2006",
}

// Normalizer resolves date/time text relative to Now in Location.
type Normalizer struct {
	Now      func() time.Time
	Location *time.Location
}

func New(loc *time.Location) *Normalizer {
	return &Normalizer{Now: time.Now, Location: loc}
}

func (n *Normalizer) loc() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now().In(n.loc())
	}
	return n.Now().In(n.loc())
}

// Normalize never fails: text it cannot resolve yields the current time.
// Relative phrases other than "tomorrow" are deliberately left unresolved.
func (n *Normalizer) Normalize(dateText, timeText string) time.Time {
	dateText = strings.TrimSpace(dateText)
	timeText = strings.TrimSpace(timeText)
	now := n.now()
	if dateText == "" {
		return now
	}

	if m := bareClock.FindStringSubmatch(dateText); m != nil {
		if h, min, ok := clock(m[1], m[2]); ok {
			return time.Date(now.Year(), now.Month(), now.Day(), h, min, 0, 0, n.loc())
		}
	}

	timeText = StartOfRange(timeText)

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, dateText, n.loc()); err == nil {
			return n.overlay(t, timeText)
		}
	}

	lower := strings.ToLower(dateText)
	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1)
	}
	if relative.MatchString(lower) {
		return now
	}

	if t, ok := n.matchPatterns(dateText); ok {
		return n.overlay(t, timeText)
	}
	return now
}

func (n *Normalizer) matchPatterns(s string) (time.Time, bool) {
	if m := dayMonYear.FindStringSubmatch(s); m != nil {
		return n.date(m[3], months[strings.ToLower(m[2])], m[1])
	}
	if m := monDayYear.FindStringSubmatch(s); m != nil {
		return n.date(m[3], months[strings.ToLower(m[1])], m[2])
	}
	if m := slashDMY.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[2])
		return n.date(m[3], time.Month(mo), m[1])
	}
	if m := isoYMD.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[2])
		return n.date(m[1], time.Month(mo), m[3])
	}
	return time.Time{}, false
}

func (n *Normalizer) date(year string, month time.Month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || month < time.January || month > time.December || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, n.loc())
	if t.Day() != d || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// overlay applies a clock token to t's calendar day. Unusable tokens leave t unchanged.
func (n *Normalizer) overlay(t time.Time, timeText string) time.Time {
	if timeText == "" {
		return t
	}
	if h, min, ok := ParseClock(timeText); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), h, min, 0, 0, t.Location())
	}
	return t
}

// ParseClock reads a 12-hour ("3pm", "3:00 PM") or 24-hour ("18:30") token.
// 12am is midnight and 12pm is noon.
func ParseClock(s string) (hour, minute int, ok bool) {
	if m := clock12.FindStringSubmatch(s); m != nil {
		h, err := strconv.Atoi(m[1])
		if err != nil || h < 1 || h > 12 {
			return 0, 0, false
		}
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if min > 59 {
			return 0, 0, false
		}
		pm := strings.EqualFold(m[3], "p")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return h, min, true
	}
	if m := clock24.FindStringSubmatch(s); m != nil {
		return clock(m[1], m[2])
	}
	return 0, 0, false
}

func clock(hs, ms string) (int, int, bool) {
	h, err := strconv.Atoi(hs)
	if err != nil || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// StartOfRange reduces "3:00 PM - 6:00 PM" or "18:00–20:00" to its start token.
func StartOfRange(s string) string {
	if m := range12.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := range24.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// IsBareClock reports whether s is only an "H:MM" token.
func IsBareClock(s string) bool {
	return bareClock.MatchString(strings.TrimSpace(s))
}

// ParseDeadline resolves a "Due in" token ("5d", "1mo", "1 month") against from.
func ParseDeadline(token string, from time.Time) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if m := deadlineDays.FindStringSubmatch(token); m != nil {
		d, _ := strconv.Atoi(m[1])
		return from.AddDate(0, 0, d), true
	}
	if m := deadlineMonths.FindStringSubmatch(token); m != nil {
		mo, _ := strconv.Atoi(m[1])
		return from.AddDate(0, mo, 0), true
	}
	return time.Time{}, false
}
