package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/communitybot/feedwatch/internal/fetch"
)

// TitleRule derives a title from a candidate, reporting false when it does not apply.
type TitleRule struct {
	Name  string
	Apply func(c Candidate) (string, bool)
}

// FirstTitle returns the result of the first rule that matches.
func FirstTitle(c Candidate, rules []TitleRule) (title, rule string, ok bool) {
	for _, r := range rules {
		if t, ok := r.Apply(c); ok {
			if t = cleanTitle(t); t != "" {
				return t, r.Name, true
			}
		}
	}
	return "", "", false
}

const (
	eventHeadings  = `h1, h2, h3, h4, h5, h6, .event-title, [class*="title"], [class*="name"], [data-testid*="title"]`
	bountyHeadings = `h1, h2, h3, h4, h5, h6, .title, [class*="title"]`
)

// Heading takes the first non-empty element matching selector.
func Heading(selector string) TitleRule {
	return TitleRule{
		Name: "heading",
		Apply: func(c Candidate) (string, bool) {
			title := firstText(c.Sel, selector)
			return title, title != ""
		},
	}
}

// HeadingBefore is Heading restricted to headings whose text precedes the
// anchor phrase in the candidate, so a page header above the cards is never
// taken for a card title. An empty anchor behaves like Heading.
func HeadingBefore(selector, anchor string) TitleRule {
	if anchor == "" {
		return Heading(selector)
	}
	return TitleRule{
		Name: "heading",
		Apply: func(c Candidate) (string, bool) {
			limit := strings.Index(c.Text, anchor)
			if limit < 0 {
				return "", false
			}
			var title string
			c.Sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				t := fetch.VisibleText(s)
				if i := strings.Index(c.Text, t); t != "" && i >= 0 && i < limit {
					title = t
					return false
				}
				return true
			})
			return title, title != ""
		},
	}
}

// AnchorPrefix takes the text preceding "<anchor><amount><currency>", the
// shape marketplace cards flatten to once their markup is stripped.
func AnchorPrefix(anchor, currency string) TitleRule {
	if anchor == "" {
		return TitleRule{Name: "anchor-prefix", Apply: func(Candidate) (string, bool) { return "", false }}
	}
	re := regexp.MustCompile(`^(.+?)` + regexp.QuoteMeta(anchor) + `\s*(\d+(?:,\d+)?)\s*` + regexp.QuoteMeta(currency))
	return TitleRule{
		Name: "anchor-prefix",
		Apply: func(c Candidate) (string, bool) {
			m := re.FindStringSubmatch(c.Text)
			if m == nil {
				return "", false
			}
			return m[1], true
		},
	}
}

// LeadingWords takes the first n words of the candidate text.
func LeadingWords(n int) TitleRule {
	return TitleRule{
		Name: "leading-words",
		Apply: func(c Candidate) (string, bool) {
			words := strings.Fields(c.Text)
			if len(words) == 0 {
				return "", false
			}
			return strings.Join(words[:min(n, len(words))], " "), true
		},
	}
}

var lineNoise = []string{"date", "time", "location", "venue", "rsvp", "join", "click"}

// FirstLine takes the first text line of 5 to 100 characters that is not a
// date, venue or call-to-action line.
var FirstLine = TitleRule{
	Name: "first-line",
	Apply: func(c Candidate) (string, bool) {
		for _, line := range fetch.Lines(c.Sel) {
			n := utf8.RuneCountInString(line)
			if n < 5 || n > 100 {
				continue
			}
			lower := strings.ToLower(line)
			noisy := false
			for _, w := range lineNoise {
				if strings.Contains(lower, w) {
					noisy = true
					break
				}
			}
			if !noisy {
				return line, true
			}
		}
		return "", false
	},
}

var bountyPrefix = regexp.MustCompile(`(?i)^bounty:\s*`)

func cleanTitle(s string) string {
	s = fetch.Normalize(s)
	return strings.TrimSpace(bountyPrefix.ReplaceAllString(s, ""))
}

var dangling = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "for": true, "and": true,
}

// chrome matches page furniture that selector matches sometimes pick up
// instead of a content card.
var chrome = regexp.MustCompile(`(?i)\b(found|results|search|expired|completed|closed|ended)\b`)

// checkTitle rejects truncated or page-chrome titles.
func checkTitle(title string) error {
	if utf8.RuneCountInString(title) < 5 {
		return reject("title too short")
	}
	words := strings.Fields(title)
	if dangling[strings.ToLower(words[len(words)-1])] {
		return reject("title ends in a function word")
	}
	if chrome.MatchString(title) {
		return reject("title is page chrome")
	}
	return nil
}
