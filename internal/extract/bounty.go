package extract

import (
	"regexp"
	"time"

	"github.com/communitybot/feedwatch/internal/dates"
	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/pkg/models"
)

var dueIn = regexp.MustCompile(`Due in (\d+d|1mo|1 month)`)

type BountyExtractor struct {
	Source      models.Source
	Currency    string
	DetailLinks []*regexp.Regexp

	rules  []TitleRule
	reward *regexp.Regexp
}

func NewBountyExtractor(src models.Source, anchor, currency string, details []*regexp.Regexp) *BountyExtractor {
	return &BountyExtractor{
		Source:      src,
		Currency:    currency,
		DetailLinks: details,
		rules: []TitleRule{
			HeadingBefore(bountyHeadings, anchor),
			AnchorPrefix(anchor, currency),
			LeadingWords(5),
		},
		reward: regexp.MustCompile(`(\d+(?:,\d+)?)\s*` + regexp.QuoteMeta(currency)),
	}
}

// Extract rejects candidates without a title or without exactly one "Due in"
// deadline.
func (e *BountyExtractor) Extract(doc *fetch.Document, c Candidate, fetchedAt time.Time) (models.Bounty, error) {
	if !OneDeadline(c.Text) {
		return models.Bounty{}, reject("several deadlines, not one card")
	}
	title, _, ok := FirstTitle(c, e.rules)
	if !ok {
		return models.Bounty{}, reject("no title")
	}
	if err := checkTitle(title); err != nil {
		return models.Bounty{}, err
	}

	m := dueIn.FindStringSubmatch(c.Text)
	if m == nil {
		return models.Bounty{}, reject("no deadline")
	}
	due, ok := dates.ParseDeadline(m[1], fetchedAt)
	if !ok {
		return models.Bounty{}, reject("unparseable deadline " + m[1])
	}

	reward := models.DeadlineTBD
	if rm := e.reward.FindStringSubmatch(c.Text); rm != nil {
		reward = rm[1] + " " + e.Currency
	}

	link := findLink(doc, c.Sel, e.DetailLinks)
	if link == "" {
		link = e.Source.URL
	}

	return models.Bounty{
		Title:    title,
		Link:     link,
		Reward:   reward,
		Deadline: m[1],
		DueAt:    due,
		Source:   e.Source.Label,
	}, nil
}

// BountyKey is the extraction-stage dedup key.
func BountyKey(b models.Bounty) string { return b.Title }
